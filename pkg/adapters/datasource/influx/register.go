package influx

import (
	"context"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.Info{
			Type:        "influxdb",
			DisplayName: "InfluxDB",
			Family:      models.FamilyTimeSeries,
			Dialect:     "Flux",
		},
		Connect: func(ctx context.Context, descriptor *models.ConnectionDescriptor) (datasource.Connector, error) {
			cfg, err := FromDescriptor(descriptor)
			if err != nil {
				return nil, err
			}
			return NewAdapter(cfg), nil
		},
	})
}
