package rediskv

import (
	"context"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.Info{
			Type:        "redis",
			DisplayName: "Redis",
			Family:      models.FamilyKeyValue,
			Dialect:     "Redis command (JSON argument array or command string)",
		},
		Connect: func(ctx context.Context, descriptor *models.ConnectionDescriptor) (datasource.Connector, error) {
			return NewAdapter(descriptor)
		},
	})
}
