package mongo

import (
	"context"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.Info{
			Type:        "mongodb",
			DisplayName: "MongoDB",
			Family:      models.FamilyDocument,
			Dialect:     "MongoDB JSON operation document (find, aggregate, countDocuments)",
		},
		Connect: func(ctx context.Context, descriptor *models.ConnectionDescriptor) (datasource.Connector, error) {
			cfg, err := FromDescriptor(descriptor)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg)
		},
	})
}
