package mssql

import (
	"context"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.Info{
			Type:        "sqlserver",
			DisplayName: "Microsoft SQL Server",
			Family:      models.FamilyRelational,
			Dialect:     "T-SQL",
		},
		Connect: func(ctx context.Context, descriptor *models.ConnectionDescriptor) (datasource.Connector, error) {
			cfg, err := FromDescriptor(descriptor)
			if err != nil {
				return nil, err
			}
			return NewAdapter(cfg, models.FamilyRelational)
		},
	})

	datasource.Register(datasource.Registration{
		Info: datasource.Info{
			Type:        "synapse",
			DisplayName: "Azure Synapse Analytics",
			Family:      models.FamilyWarehouse,
			Dialect:     "T-SQL (Synapse dedicated SQL pool)",
		},
		Connect: func(ctx context.Context, descriptor *models.ConnectionDescriptor) (datasource.Connector, error) {
			cfg, err := FromDescriptor(descriptor)
			if err != nil {
				return nil, err
			}
			return NewAdapter(cfg, models.FamilyWarehouse)
		},
	})
}
