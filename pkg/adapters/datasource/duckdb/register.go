package duckdb

import (
	"context"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.Info{
			Type:        "duckdb",
			DisplayName: "DuckDB",
			Family:      models.FamilyWarehouse,
			Dialect:     "DuckDB SQL",
		},
		Connect: func(ctx context.Context, descriptor *models.ConnectionDescriptor) (datasource.Connector, error) {
			path := descriptor.FirstParam("path_to_database_file", "path", "database_file")
			return NewAdapter(path)
		},
	})
}
