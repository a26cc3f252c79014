package neo4jgraph

import (
	"context"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.Info{
			Type:        "neo4j",
			DisplayName: "Neo4j",
			Family:      models.FamilyGraph,
			Dialect:     "Cypher",
		},
		Connect: func(ctx context.Context, descriptor *models.ConnectionDescriptor) (datasource.Connector, error) {
			return NewAdapter(ctx, descriptor)
		},
	})
}
