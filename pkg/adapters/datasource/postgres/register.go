package postgres

import (
	"context"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

// variant describes one backend type served by this adapter. Neon,
// Supabase and Heroku Postgres are plain PostgreSQL behind a managed
// endpoint; TimescaleDB and Redshift add their own SQL extensions but
// keep the wire protocol and catalog views.
type variant struct {
	dbType      string
	displayName string
	family      models.Family
	dialect     string
	defaultPort int
}

var variants = []variant{
	{"postgresql", "PostgreSQL", models.FamilyRelational, "PostgreSQL SQL", 5432},
	{"timescaledb", "TimescaleDB", models.FamilyTimeSeries, "PostgreSQL SQL with TimescaleDB hyperfunctions", 5432},
	{"neon", "Neon", models.FamilyRelational, "PostgreSQL SQL", 5432},
	{"supabase", "Supabase", models.FamilyRelational, "PostgreSQL SQL", 5432},
	{"heroku", "Heroku Postgres", models.FamilyRelational, "PostgreSQL SQL", 5432},
	{"redshift", "Amazon Redshift", models.FamilyWarehouse, "Redshift SQL", 5439},
}

func init() {
	for _, v := range variants {
		v := v
		datasource.Register(datasource.Registration{
			Info: datasource.Info{
				Type:        v.dbType,
				DisplayName: v.displayName,
				Family:      v.family,
				Dialect:     v.dialect,
			},
			Connect: func(ctx context.Context, descriptor *models.ConnectionDescriptor) (datasource.Connector, error) {
				cfg, err := FromDescriptor(descriptor)
				if err != nil {
					return nil, err
				}
				if cfg.URI == "" && descriptor.Param("port", "") == "" {
					cfg.Port = v.defaultPort
				}
				return NewAdapter(ctx, cfg, v.family)
			},
		})
	}
}
