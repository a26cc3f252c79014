// Package all links every database adapter into the binary. Import it
// for side effects to populate the adapter registry.
package all

import (
	_ "github.com/polyquery/polyquery-engine/pkg/adapters/datasource/duckdb"
	_ "github.com/polyquery/polyquery-engine/pkg/adapters/datasource/influx"
	_ "github.com/polyquery/polyquery-engine/pkg/adapters/datasource/mongo"
	_ "github.com/polyquery/polyquery-engine/pkg/adapters/datasource/mssql"
	_ "github.com/polyquery/polyquery-engine/pkg/adapters/datasource/neo4jgraph"
	_ "github.com/polyquery/polyquery-engine/pkg/adapters/datasource/postgres"
	_ "github.com/polyquery/polyquery-engine/pkg/adapters/datasource/rediskv"
)
