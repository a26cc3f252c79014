package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredCredentialsKnownTypes(t *testing.T) {
	spec, ok := RequiredCredentials("postgresql")
	require.True(t, ok)
	assert.Contains(t, spec.Fields, "host")
	assert.Contains(t, spec.Fields, "database_name")
	assert.True(t, spec.URLOption)
	assert.Equal(t, "connection_string", spec.URLField)

	spec, ok = RequiredCredentials("duckdb")
	require.True(t, ok)
	assert.Equal(t, []string{"path_to_database_file"}, spec.Fields)
	assert.False(t, spec.URLOption, "an embedded database has no connection URL")

	spec, ok = RequiredCredentials("influxdb")
	require.True(t, ok)
	assert.Contains(t, spec.Fields, "token")
	assert.Contains(t, spec.Fields, "org")
}

func TestRequiredCredentialsUnknownType(t *testing.T) {
	_, ok := RequiredCredentials("dbase_iii")
	assert.False(t, ok)
}

func TestCredentialSpecsCoverPasswordBackends(t *testing.T) {
	for _, dbType := range []string{"postgresql", "timescaledb", "redshift", "sqlserver", "synapse", "mongodb", "redis", "neo4j"} {
		spec, ok := RequiredCredentials(dbType)
		require.True(t, ok, dbType)
		assert.Contains(t, spec.Fields, "password", dbType)
	}
}
