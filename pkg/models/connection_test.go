package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintStable(t *testing.T) {
	d1 := &ConnectionDescriptor{
		Type:   "postgresql",
		Params: map[string]string{"host": "db", "port": "5432", "database_name": "app"},
	}
	d2 := &ConnectionDescriptor{
		Type:   "postgresql",
		Params: map[string]string{"database_name": "app", "port": "5432", "host": "db"},
	}

	assert.Equal(t, d1.Fingerprint(), d2.Fingerprint(), "param order must not affect the fingerprint")
}

func TestFingerprintDiffers(t *testing.T) {
	base := &ConnectionDescriptor{Type: "postgresql", Params: map[string]string{"host": "db"}}
	otherType := &ConnectionDescriptor{Type: "mongodb", Params: map[string]string{"host": "db"}}
	otherHost := &ConnectionDescriptor{Type: "postgresql", Params: map[string]string{"host": "db2"}}

	assert.NotEqual(t, base.Fingerprint(), otherType.Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), otherHost.Fingerprint())
}

func TestFingerprintIncludesURI(t *testing.T) {
	a := &ConnectionDescriptor{Type: "redis", UseURI: true, URI: "redis://h1:6379"}
	b := &ConnectionDescriptor{Type: "redis", UseURI: true, URI: "redis://h2:6379"}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestValidate(t *testing.T) {
	require.Error(t, (&ConnectionDescriptor{}).Validate())
	require.Error(t, (&ConnectionDescriptor{Type: "postgresql"}).Validate())
	require.Error(t, (&ConnectionDescriptor{Type: "neon", UseURI: true}).Validate())

	ok := &ConnectionDescriptor{Type: "postgresql", Params: map[string]string{"host": "db"}}
	require.NoError(t, ok.Validate())

	okURI := &ConnectionDescriptor{Type: "neon", UseURI: true, URI: "postgres://u:p@h/db"}
	require.NoError(t, okURI.Validate())
}

func TestParamHelpers(t *testing.T) {
	d := &ConnectionDescriptor{Params: map[string]string{"host": "db", "empty": ""}}

	assert.Equal(t, "db", d.Param("host", "fallback"))
	assert.Equal(t, "fallback", d.Param("empty", "fallback"))
	assert.Equal(t, "fallback", d.Param("missing", "fallback"))

	assert.Equal(t, "db", d.FirstParam("hostname", "host"))
	assert.Equal(t, "", d.FirstParam("missing", "empty"))
}
