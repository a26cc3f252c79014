package postgres

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/polyquery/polyquery-engine/pkg/models"
)

// Config contains PostgreSQL-specific connection options. The same
// config serves every backend speaking the PostgreSQL wire protocol
// (TimescaleDB, Neon, Supabase, Heroku Postgres, Redshift).
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// URI, when set, takes precedence over the discrete fields.
	URI string
}

// FromDescriptor extracts connection options from a validated
// descriptor.
func FromDescriptor(d *models.ConnectionDescriptor) (*Config, error) {
	if d.UseURI || d.FirstParam("connection_string") != "" {
		uri := d.URI
		if uri == "" {
			uri = d.FirstParam("connection_string")
		}
		return &Config{URI: uri}, nil
	}

	cfg := &Config{
		Host:     d.FirstParam("host", "hostname", "cluster_address"),
		User:     d.FirstParam("username", "user"),
		Password: d.Param("password", ""),
		Database: d.FirstParam("database_name", "db_name", "database"),
		SSLMode:  d.Param("ssl_mode", ""),
		Port:     5432,
	}

	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database name is required")
	}
	if p := d.Param("port", ""); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		cfg.Port = port
	}

	return cfg, nil
}

// ConnectionString builds a PostgreSQL URL with proper escaping. All
// user-provided fields are URL-escaped so special characters in
// passwords (@, /, #, ?) cannot break URL parsing.
func (cfg *Config) ConnectionString() string {
	if cfg.URI != "" {
		return cfg.URI
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
}
