package mssql

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/polyquery/polyquery-engine/pkg/models"
)

// Config contains SQL Server connection options, shared with Azure
// Synapse dedicated SQL pools.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string

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
		Host:     d.FirstParam("host", "server_name", "hostname"),
		Username: d.FirstParam("username", "user"),
		Password: d.Param("password", ""),
		Database: d.FirstParam("database_name", "database"),
		Port:     1433,
	}

	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
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

// ConnectionString builds a sqlserver:// URL with escaped credentials.
func (cfg *Config) ConnectionString() string {
	if cfg.URI != "" {
		return cfg.URI
	}

	query := url.Values{}
	query.Set("database", cfg.Database)

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}
