package influx

import (
	"fmt"
	"net/url"

	"github.com/polyquery/polyquery-engine/pkg/models"
)

// Config contains InfluxDB 2.x connection options.
type Config struct {
	URL   string
	Token string
	Org   string
}

// FromDescriptor extracts connection options from a validated
// descriptor. Connection-string entry packs token and org into query
// parameters: http://host:8086?token=xxx&org=yyy.
func FromDescriptor(d *models.ConnectionDescriptor) (*Config, error) {
	if d.UseURI || d.FirstParam("connection_string") != "" {
		raw := d.URI
		if raw == "" {
			raw = d.FirstParam("connection_string")
		}

		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse influxdb url: %w", err)
		}

		cfg := &Config{
			URL:   parsed.Scheme + "://" + parsed.Host,
			Token: parsed.Query().Get("token"),
			Org:   parsed.Query().Get("org"),
		}
		if cfg.Token == "" {
			cfg.Token = d.Param("token", "")
		}
		if cfg.Org == "" {
			cfg.Org = d.Param("org", "")
		}
		return cfg, cfg.validate()
	}

	host := d.FirstParam("host", "hostname")
	if host == "" {
		return nil, fmt.Errorf("host is required")
	}
	port := d.Param("port", "8086")
	scheme := d.Param("scheme", "http")

	cfg := &Config{
		URL:   fmt.Sprintf("%s://%s:%s", scheme, host, port),
		Token: d.Param("token", ""),
		Org:   d.Param("org", ""),
	}
	return cfg, cfg.validate()
}

func (cfg *Config) validate() error {
	if cfg.Token == "" {
		return fmt.Errorf("token is required")
	}
	if cfg.Org == "" {
		return fmt.Errorf("org is required")
	}
	return nil
}
