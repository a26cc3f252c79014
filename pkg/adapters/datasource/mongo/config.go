package mongo

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/polyquery/polyquery-engine/pkg/models"
)

// Config contains MongoDB connection options.
type Config struct {
	URI      string
	Database string
}

// FromDescriptor extracts connection options from a validated
// descriptor. The database name is required either as a discrete field
// or as the path component of the connection string.
func FromDescriptor(d *models.ConnectionDescriptor) (*Config, error) {
	if d.UseURI || d.FirstParam("connection_string") != "" {
		uri := d.URI
		if uri == "" {
			uri = d.FirstParam("connection_string")
		}

		dbName := d.FirstParam("database_name", "database")
		if dbName == "" {
			dbName = databaseFromURI(uri)
		}
		if dbName == "" {
			return nil, fmt.Errorf("database name is required (include it in the connection string path)")
		}

		return &Config{URI: uri, Database: dbName}, nil
	}

	host := d.FirstParam("hostname", "host")
	dbName := d.FirstParam("database_name", "database")
	if host == "" {
		return nil, fmt.Errorf("hostname is required")
	}
	if dbName == "" {
		return nil, fmt.Errorf("database name is required")
	}

	port := d.Param("port", "27017")
	user := d.FirstParam("username", "user")
	password := d.Param("password", "")

	var uri string
	if user != "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s:%s/%s",
			url.QueryEscape(user), url.QueryEscape(password), host, port, dbName)
	} else {
		uri = fmt.Sprintf("mongodb://%s:%s/%s", host, port, dbName)
	}

	return &Config{URI: uri, Database: dbName}, nil
}

// databaseFromURI pulls the database name out of a mongodb:// or
// mongodb+srv:// connection string path.
func databaseFromURI(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Path, "/")
}
