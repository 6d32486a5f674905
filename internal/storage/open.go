package storage

import (
	"context"
	"fmt"
	"strings"

	"sophosia/internal/domain"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMongo    = "mongodb"
	DriverMemory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Driver   string
	Path     string // sqlite file
	DSN      string // mysql, postgres
	URI      string // mongodb
	Database string // mongodb
	// Password replaces a <password> placeholder in DSN or URI.
	Password string
}

// Open returns the DocStore for o.Driver.
func Open(ctx context.Context, o Options) (domain.DocStore, error) {
	switch o.Driver {
	case DriverSQLite, "":
		if o.Path == "" {
			return nil, fmt.Errorf("open storage: sqlite path is required")
		}
		return OpenSQLite(o.Path)
	case DriverMySQL, DriverPostgres:
		return OpenSQL(ctx, o.Driver, withPassword(o.DSN, o.Password))
	case DriverMongo:
		db := o.Database
		if db == "" {
			db = "sophosia"
		}
		return OpenMongo(ctx, withPassword(o.URI, o.Password), db)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("open storage: unknown driver %q", o.Driver)
	}
}

func withPassword(s, password string) string {
	if password == "" {
		return s
	}
	s = strings.ReplaceAll(s, "<password>", password)
	return strings.ReplaceAll(s, "<db_password>", password)
}
