// Package store opens the core.Store implementation matching the configured driver.
package store

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/mtrsplit/internal/config"
	"github.com/JonMunkholm/mtrsplit/internal/core"
	"github.com/JonMunkholm/mtrsplit/internal/store/pgstore"
	"github.com/JonMunkholm/mtrsplit/internal/store/sqlstore"
)

// Open connects to the database. pgx uses a pgxpool; the other drivers go
// through database/sql. Every failure is a *core.ConnectionError.
func Open(ctx context.Context, cfg config.DatabaseConfig) (core.Store, error) {
	driver := strings.ToLower(cfg.Driver)

	var (
		s   core.Store
		err error
	)
	if driver == "pgx" || driver == "" {
		s, err = pgstore.Open(ctx, cfg)
	} else {
		s, err = sqlstore.Open(ctx, cfg)
	}
	if err != nil {
		return nil, &core.ConnectionError{Driver: cfg.Driver, Err: err}
	}
	return s, nil
}

// Location describes where the data lives without exposing credentials:
// the database name for server drivers, the file path for DuckDB.
func Location(cfg config.DatabaseConfig) string {
	switch strings.ToLower(cfg.Driver) {
	case "duckdb":
		if abs, err := filepath.Abs(cfg.URL); err == nil {
			return abs
		}
		return cfg.URL
	case "mysql":
		// user:pass@tcp(host:3306)/dbname?params
		dsn := cfg.URL
		if i := strings.LastIndex(dsn, "/"); i >= 0 {
			name := dsn[i+1:]
			if j := strings.Index(name, "?"); j >= 0 {
				name = name[:j]
			}
			if k := strings.Index(dsn, "@"); k >= 0 {
				return dsn[k+1:i] + "/" + name
			}
			return name
		}
		return dsn
	default:
		u, err := url.Parse(cfg.URL)
		if err != nil || u.Host == "" {
			return "postgres"
		}
		return u.Host + "/" + strings.TrimPrefix(u.Path, "/")
	}
}
