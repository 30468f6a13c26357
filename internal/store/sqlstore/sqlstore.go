// Package sqlstore implements core.Store on database/sql, for the lib/pq,
// MySQL and DuckDB drivers.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/JonMunkholm/mtrsplit/internal/config"
	"github.com/JonMunkholm/mtrsplit/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
)

// Store reads and writes tables through a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ core.Store = (*Store)(nil)

// Open opens and pings a database for the configured driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Driver(), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return New(db, dialect), nil
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// CaseSensitiveColumns reports whether the backend distinguishes column
// names by case.
func (s *Store) CaseSensitiveColumns() bool {
	return s.dialect.CaseSensitiveColumns()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReadTable loads every row of a relation, rendering each value as text.
func (s *Store) ReadTable(ctx context.Context, name string) (*core.Table, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+s.dialect.Quote(name))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", name, err)
	}
	table := &core.Table{Name: name, Columns: cols}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s row %d: %w", name, len(table.Rows)+1, err)
		}
		row := make(core.Row, len(vals))
		for i, v := range vals {
			row[i] = core.TextFromAny(v)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	return table, nil
}

// TableExists looks the table up in information_schema.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.ExistsQuery(), name).Scan(&n); err != nil {
		return false, fmt.Errorf("check %s: %w", name, err)
	}
	return n > 0, nil
}

// CreateTable creates the table and commits. A concurrent creator surfaces
// as core.ErrTableExists.
func (s *Store) CreateTable(ctx context.Context, name string, def core.TableDef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() // No-op if already committed

	for _, stmt := range s.dialect.CreateTable(name, def) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if s.dialect.IsDuplicateTable(err) {
				return fmt.Errorf("%w: %s", core.ErrTableExists, name)
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// InsertRow inserts one row in its own transaction.
func (s *Store) InsertRow(ctx context.Context, table string, columns []string, values []pgtype.Text) error {
	if len(columns) != len(values) {
		return fmt.Errorf("%w: %d columns, %d values", core.ErrColumnCount, len(columns), len(values))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertSQL(s.dialect, table, columns), args(values)...); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// args converts cells to plain driver values; not every driver accepts
// pgtype.Text.
func args(values []pgtype.Text) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if v.Valid {
			out[i] = v.String
		}
	}
	return out
}
