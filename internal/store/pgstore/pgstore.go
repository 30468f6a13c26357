// Package pgstore implements core.Store on a pgx connection pool.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/mtrsplit/internal/config"
	"github.com/JonMunkholm/mtrsplit/internal/core"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// duplicateTable is the SQLSTATE for "relation already exists".
const duplicateTable = "42P07"

// Store reads and writes tables through a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// Open connects a pool using the database settings and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CaseSensitiveColumns reports true: quoted PostgreSQL identifiers keep their case.
func (s *Store) CaseSensitiveColumns() bool { return true }

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ReadTable loads every row of a relation, rendering each value as text.
func (s *Store) ReadTable(ctx context.Context, name string) (*core.Table, error) {
	rows, err := s.pool.Query(ctx, "SELECT * FROM "+quoteIdentifier(name))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	table := &core.Table{Name: name, Columns: make([]string, len(fields))}
	for i, fd := range fields {
		table.Columns[i] = fd.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
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

// TableExists asks the catalog whether the relation resolves on the search path.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", quoteIdentifier(name)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", name, err)
	}
	return exists, nil
}

// CreateTable creates the table and commits. A concurrent creator surfaces
// as core.ErrTableExists.
func (s *Store) CreateTable(ctx context.Context, name string, def core.TableDef) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if _, err := tx.Exec(ctx, createTableSQL(name, def)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == duplicateTable {
			return fmt.Errorf("%w: %s", core.ErrTableExists, name)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// InsertRow inserts one row in its own transaction.
func (s *Store) InsertRow(ctx context.Context, table string, columns []string, values []pgtype.Text) error {
	if len(columns) != len(values) {
		return fmt.Errorf("%w: %d columns, %d values", core.ErrColumnCount, len(columns), len(values))
	}

	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertSQL(table, columns), args...); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func createTableSQL(name string, def core.TableDef) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(quoteIdentifier(name))
	b.WriteString(" (\n\t")
	b.WriteString(quoteIdentifier(def.IDColumn))
	b.WriteString(" BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY")
	for _, col := range def.Columns {
		b.WriteString(",\n\t")
		b.WriteString(quoteIdentifier(col))
		b.WriteString(" TEXT")
	}
	b.WriteString("\n)")
	return b.String()
}

func insertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
