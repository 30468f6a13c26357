package core

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Row is one record of a loaded table. Cells line up with Table.Columns and
// are nullable text (Valid=false for NULL).
type Row []pgtype.Text

// Table is a fully loaded relation.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// HeaderIndex maps column names (lowercase) to their position in a row.
type HeaderIndex map[string]int

// Index builds a HeaderIndex for the table's columns.
func (t *Table) Index() HeaderIndex {
	return MakeHeaderIndex(t.Columns)
}

// Lookup returns the position of a column, matched case-insensitively.
func (idx HeaderIndex) Lookup(column string) (int, bool) {
	i, ok := idx[strings.ToLower(strings.TrimSpace(column))]
	return i, ok
}

// TableDef describes a destination table: a surrogate identity key followed
// by nullable TEXT columns in order.
type TableDef struct {
	IDColumn string
	Columns  []string
}

// Source reads whole relations from the store.
type Source interface {
	ReadTable(ctx context.Context, name string) (*Table, error)
}

// Catalog inspects and creates tables.
//
// CreateTable must commit before returning. When the table already exists
// it returns an error wrapping ErrTableExists.
type Catalog interface {
	TableExists(ctx context.Context, name string) (bool, error)
	CreateTable(ctx context.Context, name string, def TableDef) error
}

// CaseSensitiveCatalog is implemented by catalogs whose column names differ
// when only their case differs (PostgreSQL quoted identifiers). Catalogs
// that do not implement it fold case.
type CaseSensitiveCatalog interface {
	CaseSensitiveColumns() bool
}

// RowWriter persists a single row and commits it before returning.
type RowWriter interface {
	InsertRow(ctx context.Context, table string, columns []string, values []pgtype.Text) error
}

// Store is the full storage collaborator used by a run.
type Store interface {
	Source
	Catalog
	RowWriter
	Close() error
}

// Destination identifies one of the two output tables.
type Destination string

const (
	DestFilled Destination = "filled"
	DestEmpty  Destination = "empty"
)

// Fields names the source columns that drive classification.
type Fields struct {
	Regulation string // regulation (GOST/TU) code
	Parameters string
	BaseUnit   string // unit-of-measure code
}

// Tables names every relation a run touches.
type Tables struct {
	Source      string
	Regulations string
	Units       string
	Filled      string
	Empty       string
	IDColumn    string
}

// For returns the table name of a destination.
func (t Tables) For(dest Destination) string {
	if dest == DestFilled {
		return t.Filled
	}
	return t.Empty
}

// Phase indicates the current stage of a run.
type Phase string

const (
	PhaseInit        Phase = "init"
	PhaseSchemaReady Phase = "schema_ready"
	PhaseProcessing  Phase = "processing"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// RunProgress represents the current state of a run.
type RunProgress struct {
	RunID      string
	Phase      Phase
	TotalRows  int
	CurrentRow int
	Filled     int
	Empty      int
	Error      string // Non-empty if Phase is PhaseFailed
}

// Percent returns the progress as a percentage (0-100).
func (p RunProgress) Percent() int {
	if p.TotalRows > 0 {
		return (p.CurrentRow * 100) / p.TotalRows
	}
	if p.Phase == PhaseDone {
		return 100
	}
	return 0
}

// LookupStats counts reference hits and misses during a run.
type LookupStats struct {
	RegulationHits   int
	RegulationMisses int
	UnitHits         int
	UnitMisses       int
}

// RunResult contains the final result of a run.
type RunResult struct {
	RunID        string
	Source       string
	FilledTable  string
	EmptyTable   string
	TotalRows    int
	Filled       int
	Empty        int
	Lookups      LookupStats
	CreatedTable []string // destination tables created by this run
	DryRun       bool
	Duration     time.Duration
}
