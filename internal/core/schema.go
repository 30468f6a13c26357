package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// EnrichmentColumns names the four denormalized columns added to both destinations.
type EnrichmentColumns struct {
	RegulationTitle      string
	RegulationAnnotation string
	UnitName             string
	UnitShort            string
}

// Names returns the enrichment columns in declaration order.
func (e EnrichmentColumns) Names() []string {
	return []string{e.RegulationTitle, e.RegulationAnnotation, e.UnitName, e.UnitShort}
}

// Layout is the column order shared by both destination tables: the source
// columns followed by the enrichment columns that are not already present in
// the source. It is fixed for the lifetime of the tables.
type Layout struct {
	Columns     []string
	sourceWidth int
	slots       [4]int // destination position of each enrichment field
}

// NewLayout derives the destination layout from the source columns.
//
// An enrichment column whose name matches a source column (case-insensitive)
// reuses that position and carries the resolved value. The identity column
// must not collide with any destination column; with caseSensitive set only
// an exact name collides, otherwise names are compared ignoring case.
func NewLayout(source []string, enrichment EnrichmentColumns, idColumn string, caseSensitive bool) (*Layout, error) {
	if len(source) == 0 {
		return nil, errors.New("source table has no columns")
	}

	l := &Layout{
		Columns:     make([]string, len(source), len(source)+4),
		sourceWidth: len(source),
	}
	copy(l.Columns, source)

	idx := MakeHeaderIndex(source)
	for i, name := range enrichment.Names() {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("enrichment column %d has no name", i+1)
		}
		if pos, ok := idx.Lookup(name); ok {
			l.slots[i] = pos
			continue
		}
		l.slots[i] = len(l.Columns)
		idx[strings.ToLower(strings.TrimSpace(name))] = len(l.Columns)
		l.Columns = append(l.Columns, name)
	}

	id := strings.TrimSpace(idColumn)
	for _, col := range l.Columns {
		col = strings.TrimSpace(col)
		if col == id || (!caseSensitive && strings.EqualFold(col, id)) {
			return nil, fmt.Errorf("%w: %q", ErrIDColumnClash, idColumn)
		}
	}

	return l, nil
}

// SourceWidth returns how many leading columns come from the source table.
func (l *Layout) SourceWidth() int {
	return l.sourceWidth
}

// Def returns the table definition for a destination.
func (l *Layout) Def(idColumn string) TableDef {
	cols := make([]string, len(l.Columns))
	copy(cols, l.Columns)
	return TableDef{IDColumn: idColumn, Columns: cols}
}

// Values lays out an enriched row in destination column order. The source
// row is copied, never modified.
func (l *Layout) Values(r EnrichedRow) ([]pgtype.Text, error) {
	if len(r.Source) != l.sourceWidth {
		return nil, fmt.Errorf("%w: row has %d values, source has %d columns",
			ErrColumnCount, len(r.Source), l.sourceWidth)
	}

	values := make([]pgtype.Text, len(l.Columns))
	copy(values, r.Source)

	enriched := [4]pgtype.Text{
		r.Enrichment.RegulationTitle,
		r.Enrichment.RegulationAnnotation,
		r.Enrichment.UnitName,
		r.Enrichment.UnitShort,
	}
	for i, pos := range l.slots {
		values[pos] = enriched[i]
	}

	return values, nil
}

// SchemaSync ensures destination tables exist.
type SchemaSync struct {
	catalog Catalog
}

// NewSchemaSync creates a SchemaSync over the given catalog.
func NewSchemaSync(catalog Catalog) *SchemaSync {
	return &SchemaSync{catalog: catalog}
}

// Ensure creates the table if it is absent and reports whether it did.
//
// An existing table is left untouched, whatever its shape. A create that
// loses a race with another creator (ErrTableExists) counts as success.
// Every other failure is a *SchemaError.
func (s *SchemaSync) Ensure(ctx context.Context, table string, def TableDef) (bool, error) {
	exists, err := s.catalog.TableExists(ctx, table)
	if err != nil {
		return false, &SchemaError{Table: table, Err: fmt.Errorf("existence check: %w", err)}
	}
	if exists {
		return false, nil
	}

	if err := s.catalog.CreateTable(ctx, table, def); err != nil {
		if errors.Is(err, ErrTableExists) {
			return false, nil
		}
		return false, &SchemaError{Table: table, Err: err}
	}

	return true, nil
}
