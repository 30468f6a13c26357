package core

import (
	"context"
	"fmt"
)

// DurableWriter persists enriched rows one at a time. Each call returns only
// after the row is committed, so a crash loses at most the in-flight row.
type DurableWriter struct {
	rw     RowWriter
	layout *Layout
	tables Tables
}

// NewDurableWriter creates a writer for the two destinations named in tables.
func NewDurableWriter(rw RowWriter, layout *Layout, tables Tables) *DurableWriter {
	return &DurableWriter{rw: rw, layout: layout, tables: tables}
}

// Write inserts r into its destination table. rowNum is the 1-based source
// position used in error reports. Every failure is a *WriteError.
func (w *DurableWriter) Write(ctx context.Context, rowNum int, r EnrichedRow) error {
	table := w.tables.For(r.Destination)

	values, err := w.layout.Values(r)
	if err != nil {
		return &WriteError{Table: table, Row: rowNum, Err: err}
	}
	if len(values) != len(w.layout.Columns) {
		return &WriteError{Table: table, Row: rowNum, Err: fmt.Errorf("%w: %d values for %d columns",
			ErrColumnCount, len(values), len(w.layout.Columns))}
	}

	if err := w.rw.InsertRow(ctx, table, w.layout.Columns, values); err != nil {
		return &WriteError{Table: table, Row: rowNum, Err: err}
	}

	return nil
}
