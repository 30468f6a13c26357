package core

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// Regulation is one entry of the GOST/TU registry.
type Regulation struct {
	Code       string
	Title      pgtype.Text
	Annotation pgtype.Text
}

// Unit is one entry of the unit-of-measure registry.
type Unit struct {
	Code  string
	Name  pgtype.Text
	Short pgtype.Text
}

// Index is an in-memory lookup keyed by a reference table's natural key.
// It is built once per run and read-only afterwards.
type Index[T any] struct {
	entries    map[string]T
	duplicates int
}

// RegulationIndex resolves regulation codes.
type RegulationIndex = Index[Regulation]

// UnitIndex resolves unit codes.
type UnitIndex = Index[Unit]

func buildIndex[T any](items []T, key func(T) string) *Index[T] {
	ix := &Index[T]{entries: make(map[string]T, len(items))}
	for _, item := range items {
		k := normalizeKey(key(item))
		if k == "" {
			continue
		}
		// last one wins
		if _, seen := ix.entries[k]; seen {
			ix.duplicates++
		}
		ix.entries[k] = item
	}
	return ix
}

// BuildRegulationIndex builds the regulation lookup. Entries with an empty
// code are skipped; for duplicate codes the last entry wins.
func BuildRegulationIndex(entries []Regulation) *RegulationIndex {
	return buildIndex(entries, func(r Regulation) string { return r.Code })
}

// BuildUnitIndex builds the unit lookup with the same rules as BuildRegulationIndex.
func BuildUnitIndex(entries []Unit) *UnitIndex {
	return buildIndex(entries, func(u Unit) string { return u.Code })
}

// Lookup returns the entry for code. A blank code is always a miss.
func (ix *Index[T]) Lookup(code string) (T, bool) {
	var zero T
	if ix == nil {
		return zero, false
	}
	k := normalizeKey(code)
	if k == "" {
		return zero, false
	}
	v, ok := ix.entries[k]
	return v, ok
}

// Len returns the number of distinct keys.
func (ix *Index[T]) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// Duplicates returns how many entries overwrote an earlier entry with the same key.
func (ix *Index[T]) Duplicates() int {
	if ix == nil {
		return 0
	}
	return ix.duplicates
}

func normalizeKey(s string) string {
	return strings.TrimSpace(s)
}

// RegulationColumns names the columns of the regulation relation.
type RegulationColumns struct {
	Code       string
	Title      string
	Annotation string
}

// UnitColumns names the columns of the unit relation.
type UnitColumns struct {
	Code  string
	Name  string
	Short string
}

// RegulationsFromTable projects a loaded relation onto Regulation entries in row order.
func RegulationsFromTable(t *Table, cols RegulationColumns) ([]Regulation, error) {
	pos, err := resolveColumns(t, cols.Code, cols.Title, cols.Annotation)
	if err != nil {
		return nil, err
	}

	out := make([]Regulation, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, Regulation{
			Code:       textValue(cell(row, pos[0])),
			Title:      cell(row, pos[1]),
			Annotation: cell(row, pos[2]),
		})
	}
	return out, nil
}

// UnitsFromTable projects a loaded relation onto Unit entries in row order.
func UnitsFromTable(t *Table, cols UnitColumns) ([]Unit, error) {
	pos, err := resolveColumns(t, cols.Code, cols.Name, cols.Short)
	if err != nil {
		return nil, err
	}

	out := make([]Unit, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, Unit{
			Code:  textValue(cell(row, pos[0])),
			Name:  cell(row, pos[1]),
			Short: cell(row, pos[2]),
		})
	}
	return out, nil
}

func resolveColumns(t *Table, names ...string) ([]int, error) {
	idx := t.Index()
	pos := make([]int, len(names))
	for i, name := range names {
		p, ok := idx.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q in %s", ErrColumnNotFound, name, t.Name)
		}
		pos[i] = p
	}
	return pos, nil
}

// cell returns row[i], or NULL for a short row.
func cell(row Row, i int) pgtype.Text {
	if i < 0 || i >= len(row) {
		return pgtype.Text{}
	}
	return row[i]
}
