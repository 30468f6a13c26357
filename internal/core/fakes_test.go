package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// txt builds a valid cell kept as given; "" builds NULL.
func txt(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// row builds a Row from strings, "" meaning NULL.
func row(vals ...string) Row {
	r := make(Row, len(vals))
	for i, v := range vals {
		r[i] = txt(v)
	}
	return r
}

type insert struct {
	table   string
	columns []string
	values  []pgtype.Text
}

// memStore is an in-memory Store used by the core tests.
type memStore struct {
	tables  map[string]*Table
	created map[string]TableDef
	inserts []insert

	readErr      map[string]error
	existsErr    error
	createErr    error
	failInsertAt int // 1-based insert that fails; 0 never fails

	existsCalls int
	createCalls int

	caseSensitive bool
}

func newMemStore(tables ...*Table) *memStore {
	m := &memStore{
		tables:  make(map[string]*Table),
		created: make(map[string]TableDef),
		readErr: make(map[string]error),
	}
	for _, t := range tables {
		m.tables[strings.ToLower(t.Name)] = t
	}
	return m
}

func (m *memStore) ReadTable(_ context.Context, name string) (*Table, error) {
	if err := m.readErr[name]; err != nil {
		return nil, err
	}
	t, ok := m.tables[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", name)
	}
	return t, nil
}

func (m *memStore) TableExists(_ context.Context, name string) (bool, error) {
	m.existsCalls++
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.tables[strings.ToLower(name)]
	return ok, nil
}

func (m *memStore) CreateTable(_ context.Context, name string, def TableDef) error {
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	key := strings.ToLower(name)
	if _, ok := m.tables[key]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	cols := append([]string{def.IDColumn}, def.Columns...)
	m.tables[key] = &Table{Name: name, Columns: cols}
	m.created[key] = def
	return nil
}

func (m *memStore) InsertRow(_ context.Context, table string, columns []string, values []pgtype.Text) error {
	if m.failInsertAt > 0 && len(m.inserts)+1 == m.failInsertAt {
		return errors.New("value too long for type character varying(10)")
	}
	t, ok := m.tables[strings.ToLower(table)]
	if !ok {
		return fmt.Errorf("relation %q does not exist", table)
	}
	if len(columns) != len(values) {
		return ErrColumnCount
	}

	m.inserts = append(m.inserts, insert{table: table, columns: columns, values: values})

	stored := make(Row, 0, len(values)+1)
	stored = append(stored, txt(fmt.Sprint(len(t.Rows)+1)))
	stored = append(stored, values...)
	t.Rows = append(t.Rows, stored)
	return nil
}

func (m *memStore) CaseSensitiveColumns() bool { return m.caseSensitive }

func (m *memStore) Close() error { return nil }

func (m *memStore) rowsIn(table string) []Row {
	t, ok := m.tables[strings.ToLower(table)]
	if !ok {
		return nil
	}
	return t.Rows
}

// recorder captures observer events.
type recorder struct {
	progress []RunProgress
	lookups  []LookupEvent
}

func (r *recorder) OnProgress(p RunProgress) { r.progress = append(r.progress, p) }
func (r *recorder) OnLookup(e LookupEvent)   { r.lookups = append(r.lookups, e) }

func (r *recorder) phases() []Phase {
	var out []Phase
	for _, p := range r.progress {
		if len(out) == 0 || out[len(out)-1] != p.Phase {
			out = append(out, p.Phase)
		}
	}
	return out
}

var testEnrichment = EnrichmentColumns{
	RegulationTitle:      "GOST_Title",
	RegulationAnnotation: "GOST_Annotation",
	UnitName:             "ED_IZM_Name",
	UnitShort:            "ED_IZM_Short",
}

var testFields = Fields{
	Regulation: "regulation_code",
	Parameters: "parameters",
	BaseUnit:   "base_unit",
}

var testTables = Tables{
	Source:      "MTR",
	Regulations: "GOST",
	Units:       "ED_IZM",
	Filled:      "filled_table",
	Empty:       "empty_table",
	IDColumn:    "ID",
}

func testOptions() Options {
	return Options{
		Tables:            testTables,
		Fields:            testFields,
		RegulationColumns: RegulationColumns{Code: "code", Title: "title", Annotation: "annotation"},
		UnitColumns:       UnitColumns{Code: "code", Name: "name", Short: "short"},
		Enrichment:        testEnrichment,
	}
}

func sourceTable(rows ...Row) *Table {
	return &Table{
		Name:    "MTR",
		Columns: []string{"material", "regulation_code", "parameters", "base_unit"},
		Rows:    rows,
	}
}

func regulationTable(rows ...Row) *Table {
	return &Table{Name: "GOST", Columns: []string{"code", "title", "annotation"}, Rows: rows}
}

func unitTable(rows ...Row) *Table {
	return &Table{Name: "ED_IZM", Columns: []string{"code", "name", "short"}, Rows: rows}
}
