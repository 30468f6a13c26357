package core

import (
	"context"
	"errors"
	"testing"

	"github.com/JonMunkholm/mtrsplit/internal/logging"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixtureStore(src ...Row) *memStore {
	return newMemStore(
		sourceTable(src...),
		regulationTable(
			row("GOST-1", "Title1", "Ann1"),
			row("GOST-2", "Title2", ""),
		),
		unitTable(
			row("U1", "Unit One", "U.1"),
			row("U2", "Unit Two", "U.2"),
		),
	)
}

func runPipeline(t *testing.T, store *memStore, opts Options, obs Observer) (*RunResult, error) {
	t.Helper()
	return NewPipeline(store, store, store, opts, obs).Run(context.Background())
}

func TestPipeline_SplitsAndEnriches(t *testing.T) {
	store := newFixtureStore(
		row("bolt", "GOST-1", "x=1", "U1"),
		row("nut", "", "x=1", "U9"),
		row("screw", "GOST-2", "d=4", "U2"),
		row("washer", "GOST-1", "", "U2"),
	)

	result, err := runPipeline(t, store, testOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalRows)
	assert.Equal(t, 2, result.Filled)
	assert.Equal(t, 2, result.Empty)
	assert.Equal(t, []string{"filled_table", "empty_table"}, result.CreatedTable)
	assert.NotEmpty(t, result.RunID)

	filled := store.rowsIn("filled_table")
	require.Len(t, filled, 2)
	// ID, 4 source columns, 4 enrichment columns.
	assert.Equal(t, row("1", "bolt", "GOST-1", "x=1", "U1", "Title1", "Ann1", "Unit One", "U.1"), filled[0])
	assert.Equal(t, row("2", "screw", "GOST-2", "d=4", "U2", "Title2", "", "Unit Two", "U.2"), filled[1])

	empty := store.rowsIn("empty_table")
	require.Len(t, empty, 2)
	assert.Equal(t, row("1", "nut", "", "x=1", "U9", "", "", "", ""), empty[0])
	assert.Equal(t, row("2", "washer", "GOST-1", "", "U2", "", "", "Unit Two", "U.2"), empty[1])

	assert.Equal(t, LookupStats{RegulationHits: 2, UnitHits: 3, UnitMisses: 1}, result.Lookups)
}

func TestPipeline_CopiesSourceValuesVerbatim(t *testing.T) {
	emptyString := pgtype.Text{String: "", Valid: true}
	store := newFixtureStore(
		Row{txt("  M12 x 40  "), txt(" GOST-1 "), txt("x=1"), txt("U1 ")},
		Row{emptyString, txt("   "), txt("d=4"), txt("U2")},
	)

	result, err := runPipeline(t, store, testOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Filled)
	assert.Equal(t, 1, result.Empty)

	filled := store.rowsIn("filled_table")
	require.Len(t, filled, 1)
	assert.Equal(t, Row{
		txt("1"), txt("  M12 x 40  "), txt(" GOST-1 "), txt("x=1"), txt("U1 "),
		txt("Title1"), txt("Ann1"), txt("Unit One"), txt("U.1"),
	}, filled[0], "padded codes still resolve, source cells keep their padding")

	empty := store.rowsIn("empty_table")
	require.Len(t, empty, 1)
	assert.Equal(t, emptyString, empty[0][1], "an empty string is not turned into NULL")
	assert.Equal(t, txt("   "), empty[0][2], "a blank regulation routes to empty but is copied as is")
}

func TestPipeline_TotalityAndOrder(t *testing.T) {
	var src []Row
	for i := 0; i < 50; i++ {
		switch i % 3 {
		case 0:
			src = append(src, row("m", "GOST-1", "p", "U1"))
		case 1:
			src = append(src, row("m", "", "p", "U1"))
		default:
			src = append(src, row("m", "GOST-9", "", ""))
		}
	}
	store := newFixtureStore(src...)
	rec := &recorder{}

	result, err := runPipeline(t, store, testOptions(), rec)
	require.NoError(t, err)

	assert.Equal(t, 50, result.Filled+result.Empty)
	assert.Len(t, store.inserts, 50, "each row is written exactly once")
	assert.Equal(t, len(store.rowsIn("filled_table")), result.Filled)
	assert.Equal(t, len(store.rowsIn("empty_table")), result.Empty)

	assert.Equal(t, []Phase{PhaseInit, PhaseSchemaReady, PhaseProcessing, PhaseDone}, rec.phases())

	last := rec.progress[len(rec.progress)-1]
	assert.Equal(t, 100, last.Percent())
	assert.Equal(t, 50, last.CurrentRow)
}

func TestPipeline_ExistingTablesReused(t *testing.T) {
	store := newFixtureStore(row("bolt", "GOST-1", "x=1", "U1"))

	_, err := runPipeline(t, store, testOptions(), nil)
	require.NoError(t, err)

	result, err := runPipeline(t, store, testOptions(), nil)
	require.NoError(t, err)

	assert.Empty(t, result.CreatedTable)
	assert.Equal(t, 2, store.createCalls)
	assert.Len(t, store.rowsIn("filled_table"), 2, "a rerun appends")
}

func TestPipeline_EmptySource(t *testing.T) {
	store := newFixtureStore()
	rec := &recorder{}

	result, err := runPipeline(t, store, testOptions(), rec)
	require.NoError(t, err)

	assert.Zero(t, result.TotalRows)
	assert.Equal(t, []string{"filled_table", "empty_table"}, result.CreatedTable)
	assert.Empty(t, store.inserts)
	assert.Equal(t, PhaseDone, rec.progress[len(rec.progress)-1].Phase)
}

func TestPipeline_WriteFailureAborts(t *testing.T) {
	store := newFixtureStore(
		row("a", "GOST-1", "p", "U1"),
		row("b", "", "p", "U1"),
		row("c", "GOST-1", "p", "U1"),
		row("d", "GOST-1", "p", "U1"),
	)
	store.failInsertAt = 3
	rec := &recorder{}

	result, err := runPipeline(t, store, testOptions(), rec)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, 3, writeErr.Row)
	assert.Equal(t, "filled_table", writeErr.Table)

	assert.Len(t, store.inserts, 2, "rows before the failure stay committed")
	assert.Equal(t, 1, result.Filled)
	assert.Equal(t, 1, result.Empty)

	last := rec.progress[len(rec.progress)-1]
	assert.Equal(t, PhaseFailed, last.Phase)
	assert.Contains(t, last.Error, "write failed for row 3")
}

func TestPipeline_LoadErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*memStore)
		wantTable string
		wantCol   bool
	}{
		{
			name:      "source unreadable",
			mutate:    func(m *memStore) { m.readErr["MTR"] = errors.New(`relation "MTR" does not exist`) },
			wantTable: "MTR",
		},
		{
			name:      "regulations unreadable",
			mutate:    func(m *memStore) { delete(m.tables, "gost") },
			wantTable: "GOST",
		},
		{
			name:      "unit column missing",
			mutate:    func(m *memStore) { m.tables["ed_izm"].Columns = []string{"code", "name", "abbr"} },
			wantTable: "ED_IZM",
			wantCol:   true,
		},
		{
			name:      "field column missing",
			mutate:    func(m *memStore) { m.tables["mtr"].Columns = []string{"material", "regulation_code", "params", "base_unit"} },
			wantTable: "MTR",
			wantCol:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFixtureStore(row("bolt", "GOST-1", "x=1", "U1"))
			tt.mutate(store)

			_, err := runPipeline(t, store, testOptions(), nil)

			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, tt.wantTable, loadErr.Table)
			assert.Equal(t, tt.wantCol, errors.Is(err, ErrColumnNotFound))
			assert.Zero(t, store.createCalls, "no table is created when loading fails")
			assert.Empty(t, store.inserts)
		})
	}
}

func TestPipeline_IDColumnClash(t *testing.T) {
	newStore := func() *memStore {
		store := newFixtureStore(row("7", "bolt", "GOST-1", "x=1", "U1"))
		store.tables["mtr"].Columns = []string{"id", "material", "regulation_code", "parameters", "base_unit"}
		return store
	}

	store := newStore()
	_, err := runPipeline(t, store, testOptions(), nil)
	require.ErrorIs(t, err, ErrIDColumnClash)
	var loadErr *LoadError
	assert.False(t, errors.As(err, &loadErr))
	assert.Equal(t, "CFG001", MapError(err).Code)
	assert.Zero(t, store.createCalls)

	store = newStore()
	store.caseSensitive = true
	result, err := runPipeline(t, store, testOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Filled)
	assert.Equal(t, []string{"id", "material", "regulation_code", "parameters", "base_unit",
		"GOST_Title", "GOST_Annotation", "ED_IZM_Name", "ED_IZM_Short"}, store.created["filled_table"].Columns)
}

func TestPipeline_SchemaFailure(t *testing.T) {
	store := newFixtureStore(row("bolt", "GOST-1", "x=1", "U1"))
	store.createErr = errors.New("permission denied")

	_, err := runPipeline(t, store, testOptions(), nil)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "filled_table", schemaErr.Table)
	assert.Empty(t, store.inserts)
}

func TestPipeline_DryRun(t *testing.T) {
	store := newFixtureStore(
		row("bolt", "GOST-1", "x=1", "U1"),
		row("nut", "", "x=1", "U9"),
	)
	opts := testOptions()
	opts.DryRun = true

	result, err := runPipeline(t, store, opts, nil)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Filled)
	assert.Equal(t, 1, result.Empty)
	assert.Zero(t, store.existsCalls)
	assert.Zero(t, store.createCalls)
	assert.Empty(t, store.inserts)
}

func TestPipeline_CancelledBetweenRows(t *testing.T) {
	store := newFixtureStore(
		row("a", "GOST-1", "p", "U1"),
		row("b", "GOST-1", "p", "U1"),
		row("c", "GOST-1", "p", "U1"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	obs := cancelAfter{n: 1, cancel: cancel}

	result, err := NewPipeline(store, store, store, testOptions(), &obs).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "run cancelled before row 2")
	assert.Equal(t, 1, result.Filled)
	assert.Len(t, store.inserts, 1)
	assert.Equal(t, "RUN001", MapError(err).Code)
}

func TestPipeline_UsesContextRunID(t *testing.T) {
	store := newFixtureStore()
	ctx := logging.ContextWithRunID(context.Background(), "run-42")

	result, err := NewPipeline(store, store, store, testOptions(), nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-42", result.RunID)
}

func TestPipeline_EnsureSchemaOnly(t *testing.T) {
	store := newFixtureStore(row("bolt", "GOST-1", "x=1", "U1"))

	created, err := NewPipeline(store, store, store, testOptions(), nil).EnsureSchema(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"filled_table", "empty_table"}, created)
	assert.Empty(t, store.inserts)
	assert.Len(t, store.created["filled_table"].Columns, 8)
}

// cancelAfter cancels the run once n rows have been processed.
type cancelAfter struct {
	NopObserver
	n      int
	cancel context.CancelFunc
}

func (c *cancelAfter) OnProgress(p RunProgress) {
	if p.Phase == PhaseProcessing && p.CurrentRow == c.n {
		c.cancel()
	}
}
