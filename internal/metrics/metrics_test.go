package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/mtrsplit/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textfile(t *testing.T, c *Collector) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mtrsplit.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestCollector_Progress(t *testing.T) {
	c := New()

	c.OnProgress(core.RunProgress{RunID: "r1", Phase: core.PhaseInit})
	c.OnProgress(core.RunProgress{RunID: "r1", Phase: core.PhaseSchemaReady, TotalRows: 3})
	c.OnProgress(core.RunProgress{RunID: "r1", Phase: core.PhaseProcessing, TotalRows: 3, CurrentRow: 1, Filled: 1})
	c.OnProgress(core.RunProgress{RunID: "r1", Phase: core.PhaseProcessing, TotalRows: 3, CurrentRow: 2, Filled: 1, Empty: 1})
	c.OnProgress(core.RunProgress{RunID: "r1", Phase: core.PhaseProcessing, TotalRows: 3, CurrentRow: 3, Filled: 2, Empty: 1})
	c.OnProgress(core.RunProgress{RunID: "r1", Phase: core.PhaseDone, TotalRows: 3, CurrentRow: 3, Filled: 2, Empty: 1})

	out := textfile(t, c)
	assert.Contains(t, out, `mtrsplit_rows_routed_total{destination="filled"} 2`)
	assert.Contains(t, out, `mtrsplit_rows_routed_total{destination="empty"} 1`)
	assert.Contains(t, out, `mtrsplit_rows_total 3`)
	assert.Contains(t, out, `mtrsplit_runs_total{status="done"} 1`)
	assert.NotContains(t, out, `status="failed"`)
}

func TestCollector_NewRunResetsCounts(t *testing.T) {
	c := New()

	c.OnProgress(core.RunProgress{RunID: "r1", Phase: core.PhaseProcessing, CurrentRow: 2, Filled: 2})
	c.OnProgress(core.RunProgress{RunID: "r1", Phase: core.PhaseFailed, CurrentRow: 2, Filled: 2})
	c.OnProgress(core.RunProgress{RunID: "r2", Phase: core.PhaseProcessing, CurrentRow: 1, Filled: 1})

	out := textfile(t, c)
	assert.Contains(t, out, `mtrsplit_rows_routed_total{destination="filled"} 3`)
	assert.Contains(t, out, `mtrsplit_runs_total{status="failed"} 1`)
}

func TestCollector_Lookups(t *testing.T) {
	c := New()

	c.OnLookup(core.LookupEvent{Kind: core.LookupRegulation, Code: "GOST-1", Found: true})
	c.OnLookup(core.LookupEvent{Kind: core.LookupRegulation, Code: "GOST-9"})
	c.OnLookup(core.LookupEvent{Kind: core.LookupUnit, Code: "U1", Found: true})
	c.OnLookup(core.LookupEvent{Kind: core.LookupUnit, Code: "U1", Found: true})

	out := textfile(t, c)
	assert.Contains(t, out, `mtrsplit_lookups_total{kind="regulation",result="hit"} 1`)
	assert.Contains(t, out, `mtrsplit_lookups_total{kind="regulation",result="miss"} 1`)
	assert.Contains(t, out, `mtrsplit_lookups_total{kind="unit",result="hit"} 2`)
}

type stubWriter struct {
	calls int
	err   error
}

func (s *stubWriter) InsertRow(context.Context, string, []string, []pgtype.Text) error {
	s.calls++
	return s.err
}

func TestInstrumentWriter(t *testing.T) {
	c := New()
	next := &stubWriter{}
	w := c.InstrumentWriter(next)

	require.NoError(t, w.InsertRow(context.Background(), "filled_table", []string{"a"}, []pgtype.Text{{}}))

	next.err = errors.New("disk full")
	err := w.InsertRow(context.Background(), "filled_table", []string{"a"}, []pgtype.Text{{}})
	assert.EqualError(t, err, "disk full")

	assert.Equal(t, 2, next.calls)

	out := textfile(t, c)
	assert.Contains(t, out, `mtrsplit_row_write_seconds_count 2`)
	assert.Contains(t, out, `mtrsplit_row_write_failures_total 1`)
}
