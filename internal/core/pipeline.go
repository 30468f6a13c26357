package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/mtrsplit/internal/logging"
	"github.com/google/uuid"
)

// Options configures a Pipeline.
type Options struct {
	Tables            Tables
	Fields            Fields
	RegulationColumns RegulationColumns
	UnitColumns       UnitColumns
	Enrichment        EnrichmentColumns

	// DryRun classifies and counts rows without creating tables or writing.
	DryRun bool
}

// Pipeline splits the source table into the filled and empty destinations.
// It is strictly sequential: one row is classified, enriched, written and
// committed before the next one starts.
type Pipeline struct {
	source   Source
	catalog  Catalog
	writer   RowWriter
	opts     Options
	observer Observer
}

// NewPipeline creates a pipeline. A nil observer discards events.
func NewPipeline(source Source, catalog Catalog, writer RowWriter, opts Options, observer Observer) *Pipeline {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Pipeline{
		source:   source,
		catalog:  catalog,
		writer:   writer,
		opts:     opts,
		observer: observer,
	}
}

// loaded holds everything read during PhaseInit.
type loaded struct {
	source      *Table
	regulations *RegulationIndex
	units       *UnitIndex
	layout      *Layout
}

// Run executes the whole split. On failure the returned result reflects the
// rows committed before the error, and the error is one of the typed errors
// in this package (or a context error when cancelled between rows).
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	ctx, runID := ensureRunID(ctx)
	logger := logging.WithFields(ctx, "source", p.opts.Tables.Source)

	result := &RunResult{
		RunID:       runID,
		Source:      p.opts.Tables.Source,
		FilledTable: p.opts.Tables.Filled,
		EmptyTable:  p.opts.Tables.Empty,
		DryRun:      p.opts.DryRun,
	}
	progress := RunProgress{RunID: runID, Phase: PhaseInit}
	p.observer.OnProgress(progress)

	fail := func(err error) (*RunResult, error) {
		result.Duration = time.Since(start)
		progress.Phase = PhaseFailed
		progress.Error = err.Error()
		p.observer.OnProgress(progress)
		return result, err
	}

	// INIT
	in, err := p.load(ctx)
	if err != nil {
		return fail(err)
	}
	logger.Info("source loaded",
		"rows", len(in.source.Rows),
		"columns", len(in.source.Columns),
		"regulations", in.regulations.Len(),
		"units", in.units.Len(),
	)

	stats := &lookupCounter{}
	classifier, err := NewClassifier(in.source.Columns, p.opts.Fields, in.regulations, in.units,
		Observers{p.observer, stats})
	if err != nil {
		return fail(&LoadError{Table: p.opts.Tables.Source, Err: err})
	}

	// SCHEMA_READY
	if !p.opts.DryRun {
		created, err := p.ensure(ctx, in.layout)
		if err != nil {
			return fail(err)
		}
		result.CreatedTable = created
	}
	result.TotalRows = len(in.source.Rows)
	progress.Phase = PhaseSchemaReady
	progress.TotalRows = result.TotalRows
	p.observer.OnProgress(progress)

	// PROCESSING
	progress.Phase = PhaseProcessing
	writer := NewDurableWriter(p.writer, in.layout, p.opts.Tables)

	for i, row := range in.source.Rows {
		rowNum := i + 1

		if err := ctx.Err(); err != nil {
			result.Lookups = stats.LookupStats
			return fail(fmt.Errorf("run cancelled before row %d: %w", rowNum, err))
		}

		enriched := classifier.Classify(row)

		if !p.opts.DryRun {
			if err := writer.Write(ctx, rowNum, enriched); err != nil {
				result.Lookups = stats.LookupStats
				return fail(err)
			}
		}

		if enriched.Destination == DestFilled {
			result.Filled++
		} else {
			result.Empty++
		}

		progress.CurrentRow = rowNum
		progress.Filled = result.Filled
		progress.Empty = result.Empty
		p.observer.OnProgress(progress)
	}

	// DONE
	result.Lookups = stats.LookupStats
	result.Duration = time.Since(start)
	progress.Phase = PhaseDone
	p.observer.OnProgress(progress)

	logger.Info("run complete",
		"filled", result.Filled,
		"empty", result.Empty,
		"dry_run", result.DryRun,
		"duration", result.Duration,
	)

	return result, nil
}

// EnsureSchema runs only the INIT and SCHEMA_READY phases and returns the
// tables it created.
func (p *Pipeline) EnsureSchema(ctx context.Context) ([]string, error) {
	ctx, _ = ensureRunID(ctx)

	src, err := p.source.ReadTable(ctx, p.opts.Tables.Source)
	if err != nil {
		return nil, &LoadError{Table: p.opts.Tables.Source, Err: err}
	}

	layout, err := p.layout(src)
	if err != nil {
		return nil, err
	}

	return p.ensure(ctx, layout)
}

func (p *Pipeline) load(ctx context.Context) (*loaded, error) {
	t := p.opts.Tables
	logger := logging.FromContext(ctx)

	src, err := p.source.ReadTable(ctx, t.Source)
	if err != nil {
		return nil, &LoadError{Table: t.Source, Err: err}
	}

	layout, err := p.layout(src)
	if err != nil {
		return nil, err
	}

	regTable, err := p.source.ReadTable(ctx, t.Regulations)
	if err != nil {
		return nil, &LoadError{Table: t.Regulations, Err: err}
	}
	regs, err := RegulationsFromTable(regTable, p.opts.RegulationColumns)
	if err != nil {
		return nil, &LoadError{Table: t.Regulations, Err: err}
	}

	unitTable, err := p.source.ReadTable(ctx, t.Units)
	if err != nil {
		return nil, &LoadError{Table: t.Units, Err: err}
	}
	units, err := UnitsFromTable(unitTable, p.opts.UnitColumns)
	if err != nil {
		return nil, &LoadError{Table: t.Units, Err: err}
	}

	in := &loaded{
		source:      src,
		regulations: BuildRegulationIndex(regs),
		units:       BuildUnitIndex(units),
		layout:      layout,
	}

	if n := in.regulations.Duplicates(); n > 0 {
		logger.Warn("duplicate regulation codes, last entry wins", "table", t.Regulations, "duplicates", n)
	}
	if n := in.units.Duplicates(); n > 0 {
		logger.Warn("duplicate unit codes, last entry wins", "table", t.Units, "duplicates", n)
	}

	return in, nil
}

// layout derives the destination layout. An identity column clash is a
// configuration error and is returned as is; anything else means the
// source shape is unusable.
func (p *Pipeline) layout(src *Table) (*Layout, error) {
	caseSensitive := false
	if c, ok := p.catalog.(CaseSensitiveCatalog); ok {
		caseSensitive = c.CaseSensitiveColumns()
	}

	layout, err := NewLayout(src.Columns, p.opts.Enrichment, p.opts.Tables.IDColumn, caseSensitive)
	if err != nil {
		if errors.Is(err, ErrIDColumnClash) {
			return nil, err
		}
		return nil, &LoadError{Table: p.opts.Tables.Source, Err: err}
	}
	return layout, nil
}

func (p *Pipeline) ensure(ctx context.Context, layout *Layout) ([]string, error) {
	sync := NewSchemaSync(p.catalog)
	def := layout.Def(p.opts.Tables.IDColumn)

	var created []string
	for _, table := range []string{p.opts.Tables.Filled, p.opts.Tables.Empty} {
		ok, err := sync.Ensure(ctx, table, def)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, table)
		}
		logging.FromContext(ctx).Info("destination table ready", "table", table, "created", ok)
	}
	return created, nil
}

func ensureRunID(ctx context.Context) (context.Context, string) {
	if id := logging.RunIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return logging.ContextWithRunID(ctx, id), id
}

// lookupCounter tallies lookup outcomes for the run result.
type lookupCounter struct {
	LookupStats
}

func (c *lookupCounter) OnProgress(RunProgress) {}

func (c *lookupCounter) OnLookup(e LookupEvent) {
	switch {
	case e.Kind == LookupRegulation && e.Found:
		c.RegulationHits++
	case e.Kind == LookupRegulation:
		c.RegulationMisses++
	case e.Found:
		c.UnitHits++
	default:
		c.UnitMisses++
	}
}
