package core

import (
	"fmt"
	"log/slog"
)

// LookupKind names the reference relation a lookup went to.
type LookupKind string

const (
	LookupRegulation LookupKind = "regulation"
	LookupUnit       LookupKind = "unit"
)

// LookupEvent reports the outcome of one reference lookup.
type LookupEvent struct {
	Kind   LookupKind
	Code   string
	Found  bool
	Name   string // regulation title or unit name
	Detail string // regulation annotation or unit short name
}

// Message renders the event as a human-readable diagnostic, e.g.
// "resolved regulation: GOST-1 → Title1, Ann1" or "unit not resolved: U9".
func (e LookupEvent) Message() string {
	if e.Found {
		return fmt.Sprintf("resolved %s: %s → %s, %s", e.Kind, e.Code, e.Name, e.Detail)
	}
	return fmt.Sprintf("%s not resolved: %s", e.Kind, e.Code)
}

// Observer receives progress updates and lookup diagnostics. It is purely
// informational and must not influence control flow.
type Observer interface {
	OnProgress(RunProgress)
	OnLookup(LookupEvent)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) OnProgress(RunProgress) {}
func (NopObserver) OnLookup(LookupEvent)   {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (obs Observers) OnProgress(p RunProgress) {
	for _, o := range obs {
		o.OnProgress(p)
	}
}

func (obs Observers) OnLookup(e LookupEvent) {
	for _, o := range obs {
		o.OnLookup(e)
	}
}

// LogObserver writes lookup diagnostics at debug level and progress at info
// level every Every rows, plus every phase change.
type LogObserver struct {
	Logger *slog.Logger
	Every  int

	lastPhase Phase
}

// NewLogObserver creates a LogObserver. every <= 0 logs only phase changes.
func NewLogObserver(logger *slog.Logger, every int) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{Logger: logger, Every: every}
}

func (l *LogObserver) OnLookup(e LookupEvent) {
	l.Logger.Debug(e.Message(), "kind", string(e.Kind), "code", e.Code, "found", e.Found)
}

func (l *LogObserver) OnProgress(p RunProgress) {
	phaseChanged := p.Phase != l.lastPhase
	l.lastPhase = p.Phase

	periodic := p.Phase == PhaseProcessing && l.Every > 0 && p.CurrentRow > 0 &&
		(p.CurrentRow%l.Every == 0 || p.CurrentRow == p.TotalRows)

	if !phaseChanged && !periodic {
		return
	}

	if p.Phase == PhaseFailed {
		l.Logger.Error("run failed",
			"row", p.CurrentRow,
			"total", p.TotalRows,
			"error", p.Error,
		)
		return
	}

	l.Logger.Info("progress",
		"phase", string(p.Phase),
		"row", p.CurrentRow,
		"total", p.TotalRows,
		"percent", p.Percent(),
		"filled", p.Filled,
		"empty", p.Empty,
	)
}
