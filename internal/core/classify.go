package core

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

// Enrichment holds the four denormalized reference fields. A field stays
// NULL unless its lookup matched.
type Enrichment struct {
	RegulationTitle      pgtype.Text
	RegulationAnnotation pgtype.Text
	UnitName             pgtype.Text
	UnitShort            pgtype.Text
}

// EnrichedRow is a source row tagged with its destination and the resolved
// reference fields. It is built fresh for every row; the source row is
// shared read-only.
type EnrichedRow struct {
	Source      Row
	Enrichment  Enrichment
	Destination Destination
}

// Classifier routes source rows to the filled or empty destination and
// resolves their reference fields.
type Classifier struct {
	regulationPos int
	parametersPos int
	baseUnitPos   int

	regulations *RegulationIndex
	units       *UnitIndex
	observer    Observer
}

// NewClassifier binds the classification fields to positions in the source columns.
// A nil observer discards lookup events.
func NewClassifier(columns []string, fields Fields, regulations *RegulationIndex, units *UnitIndex, observer Observer) (*Classifier, error) {
	idx := MakeHeaderIndex(columns)

	pos := make([]int, 3)
	for i, name := range []string{fields.Regulation, fields.Parameters, fields.BaseUnit} {
		p, ok := idx.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		pos[i] = p
	}

	if observer == nil {
		observer = NopObserver{}
	}

	return &Classifier{
		regulationPos: pos[0],
		parametersPos: pos[1],
		baseUnitPos:   pos[2],
		regulations:   regulations,
		units:         units,
		observer:      observer,
	}, nil
}

// Complete reports whether both the regulation code and the parameters are
// present. A blank cell (see Blank) counts as absent. No other column
// affects the outcome.
func (c *Classifier) Complete(row Row) bool {
	return !Blank(cell(row, c.regulationPos)) && !Blank(cell(row, c.parametersPos))
}

// Classify decides the destination of row and resolves its enrichment.
//
// Complete rows get both the regulation and the unit lookup and go to the
// filled table. Incomplete rows get only the unit lookup and go to the
// empty table; their regulation fields are always NULL.
func (c *Classifier) Classify(row Row) EnrichedRow {
	out := EnrichedRow{Source: row, Destination: DestEmpty}

	if c.Complete(row) {
		out.Destination = DestFilled
		c.resolveRegulation(normalizeKey(textValue(cell(row, c.regulationPos))), &out.Enrichment)
	}
	c.resolveUnit(cell(row, c.baseUnitPos), &out.Enrichment)

	return out
}

func (c *Classifier) resolveRegulation(code string, e *Enrichment) {
	reg, ok := c.regulations.Lookup(code)
	if !ok {
		c.observer.OnLookup(LookupEvent{Kind: LookupRegulation, Code: code})
		return
	}

	e.RegulationTitle = reg.Title
	e.RegulationAnnotation = reg.Annotation
	c.observer.OnLookup(LookupEvent{
		Kind:   LookupRegulation,
		Code:   code,
		Found:  true,
		Name:   textValue(reg.Title),
		Detail: textValue(reg.Annotation),
	})
}

func (c *Classifier) resolveUnit(cellValue pgtype.Text, e *Enrichment) {
	code := normalizeKey(textValue(cellValue))
	unit, ok := c.units.Lookup(code)
	if !ok {
		c.observer.OnLookup(LookupEvent{Kind: LookupUnit, Code: code})
		return
	}

	e.UnitName = unit.Name
	e.UnitShort = unit.Short
	c.observer.OnLookup(LookupEvent{
		Kind:   LookupUnit,
		Code:   code,
		Found:  true,
		Name:   textValue(unit.Name),
		Detail: textValue(unit.Short),
	})
}
