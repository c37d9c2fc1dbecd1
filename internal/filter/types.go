package filter

import (
	"math"
)

// Spec is a filter specification. It is sealed to this package.
type Spec interface {
	filterNode()
}

// Criterion is the value constraint of a Behavioral filter. It is sealed to
// this package.
type Criterion interface {
	criterionNode()
}

// Kind names the kind of a filter step in a report.
type Kind string

const (
	KindAge        Kind = "age"
	KindSession    Kind = "session"
	KindSubstudy   Kind = "substudy"
	KindBehavioral Kind = "behavioral"
)

// NumericRange is an inclusive [Min, Max] interval.
type NumericRange struct {
	Min float64
	Max float64
}

// Demographic filters rows of the primary table.
//
// Each field is optional. A nil AgeRange and empty slices mean "no filter".
//
// Sessions only apply to longitudinal datasets. Substudies only apply when a
// study-site column is configured; each entry matches by containment.
type Demographic struct {
	AgeRange   *NumericRange
	Sessions   []string
	Substudies []string
}

func (Demographic) filterNode() {}

// IsEmpty reports whether no demographic constraint is set.
func (d Demographic) IsEmpty() bool {
	return d.AgeRange == nil && len(d.Sessions) == 0 && len(d.Substudies) == 0
}

// Behavioral constrains one column of one table.
type Behavioral struct {
	Table     string
	Column    string
	Criterion Criterion
}

func (Behavioral) filterNode() {}

// Range matches values in the inclusive interval [Min, Max].
type Range struct {
	Min float64
	Max float64
}

func (Range) criterionNode() {}

// Categorical matches values equal to any member of Values.
type Categorical struct {
	Values []any
}

func (Categorical) criterionNode() {}

// Set is a complete filter request: demographic constraints plus behavioral
// filters applied in order.
type Set struct {
	Demographic Demographic
	Behavioral  []Behavioral
}

// Tables returns the distinct tables referenced by behavioral filters, in
// first-seen order.
func (s Set) Tables() []string {
	seen := map[string]bool{}
	var out []string
	for _, b := range s.Behavioral {
		if !seen[b.Table] {
			seen[b.Table] = true
			out = append(out, b.Table)
		}
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
