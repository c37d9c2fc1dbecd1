package filter

import (
	"fmt"

	"github.com/roach88/cohort/internal/dataset"
)

// Check validates the shape of a behavioral filter.
//
// A Range needs finite bounds with Min < Max. A Categorical needs at least
// one value and every value must be a scalar. Check does not look at the
// table or column names.
func Check(b Behavioral) error {
	op := fmt.Sprintf("check filter %s.%s", b.Table, b.Column)
	if b.Table == "" || b.Column == "" {
		return dataset.NewValidationError(op, "table and column are required", nil)
	}

	switch c := b.Criterion.(type) {
	case Range:
		return checkRange(op, c)
	case *Range:
		if c == nil {
			return dataset.NewValidationError(op, "nil range", nil)
		}
		return checkRange(op, *c)
	case Categorical:
		return checkCategorical(op, c)
	case *Categorical:
		if c == nil {
			return dataset.NewValidationError(op, "nil categorical", nil)
		}
		return checkCategorical(op, *c)
	case nil:
		return dataset.NewValidationError(op, "criterion is required", nil)
	default:
		return dataset.NewValidationError(op, fmt.Sprintf("unsupported criterion type %T", c), nil)
	}
}

// CheckAge validates a demographic age range. Unlike behavioral ranges a
// single-year range (Min == Max) is allowed.
func CheckAge(r NumericRange) error {
	if !finite(r.Min) || !finite(r.Max) {
		return dataset.NewValidationError("check age range", "bounds must be finite numbers", nil)
	}
	if r.Min > r.Max {
		return dataset.NewValidationError("check age range",
			fmt.Sprintf("minimum %s exceeds maximum %s", dataset.Format(r.Min), dataset.Format(r.Max)), nil)
	}
	return nil
}

func checkRange(op string, r Range) error {
	if !finite(r.Min) || !finite(r.Max) {
		return dataset.NewValidationError(op, "range bounds must be finite numbers", nil)
	}
	if r.Min >= r.Max {
		return dataset.NewValidationError(op,
			fmt.Sprintf("range minimum %s must be less than maximum %s", dataset.Format(r.Min), dataset.Format(r.Max)), nil)
	}
	return nil
}

func checkCategorical(op string, c Categorical) error {
	if len(c.Values) == 0 {
		return dataset.NewValidationError(op, "categorical filter needs at least one value", nil)
	}
	for i, v := range c.Values {
		switch dataset.Normalize(v).(type) {
		case string, int64, float64, bool:
		default:
			return dataset.NewValidationError(op, fmt.Sprintf("value %d has unsupported type %T", i, v), nil)
		}
	}
	return nil
}

// ParseBehavioral builds a Behavioral filter from loosely typed input, as
// found in parameter files and UI state.
//
// kind is "range" or "categorical". A range value must be a two-element
// list of numbers; a categorical value must be a non-empty list.
func ParseBehavioral(table, column, kind string, value any) (Behavioral, error) {
	b := Behavioral{Table: table, Column: column}
	op := fmt.Sprintf("parse filter %s.%s", table, column)

	list, ok := toList(value)
	if !ok {
		return Behavioral{}, dataset.NewValidationError(op, fmt.Sprintf("value must be a list, got %T", value), nil)
	}

	switch kind {
	case "range":
		if len(list) != 2 {
			return Behavioral{}, dataset.NewValidationError(op, "range needs exactly two values", nil)
		}
		lo, okLo := numeric(list[0])
		hi, okHi := numeric(list[1])
		if !okLo || !okHi {
			return Behavioral{}, dataset.NewValidationError(op, "range values must be numeric", nil)
		}
		b.Criterion = Range{Min: lo, Max: hi}
	case "categorical":
		b.Criterion = Categorical{Values: list}
	default:
		return Behavioral{}, dataset.NewValidationError(op, fmt.Sprintf("unknown filter type %q", kind), nil)
	}

	if err := Check(b); err != nil {
		return Behavioral{}, err
	}
	return b, nil
}

// KindOf returns "range" or "categorical" for a criterion.
func KindOf(c Criterion) string {
	switch c.(type) {
	case Range, *Range:
		return "range"
	case Categorical, *Categorical:
		return "categorical"
	}
	return ""
}

func toList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, true
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out, true
	}
	return nil, false
}

// numeric accepts numbers only. Numeric-looking strings are rejected so a
// typo in a parameter file is reported rather than coerced.
func numeric(v any) (float64, bool) {
	if _, isString := v.(string); isString {
		return 0, false
	}
	return dataset.ToFloat(v)
}
