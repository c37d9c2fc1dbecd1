package filter

import (
	"fmt"
	"strings"

	"github.com/roach88/cohort/internal/dataset"
)

// maxListedValues is the number of categorical values spelled out in a
// description before it switches to a count.
const maxListedValues = 3

// DescribeAge describes an age filter, e.g. "Age filter: 18-65 years".
func DescribeAge(r NumericRange) string {
	return fmt.Sprintf("Age filter: %s-%s years", dataset.Format(r.Min), dataset.Format(r.Max))
}

// DescribeSessions describes a session filter, e.g. "Session filter: 1, 2".
func DescribeSessions(sessions []string) string {
	return "Session filter: " + strings.Join(sessions, ", ")
}

// DescribeSubstudies describes a substudy filter.
func DescribeSubstudies(substudies []string) string {
	return "Substudy filter: " + strings.Join(substudies, ", ")
}

// Describe describes a behavioral filter:
//
//	cognitive.score: 90-120
//	cognitive.group: A, B
//	cognitive.group: 5 values
func Describe(b Behavioral) string {
	prefix := b.Table + "." + b.Column + ": "
	switch c := b.Criterion.(type) {
	case Range:
		return prefix + dataset.Format(c.Min) + "-" + dataset.Format(c.Max)
	case *Range:
		return prefix + dataset.Format(c.Min) + "-" + dataset.Format(c.Max)
	case Categorical:
		return prefix + describeValues(c.Values)
	case *Categorical:
		return prefix + describeValues(c.Values)
	}
	return prefix + "unknown filter"
}

func describeValues(values []any) string {
	if len(values) > maxListedValues {
		return fmt.Sprintf("%d values", len(values))
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = dataset.Format(v)
	}
	return strings.Join(parts, ", ")
}
