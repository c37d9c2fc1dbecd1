package filter

import (
	"fmt"
)

// Problem is one shape problem found by Validate. Subject names what is
// wrong: "age", "session", "substudy" or "<table>.<column>".
type Problem struct {
	Subject string
	Message string
}

func (p Problem) String() string {
	return p.Subject + ": " + p.Message
}

// ValidationResult summarises the shape problems of a filter set.
type ValidationResult struct {
	// Valid is true when no problems were found.
	Valid bool

	Problems []Problem
}

// Validate reports every shape problem in s without stopping at the first.
//
// Validate is a pure function. Filters that fail here are skipped by the
// query builder rather than failing the whole query. Empty session and
// substudy values are reported here only; the builder binds them as given.
func Validate(s Set) ValidationResult {
	v := &validator{problems: []Problem{}}
	v.validateDemographic(s.Demographic)
	for i, b := range s.Behavioral {
		v.validateBehavioral(i, b)
	}
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []Problem
}

func (v *validator) add(subject, format string, args ...any) {
	v.problems = append(v.problems, Problem{Subject: subject, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) validateDemographic(d Demographic) {
	if d.AgeRange != nil {
		if err := CheckAge(*d.AgeRange); err != nil {
			v.add("age", "%v", err)
		}
	}
	for i, s := range d.Sessions {
		if s == "" {
			v.add("session", "session value %d is empty", i)
		}
	}
	for i, s := range d.Substudies {
		if s == "" {
			v.add("substudy", "substudy value %d is empty and matches every row", i)
		}
	}
}

func (v *validator) validateBehavioral(i int, b Behavioral) {
	if err := Check(b); err != nil {
		v.add(b.Table+"."+b.Column, "behavioral filter %d: %v", i, err)
	}
}
