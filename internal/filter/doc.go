// Package filter defines the filter specifications a cohort query is built from.
//
// Filter specs form a closed tagged union. Spec is sealed with a marker
// method so only types in this package implement it, which keeps type
// switches in the query builder exhaustive:
//
//	Spec
//	├── Demographic   age range, sessions, substudies
//	└── Behavioral    one (table, column) predicate
//	      Criterion
//	      ├── Range        min < max, bound as BETWEEN ? AND ?
//	      └── Categorical  non-empty list, bound as IN (?, ...)
//
// Filters carry values only. Table and column names are untrusted and are
// validated by the ident package when a query is built.
package filter
