// Package dataset defines the foundational types shared by every cohort
// component: merge keys, in-memory tables and the error taxonomy.
//
// This package has no internal dependencies. Everything else in the module
// builds on it:
//
//	ident      → dataset (errors)
//	structure  → dataset (MergeKeys)
//	querysql   → dataset, ident, filter
//	reshape    → dataset
//	report     → dataset, querysql
//
// Cell values held in a Table are one of nil (missing), string, int64,
// float64 or bool. Helpers in value.go normalise anything else a driver
// may hand back ([]byte, int, float32) into that set.
package dataset
