// Package harness runs end-to-end cohort scenarios.
//
// A scenario inlines its data files, configuration and request, then
// asserts on what the engine produced: detected structure, generated SQL,
// counts, the filter report, data shape and the prepared export.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config:
//	  primary_id_column: subject
//	tables:
//	  demographics.csv: |
//	    subject,session,age
//	    S1,1,20
//	request:
//	  age_range: [18, 65]
//	  filters:
//	    - { table: cognitive, column: score, type: range, value: [90, 120] }
//	  wide: true
//	assertions:
//	  - type: count
//	    count: 2
//	  - type: export
//	    rows: 2
//	    columns: [age_BAS1, age_BAS2]
//
// # Assertion Types
//
//   - structure: longitudinal flag and merge column
//   - count: distinct participants matching the request
//   - sql_contains: text the count SQL must contain
//   - sql_excludes: text the count SQL must not contain
//   - params: the count query's bound parameters, in order
//   - warnings: number of dropped tables, columns or filters
//   - report: remaining participants after each filter step
//   - data: rows and columns of the merged data query
//   - export: rows, columns and cells of the prepared export table
//
// Every scenario runs against a fresh in-memory SQLite engine over files
// written to a scratch directory, with a fixed clock and report id.
package harness
