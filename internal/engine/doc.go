// Package engine ties a data directory to a query executor.
//
// Open scans the directory, loads every table into the configured
// executor (SQLite or DuckDB) and prepares a query builder over the
// loaded columns. The Engine then answers the questions the tools ask:
// how many participants match, which rows match, how each filter narrows
// the cohort, and what the export file looks like.
//
// An Engine is safe for concurrent use once opened. Executors serialize
// statements on a single connection.
package engine
