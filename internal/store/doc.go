// Package store loads a scanned data directory into an in-memory SQLite
// database and executes query fragments against it.
//
// Each data file becomes one table named after its sanitized file stem.
// Columns are the sanitized headers, typed INTEGER, REAL or TEXT from the
// values they hold. Longitudinal tables that carry the primary and session
// columns but no composite id get one synthesized as "<primary>_<session>".
//
// The database lives for the lifetime of the Store and is never written to
// disk. Connections are limited to one so the in-memory database is shared
// by every statement.
package store
