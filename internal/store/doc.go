// Package store provides SQLite-backed storage for cohort tables.
//
// The matching engine itself is storage-agnostic: it consumes and
// produces cohort.Table values. This package is the thin adapter that
// reads input tables from, and writes matched output back to, a SQLite
// database opened or created from a filesystem path.
//
// Identifiers (table and column names) are allow-listed and quoted;
// data values are always parameterized.
package store
