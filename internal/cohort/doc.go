// Package cohort provides the tabular data model shared by the matching
// engine and its collaborators.
//
// This package contains value and table types only. All other internal
// packages import cohort; cohort imports nothing internal. This keeps the
// data model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Value is a sealed interface (Null, String, Int, Float, Bool, Date)
//   - Strings are NFC-normalized so exact equality is representation-safe
//   - Dates are civil dates; no time-of-day, no timezone
//   - Tables are ordered; row order carries the engine's ordering contract
package cohort
