// Package match implements the matched-control selection engine.
//
// Given a table of cases and a pool of candidate controls, the engine
// selects, per case, a fixed number of controls that agree exactly on
// the configured match variables, satisfy an optional extra eligibility
// condition, and - under incidence-density sampling - were still at risk
// at the case's index date.
//
// ARCHITECTURE:
//
// Two sampling disciplines, one per-case matcher interface:
//
//   - exact: a control, once assigned, is removed from the pool and never
//     eligible again. Correctness depends on serialized pool mutation, so
//     this discipline is strictly single-threaded and cases are processed
//     in input order.
//
//   - incidence_density: the pool is immutable for the whole run, cases
//     are independent, and per-case units are distributed across a fixed
//     worker pool. A control may serve several cases but appears at most
//     once within one case's matched set.
//
// Determinism: each case owns an RNG seeded from (run seed, case ordinal),
// so sampling outcomes do not depend on which worker processes a case or
// how many workers are configured. For a fixed seed and fixed inputs the
// output table is identical at any worker count.
//
// Results are reassembled in case input order even when computed out of
// order. Progress callbacks are observation only and never influence
// matching; under the parallel discipline their invocation order across
// cases is unspecified.
package match
