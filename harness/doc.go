// Package harness runs declarative engine scenarios for tests.
//
// A scenario is a YAML document describing a small build graph of named
// cells (literals, sums, concatenations), the cells to request, and
// optionally the values to expect. The harness evaluates the requests
// against a fresh in-memory engine and produces a deterministic snapshot:
// the value of every requested cell plus how many times each evaluated
// cell's function actually ran.
//
// Snapshots are compared against golden files with goldie. To regenerate:
//
//	go test ./harness -update
//
// Golden files are the source of truth for memoization behavior: a cell
// evaluating twice where the golden file says once is a real regression,
// not a flaky test.
package harness
