// Package engine implements the loom evaluation engine.
//
// The engine turns KEYS into VALUES through user-registered functions,
// deduplicating in-flight requests, detecting dependency cycles, and
// memoizing results through the function cache and the CAS.
//
// ARCHITECTURE:
//
// Demand-driven evaluation:
// A client calls Build with a top-level key. The engine fingerprints the
// key, consults the function cache, and on a miss dispatches to the function
// registered for the key's type. Functions receive a FunctionInterface whose
// Request method recurses through the same engine, so every subrequest is
// itself deduplicated and memoized.
//
// Evaluation flow:
//  1. Fingerprint the key (content-only, no address identity)
//  2. Record a dependency edge from the requesting key; reject cycles
//  3. Join an in-flight evaluation for the same fingerprint, if any
//  4. Consult the function cache; on hit, load the value from CAS
//  5. On miss, invoke the registered function
//  6. Serialize the result to CAS, update the cache, release waiters
//
// The dependency edge is recorded BEFORE joining an in-flight evaluation:
// a requester inside the promised key's own dependency chain must fail with
// a cycle error, not block forever on a promise that can never complete.
//
// CRITICAL PATTERNS:
//
// Dedup is strictly by fingerprint. Concurrent requests for one fingerprint
// share a single evaluation; distinct keys proceed independently. Results
// are memoized before any waiter observes them, so a later identical request
// never re-evaluates.
//
// Failed evaluations are NEVER cached. The error is the result for that key;
// dependents observe it immediately and the engine does not retry.
//
// The dependency graph is scoped per top-level request (identified by a
// request token), so unrelated builds cannot falsely alias cycles.
package engine
