// Package fncache implements the function cache: an advisory map from a key
// fingerprint to the DataID of the stored result value.
//
// Entries are advisory in both directions. A miss forces re-evaluation; a
// stale hit yields the same logical value because registered functions are
// pure over their declared inputs. Engines must tolerate arbitrary misses,
// so every implementation is free to drop entries at any time.
//
// The cache key incorporates a version string so whole cache generations can
// be invalidated atomically: bumping the version orphans every entry written
// under the previous one.
package fncache
