// Package cas implements content-addressable storage for loom.
//
// Objects are immutable pairs of (refs, data): an ordered list of DataIDs
// pointing at other objects, plus an opaque byte payload. The object's own
// DataID is a canonical digest over both components, so equal content always
// deduplicates to one identity and objects form a Merkle DAG. Writes are by
// ID, which makes reference cycles unreachable by construction.
//
// A DataID is scheme-tagged: byte 0 selects the digest algorithm, the rest
// is the digest. Scheme 0 is BLAKE3-256. The textual form is
// "<scheme-digit>~<base64url(digest)>" and round-trips exactly, including
// through JSON.
//
// Three reference databases implement the Database contract:
//
//   - in-memory (mem://): a mutex-protected map, for tests and scratch builds
//   - file-backed (file://): one file per object under a root directory
//   - SQLite (sqlite://): a single-file database in WAL mode
//
// All three are ID-preserving: PutID verifies the caller's ID against the
// canonical digest and rejects mismatches. Open selects a database by
// scheme URL.
package cas
