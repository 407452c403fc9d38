// Package codec provides the serialization layer shared by every persisted
// key and value in loom.
//
// Two pieces live here:
//
// Canonical JSON:
// MarshalCanonical renders any JSON-marshalable value into the RFC 8785
// canonical profile. This is the ONLY serialization used for content-addressed
// identity (fingerprints, CAS payloads). Key properties:
//   - Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//   - No HTML escaping (< > & are NOT escaped)
//   - Strings NFC normalized
//   - No floats, no null (both are errors)
//
// Polymorphic registry:
// Persisted payloads carry a string type identifier so a value can be
// deserialized without static type information at the call site. The
// application registers each concrete type once at startup with Register;
// Marshal wraps the canonical payload in an envelope {"*": id, "data": ...}
// and Unmarshal dispatches through the registry. Unknown identifiers are a
// hard error, never a silent pass-through.
//
// The registry is process-wide. Registration after init is guarded by a
// mutex; deregistration is not supported.
package codec
