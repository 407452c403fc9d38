package cas

import (
	"encoding/base64"
	"fmt"

	"lukechampine.com/blake3"
)

// SchemeBLAKE3 is the default digest scheme: BLAKE3 with a 256-bit output.
const SchemeBLAKE3 = 0

// digestSize is the output size in bytes for every supported scheme.
const digestSize = 32

// DataID identifies a CAS object. It is immutable and comparable; equality
// and map-key behavior are over the full byte content, so two IDs with
// different schemes are distinct even when their digests coincide.
//
// Byte 0 is the scheme digit, the remainder is the digest. The zero DataID
// is not a valid identifier; IsValid reports usability.
type DataID struct {
	bytes string
}

// NewDataID constructs a DataID from a scheme and digest payload. The
// payload is copied.
func NewDataID(scheme byte, payload []byte) DataID {
	b := make([]byte, 1+len(payload))
	b[0] = scheme
	copy(b[1:], payload)
	return DataID{bytes: string(b)}
}

// ParseDataID parses the textual form "<scheme-digit>~<base64url(payload)>".
func ParseDataID(s string) (DataID, error) {
	if len(s) < 2 || s[1] != '~' {
		return DataID{}, fmt.Errorf("parse data id %q: missing scheme separator", s)
	}
	if s[0] < '0' || s[0] > '9' {
		return DataID{}, fmt.Errorf("parse data id %q: scheme must be a digit", s)
	}
	payload, err := base64.URLEncoding.DecodeString(s[2:])
	if err != nil {
		return DataID{}, fmt.Errorf("parse data id %q: %w", s, err)
	}
	return NewDataID(s[0]-'0', payload), nil
}

// Scheme returns the digest scheme digit.
func (id DataID) Scheme() byte {
	if id.bytes == "" {
		return 0
	}
	return id.bytes[0]
}

// Bytes returns a copy of the full identifier bytes (scheme byte followed by
// the digest payload). This is the form folded into parent digests.
func (id DataID) Bytes() []byte {
	return []byte(id.bytes)
}

// IsValid reports whether the ID carries a payload. The zero DataID is not
// valid.
func (id DataID) IsValid() bool {
	return len(id.bytes) > 1
}

// String returns the canonical textual form, e.g. "0~sXfsG_Jt...".
func (id DataID) String() string {
	if id.bytes == "" {
		return ""
	}
	return fmt.Sprintf("%d~%s", id.bytes[0], base64.URLEncoding.EncodeToString([]byte(id.bytes[1:])))
}

// MarshalJSON encodes the textual form.
func (id DataID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON decodes the textual form. The empty string decodes to the
// zero DataID, mirroring MarshalJSON.
func (id *DataID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("unmarshal data id: not a JSON string: %s", data)
	}
	if len(data) == 2 {
		*id = DataID{}
		return nil
	}
	parsed, err := ParseDataID(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Identify computes the canonical DataID for the would-be object (refs, data)
// without writing it anywhere. The digest folds in each ref's full bytes
// (scheme byte included) in order, then the data. Every database on the same
// scheme computes the same ID; deduplication relies on nothing else.
func Identify(refs []DataID, data []byte) DataID {
	h := blake3.New(digestSize, nil)
	for _, ref := range refs {
		h.Write([]byte(ref.bytes))
	}
	h.Write(data)
	return NewDataID(SchemeBLAKE3, h.Sum(nil))
}
