package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/loom/cas"
	"github.com/roach88/loom/codec"
)

// Key is a request: any codec-registered type. Fingerprinting and storage
// go through the key's canonical envelope, so two keys with equal content
// are one key regardless of address identity.
type Key interface {
	codec.Typed
}

// Value is a result: any codec-registered type.
type Value interface {
	codec.Typed
}

// Result pairs a computed value with the DataID it is stored under.
type Result struct {
	Value Value
	ID    cas.DataID
}

// Function computes the value for a key. Implementations must be pure over
// their declared inputs: the engine caches results by key fingerprint and
// will not re-invoke on a hit. Subrequests go through fi so the engine can
// track dependency edges.
type Function interface {
	Compute(ctx context.Context, fi *FunctionInterface, key Key) (Value, error)
}

// FunctionLookup resolves the function responsible for a key type. This is
// the engine's function-lookup delegate; the pipeline installs the built-in
// lowering functions through it and applications add their own.
type FunctionLookup interface {
	FunctionFor(typeID string) (Function, error)
}

// FunctionMap is a FunctionLookup backed by a plain map. It is populated
// before the engine starts and read-only afterwards.
type FunctionMap map[string]Function

// FunctionFor returns the function registered for typeID.
func (m FunctionMap) FunctionFor(typeID string) (Function, error) {
	fn, ok := m[typeID]
	if !ok {
		return nil, fmt.Errorf("no function registered for key type %q", typeID)
	}
	return fn, nil
}

// Domain prefix for key fingerprints. The version suffix enables future
// algorithm migration without colliding with old cache generations.
const keyDomain = "loom/key/v1"

// fingerprint computes the stable hash identifying a key's content:
// SHA-256 with domain separation over the key's canonical envelope. The
// null byte prevents domain/payload boundary ambiguity.
func fingerprint(key Key) (string, error) {
	envelope, err := codec.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("fingerprint %q: %w", key.TypeIdentifier(), err)
	}

	h := sha256.New()
	h.Write([]byte(keyDomain))
	h.Write([]byte{0x00})
	h.Write(envelope)
	return hex.EncodeToString(h.Sum(nil)), nil
}
