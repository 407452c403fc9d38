package fncache

import (
	"context"

	"github.com/roach88/loom/cas"
)

// Props are the declared properties folded into a cache entry's location.
type Props struct {
	// Version names the cache generation. Changing it invalidates every
	// entry written under the old version without touching their storage.
	Version string
}

// Cache maps (fingerprint, version) to the DataID of a previously computed
// value. Per-entry updates are atomic; there is no ordering across entries.
type Cache interface {
	// Get returns the DataID recorded for fingerprint, or ok=false on a
	// miss. A miss is never an error.
	Get(ctx context.Context, fingerprint string, props Props) (id cas.DataID, ok bool, err error)

	// Update records id for fingerprint, overwriting any previous entry at
	// the same (fingerprint, version).
	Update(ctx context.Context, fingerprint string, props Props, id cas.DataID) error

	// Close releases underlying resources.
	Close() error
}
