package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/loom/codec"
)

// Provider is an immutable, typed record published by a rule as the public
// interface of its evaluated target. Dependents read upstream providers by
// type identifier; the concrete struct is whatever the rule registered with
// the codec.
type Provider interface {
	codec.Typed
}

// ProviderMap holds at most one provider per type. It serializes as the
// list of provider envelopes sorted by type identifier, so equal maps
// digest equally.
type ProviderMap struct {
	Providers []json.RawMessage `json:"providers,omitempty"`
}

// NewProviderMap builds a map from providers, rejecting duplicate types.
func NewProviderMap(providers ...Provider) (ProviderMap, error) {
	byType := make(map[string]json.RawMessage, len(providers))
	for _, p := range providers {
		id := p.TypeIdentifier()
		if _, dup := byType[id]; dup {
			return ProviderMap{}, fmt.Errorf("provider map: duplicate provider type %q", id)
		}
		envelope, err := codec.Marshal(p)
		if err != nil {
			return ProviderMap{}, fmt.Errorf("provider map: %w", err)
		}
		byType[id] = envelope
	}

	ids := make([]string, 0, len(byType))
	for id := range byType {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	m := ProviderMap{}
	for _, id := range ids {
		m.Providers = append(m.Providers, byType[id])
	}
	return m, nil
}

// Get returns the provider with the given type identifier, or an error when
// the map holds none.
func (m ProviderMap) Get(typeID string) (Provider, error) {
	for _, raw := range m.Providers {
		typed, err := codec.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("provider map: %w", err)
		}
		if typed.TypeIdentifier() == typeID {
			return typed, nil
		}
	}
	return nil, fmt.Errorf("provider map: no provider of type %q", typeID)
}

// Has reports whether the map holds a provider of the given type.
func (m ProviderMap) Has(typeID string) bool {
	_, err := m.Get(typeID)
	return err == nil
}
