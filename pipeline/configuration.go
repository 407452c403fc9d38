package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/roach88/loom/codec"
	"github.com/roach88/loom/engine"
)

// ConfigurationKey names a configuration as the set of fragment keys it is
// composed from. Each fragment key is a registered key type with its own
// engine function; the configuration function evaluates them all and
// composes the results.
type ConfigurationKey struct {
	FragmentKeys []json.RawMessage `json:"fragment_keys,omitempty"`
}

// NewConfigurationKey builds a configuration key from fragment keys.
func NewConfigurationKey(fragmentKeys ...engine.Key) (ConfigurationKey, error) {
	key := ConfigurationKey{}
	for _, fk := range fragmentKeys {
		envelope, err := codec.Marshal(fk)
		if err != nil {
			return ConfigurationKey{}, fmt.Errorf("configuration key: %w", err)
		}
		key.FragmentKeys = append(key.FragmentKeys, envelope)
	}
	return key, nil
}

// TypeIdentifier implements codec.Typed.
func (ConfigurationKey) TypeIdentifier() string { return "loom.ConfigurationKey" }

// Hash returns the short stable digest used to namespace artifact roots per
// configuration.
func (k ConfigurationKey) Hash() (string, error) {
	canonical, err := codec.Marshal(k)
	if err != nil {
		return "", fmt.Errorf("configuration hash: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:8]), nil
}

// ConfigurationValue is the composed configuration: one fragment value per
// fragment key, in key order.
type ConfigurationValue struct {
	Fragments []json.RawMessage `json:"fragments,omitempty"`
}

// TypeIdentifier implements codec.Typed.
func (ConfigurationValue) TypeIdentifier() string { return "loom.ConfigurationValue" }

// Fragment returns the fragment value with the given type identifier.
func (v ConfigurationValue) Fragment(typeID string) (codec.Typed, error) {
	for _, raw := range v.Fragments {
		typed, err := codec.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("configuration: %w", err)
		}
		if typed.TypeIdentifier() == typeID {
			return typed, nil
		}
	}
	return nil, fmt.Errorf("configuration: no fragment of type %q", typeID)
}

// configurationFunction lowers ConfigurationKey → ConfigurationValue by
// requesting every fragment key through the engine. Fragment evaluation is
// dynamic dispatch: each fragment key type carries its own function.
type configurationFunction struct{}

func (configurationFunction) Compute(ctx context.Context, fi *engine.FunctionInterface, key engine.Key) (engine.Value, error) {
	ck, err := keyAs[ConfigurationKey](key)
	if err != nil {
		return nil, err
	}

	keys := make([]engine.Key, len(ck.FragmentKeys))
	for i, raw := range ck.FragmentKeys {
		typed, err := codec.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("configuration: decode fragment key: %w", err)
		}
		fk, ok := typed.(engine.Key)
		if !ok {
			return nil, fmt.Errorf("configuration: fragment %q is not a key", typed.TypeIdentifier())
		}
		keys[i] = fk
	}

	values, err := fi.RequestAll(ctx, keys)
	if err != nil {
		return nil, err
	}

	value := &ConfigurationValue{}
	for _, fv := range values {
		envelope, err := codec.Marshal(fv)
		if err != nil {
			return nil, fmt.Errorf("configuration: %w", err)
		}
		value.Fragments = append(value.Fragments, envelope)
	}
	return value, nil
}
