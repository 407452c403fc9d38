package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/loom/cas"
	"github.com/roach88/loom/codec"
	"github.com/roach88/loom/engine"
	"github.com/roach88/loom/label"
)

// ConfiguredTarget is the polymorphic target-after-configuration type
// supplied by the application's delegate. The type identifier doubles as
// the rule dispatch key.
type ConfiguredTarget interface {
	codec.Typed
}

// DependencyGroup names a group of dependency labels declared by a
// configured target ("deps", "tool", ...). Single groups carry exactly one
// label; list groups carry any number.
type DependencyGroup struct {
	Name   string
	Single bool
	Labels []label.Label
}

// ConfiguredTargetDelegate resolves a (workspace, label, configuration)
// triple into a configured target and its named dependency labels. This is
// the application's entry point into the lowering pipeline: everything
// loom needs to know about workspace layout and target syntax lives behind
// this interface.
type ConfiguredTargetDelegate interface {
	ConfiguredTarget(ctx context.Context, fi *engine.FunctionInterface, key *ConfiguredTargetKey) (ConfiguredTarget, []DependencyGroup, error)
}

// ConfiguredTargetKey requests configuration of one label in one workspace.
type ConfiguredTargetKey struct {
	RootID        cas.DataID       `json:"root_id"`
	Label         label.Label      `json:"label"`
	Configuration ConfigurationKey `json:"configuration"`
}

// TypeIdentifier implements codec.Typed.
func (ConfiguredTargetKey) TypeIdentifier() string { return "loom.ConfiguredTargetKey" }

// String renders the key for cycle reports and logs.
func (k ConfiguredTargetKey) String() string {
	return "configured-target(" + k.Label.String() + ")"
}

// NamedDependency packages the evaluated providers of one dependency group.
type NamedDependency struct {
	Name      string        `json:"name"`
	Single    bool          `json:"single,omitempty"`
	Providers []ProviderMap `json:"providers,omitempty"`
}

// ConfiguredTargetValue pairs the delegate's configured target with the
// provider maps of its evaluated dependencies.
type ConfiguredTargetValue struct {
	Target       json.RawMessage   `json:"target"`
	Dependencies []NamedDependency `json:"dependencies,omitempty"`
}

// TypeIdentifier implements codec.Typed.
func (ConfiguredTargetValue) TypeIdentifier() string { return "loom.ConfiguredTargetValue" }

// DecodeTarget unwraps the polymorphic configured target.
func (v ConfiguredTargetValue) DecodeTarget() (ConfiguredTarget, error) {
	typed, err := codec.Unmarshal(v.Target)
	if err != nil {
		return nil, fmt.Errorf("configured target: %w", err)
	}
	target, ok := typed.(ConfiguredTarget)
	if !ok {
		return nil, fmt.Errorf("configured target: %q is not a configured target", typed.TypeIdentifier())
	}
	return target, nil
}

// Dependency returns the named dependency group, or an error when the
// target declared none under that name.
func (v ConfiguredTargetValue) Dependency(name string) (NamedDependency, error) {
	for _, dep := range v.Dependencies {
		if dep.Name == name {
			return dep, nil
		}
	}
	return NamedDependency{}, fmt.Errorf("configured target: no dependency group %q", name)
}

// configuredTargetFunction lowers ConfiguredTargetKey →
// ConfiguredTargetValue: delegate lookup, then recursive evaluation of
// every dependency label under the same configuration. Dependency groups
// evaluate in parallel; within a group, label order is preserved.
type configuredTargetFunction struct {
	delegate ConfiguredTargetDelegate
}

func (f configuredTargetFunction) Compute(ctx context.Context, fi *engine.FunctionInterface, key engine.Key) (engine.Value, error) {
	ck, err := keyAs[ConfiguredTargetKey](key)
	if err != nil {
		return nil, err
	}

	target, groups, err := f.delegate.ConfiguredTarget(ctx, fi, ck)
	if err != nil {
		return nil, fmt.Errorf("configure %s: %w", ck.Label, err)
	}

	var depKeys []engine.Key
	for _, group := range groups {
		if group.Single && len(group.Labels) != 1 {
			return nil, fmt.Errorf("configure %s: single dependency group %q has %d labels", ck.Label, group.Name, len(group.Labels))
		}
		for _, depLabel := range group.Labels {
			depKeys = append(depKeys, &EvaluatedTargetKey{
				ConfiguredTarget: ConfiguredTargetKey{
					RootID:        ck.RootID,
					Label:         depLabel,
					Configuration: ck.Configuration,
				},
			})
		}
	}

	depValues, err := fi.RequestAll(ctx, depKeys)
	if err != nil {
		return nil, err
	}

	value := &ConfiguredTargetValue{}
	value.Target, err = codec.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("configure %s: %w", ck.Label, err)
	}

	next := 0
	for _, group := range groups {
		dep := NamedDependency{Name: group.Name, Single: group.Single}
		for range group.Labels {
			etv, ok := depValues[next].(*EvaluatedTargetValue)
			if !ok {
				return nil, fmt.Errorf("configure %s: dependency %q returned %T", ck.Label, group.Name, depValues[next])
			}
			dep.Providers = append(dep.Providers, etv.Providers)
			next++
		}
		value.Dependencies = append(value.Dependencies, dep)
	}

	return value, nil
}
