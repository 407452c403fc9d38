package pipeline

import (
	"context"
	"fmt"

	"github.com/roach88/loom/codec"
	"github.com/roach88/loom/engine"
)

// Rule turns a configured target and its upstream providers into the
// target's own providers, registering the actions that will produce its
// artifacts along the way. A rule runs at most once per configured target:
// the invocation happens inside the memoized EvaluatedTargetKey function.
type Rule interface {
	Evaluate(ctx context.Context, rctx *RuleContext, target ConfiguredTarget) ([]Provider, error)
}

// RuleLookup resolves the rule for a configured target's type identifier.
type RuleLookup interface {
	RuleFor(targetType string) (Rule, error)
}

// RuleMap is a RuleLookup backed by a plain map, populated before the
// engine starts.
type RuleMap map[string]Rule

// RuleFor returns the rule registered for targetType.
func (m RuleMap) RuleFor(targetType string) (Rule, error) {
	rule, ok := m[targetType]
	if !ok {
		return nil, fmt.Errorf("no rule registered for target type %q", targetType)
	}
	return rule, nil
}

// EvaluatedTargetKey requests rule evaluation of a configured target.
type EvaluatedTargetKey struct {
	ConfiguredTarget ConfiguredTargetKey `json:"configured_target"`
}

// TypeIdentifier implements codec.Typed.
func (EvaluatedTargetKey) TypeIdentifier() string { return "loom.EvaluatedTargetKey" }

// String renders the key for cycle reports and logs.
func (k EvaluatedTargetKey) String() string {
	return "evaluated-target(" + k.ConfiguredTarget.Label.String() + ")"
}

// EvaluatedTargetValue is the rule's result: the target's provider map.
type EvaluatedTargetValue struct {
	Providers ProviderMap `json:"providers"`
}

// TypeIdentifier implements codec.Typed.
func (EvaluatedTargetValue) TypeIdentifier() string { return "loom.EvaluatedTargetValue" }

// RuleContext is the API surface a rule sees: upstream providers by
// dependency name, the active configuration fragments, and the
// artifact-declaration and action-registration calls. It is valid only for
// the duration of one Evaluate call.
type RuleContext struct {
	fi      *engine.FunctionInterface
	config  ConfigurationValue
	value   ConfiguredTargetValue
	root    string
	outputs map[string]bool
}

// Providers returns the provider maps of the named dependency group, in
// declaration order.
func (rc *RuleContext) Providers(name string) ([]ProviderMap, error) {
	dep, err := rc.value.Dependency(name)
	if err != nil {
		return nil, err
	}
	return dep.Providers, nil
}

// Provider returns the provider map of a single dependency group.
func (rc *RuleContext) Provider(name string) (ProviderMap, error) {
	dep, err := rc.value.Dependency(name)
	if err != nil {
		return ProviderMap{}, err
	}
	if len(dep.Providers) != 1 {
		return ProviderMap{}, fmt.Errorf("dependency group %q has %d targets, want 1", name, len(dep.Providers))
	}
	return dep.Providers[0], nil
}

// Fragment returns the active configuration fragment with the given type
// identifier.
func (rc *RuleContext) Fragment(typeID string) (codec.Typed, error) {
	return rc.config.Fragment(typeID)
}

// evaluatedTargetFunction lowers EvaluatedTargetKey → EvaluatedTargetValue:
// request the configured target and configuration, look up the rule for the
// target's type, run it, and package its providers.
type evaluatedTargetFunction struct {
	rules RuleLookup
}

func (f evaluatedTargetFunction) Compute(ctx context.Context, fi *engine.FunctionInterface, key engine.Key) (engine.Value, error) {
	ek, err := keyAs[EvaluatedTargetKey](key)
	if err != nil {
		return nil, err
	}
	ck := ek.ConfiguredTarget

	ctValue, err := fi.Request(ctx, &ck)
	if err != nil {
		return nil, err
	}
	ctv, ok := ctValue.(*ConfiguredTargetValue)
	if !ok {
		return nil, fmt.Errorf("evaluate %s: configured target returned %T", ck.Label, ctValue)
	}

	cfgValue, err := fi.Request(ctx, &ck.Configuration)
	if err != nil {
		return nil, err
	}
	cfg, ok := cfgValue.(*ConfigurationValue)
	if !ok {
		return nil, fmt.Errorf("evaluate %s: configuration returned %T", ck.Label, cfgValue)
	}

	target, err := ctv.DecodeTarget()
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", ck.Label, err)
	}

	rule, err := f.rules.RuleFor(target.TypeIdentifier())
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", ck.Label, err)
	}

	root, err := artifactRoot(ck)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", ck.Label, err)
	}
	rctx := &RuleContext{
		fi:      fi,
		config:  *cfg,
		value:   *ctv,
		root:    root,
		outputs: make(map[string]bool),
	}

	providers, err := rule.Evaluate(ctx, rctx, target)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", ck.Label, err)
	}

	pm, err := NewProviderMap(providers...)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", ck.Label, err)
	}
	return &EvaluatedTargetValue{Providers: pm}, nil
}
