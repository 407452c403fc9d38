package pipeline

import (
	"fmt"

	"github.com/roach88/loom/codec"
	"github.com/roach88/loom/engine"
	"github.com/roach88/loom/executor"
)

func init() {
	codec.Register(ConfigurationKey{})
	codec.Register(ConfigurationValue{})
	codec.Register(ConfiguredTargetKey{})
	codec.Register(ConfiguredTargetValue{})
	codec.Register(EvaluatedTargetKey{})
	codec.Register(EvaluatedTargetValue{})
	codec.Register(ArtifactKey{})
	codec.Register(ArtifactValue{})
	codec.Register(Action{})
	codec.Register(ActionExecutionKey{})
	codec.Register(ActionExecutionValue{})
}

// Delegates are the application-supplied collaborators of the lowering
// pipeline.
type Delegates struct {
	ConfiguredTarget ConfiguredTargetDelegate
	Rules            RuleLookup
	Executor         executor.Executor
}

// Install wires the five built-in pipeline functions into a function map.
// The application adds its own fragment-key functions (and any custom key
// types) to the same map before constructing the engine.
func Install(m engine.FunctionMap, d Delegates) {
	m[ConfigurationKey{}.TypeIdentifier()] = configurationFunction{}
	m[ConfiguredTargetKey{}.TypeIdentifier()] = configuredTargetFunction{delegate: d.ConfiguredTarget}
	m[EvaluatedTargetKey{}.TypeIdentifier()] = evaluatedTargetFunction{rules: d.Rules}
	m[ArtifactKey{}.TypeIdentifier()] = artifactFunction{}
	m[ActionExecutionKey{}.TypeIdentifier()] = actionExecutionFunction{exec: d.Executor}
}

// keyAs normalizes the engine's key argument to *T, accepting both the
// pointer form produced by codec.Unmarshal and the value form callers
// construct directly.
func keyAs[T any](key engine.Key) (*T, error) {
	if p, ok := any(key).(*T); ok {
		return p, nil
	}
	if v, ok := any(key).(T); ok {
		return &v, nil
	}
	return nil, fmt.Errorf("unexpected key type %T", key)
}
