package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/loom/cas"
	"github.com/roach88/loom/codec"
	"github.com/roach88/loom/engine"
	"github.com/roach88/loom/executor"
)

// Action is the closed, content-addressed record a rule registers: the
// spec, the input artifacts it consumes, and the outputs it produces.
// Two actions with identical records and identical input contents yield
// the same cached result.
type Action struct {
	Spec        executor.ActionSpec `json:"spec"`
	Inputs      []Artifact          `json:"inputs,omitempty"`
	Outputs     []executor.Output   `json:"outputs"`
	Mnemonic    string              `json:"mnemonic,omitempty"`
	Description string              `json:"description,omitempty"`
}

// TypeIdentifier implements codec.Typed.
func (Action) TypeIdentifier() string { return "loom.Action" }

// DeclareArtifact declares a future output in the rule's namespace. The
// returned artifact is a placeholder: it must be passed to RegisterAction
// as an output before anything can request it.
func (rc *RuleContext) DeclareArtifact(p string, typ executor.ArtifactType) (Artifact, error) {
	if err := validateArtifactPath(p); err != nil {
		return Artifact{}, fmt.Errorf("declare artifact: %w", err)
	}
	return Artifact{Root: rc.root, Path: p, Type: typ}, nil
}

// RegisterAction records the action producing the given declared outputs.
// The environment is sorted by name before the record is stored, so specs
// differing only in env order are one action. It returns the outputs with
// their owner resolved; rules publish THOSE artifacts in providers, not the
// placeholders they declared.
//
// Each output path may be produced by at most one action per target.
func (rc *RuleContext) RegisterAction(ctx context.Context, spec executor.ActionSpec, inputs []Artifact, outputs []Artifact, mnemonic, description string) ([]Artifact, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("register action: no outputs")
	}

	record := Action{
		Spec:        spec,
		Inputs:      inputs,
		Mnemonic:    mnemonic,
		Description: description,
	}
	sort.Slice(record.Spec.Environment, func(i, j int) bool {
		return record.Spec.Environment[i].Name < record.Spec.Environment[j].Name
	})

	for _, out := range outputs {
		if out.Root != rc.root {
			return nil, fmt.Errorf("register action: output %q was not declared by this rule", out.Path)
		}
		if out.ID.IsValid() || out.ActionID.IsValid() {
			return nil, fmt.Errorf("register action: output %q is already resolved", out.Path)
		}
		if rc.outputs[out.Path] {
			return nil, fmt.Errorf("register action: output %q produced by two actions", out.Path)
		}
		rc.outputs[out.Path] = true
		record.Outputs = append(record.Outputs, executor.Output{Path: out.FullPath(), Type: out.Type})
	}

	envelope, err := codec.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("register action: %w", err)
	}
	actionID, err := rc.fi.Database().Put(ctx, nil, envelope)
	if err != nil {
		return nil, fmt.Errorf("register action: %w", err)
	}

	owned := make([]Artifact, len(outputs))
	for i, out := range outputs {
		out.ActionID = actionID
		out.OutputIndex = i
		owned[i] = out
	}
	return owned, nil
}

// loadAction fetches and decodes a registered action record.
func loadAction(ctx context.Context, db cas.Database, id cas.DataID) (*Action, error) {
	obj, err := db.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, &cas.MissingError{ID: id}
	}
	typed, err := codec.Unmarshal(obj.Data)
	if err != nil {
		return nil, err
	}
	record, ok := typed.(*Action)
	if !ok {
		return nil, fmt.Errorf("object %s is %q, not an action", id, typed.TypeIdentifier())
	}
	return record, nil
}

// ActionExecutionKey requests one execution of a fully resolved action:
// every input has a DataID. Function-cache memoization at this layer is
// what makes execution at-most-once per (spec, input IDs) tuple.
type ActionExecutionKey struct {
	Spec    executor.ActionSpec `json:"spec"`
	Inputs  []executor.Input    `json:"inputs,omitempty"`
	Outputs []executor.Output   `json:"outputs"`
}

// TypeIdentifier implements codec.Typed.
func (ActionExecutionKey) TypeIdentifier() string { return "loom.ActionExecutionKey" }

// String renders the key for cycle reports and logs.
func (k ActionExecutionKey) String() string {
	if len(k.Spec.Arguments) == 0 {
		return "action-execution()"
	}
	return "action-execution(" + k.Spec.Arguments[0] + ")"
}

// ActionExecutionValue reports a completed execution: output DataIDs in
// declared order, the exit code, and the captured stdout.
type ActionExecutionValue struct {
	Outputs  []cas.DataID `json:"outputs"`
	ExitCode int          `json:"exit_code"`
	StdoutID cas.DataID   `json:"stdout_id"`
}

// TypeIdentifier implements codec.Typed.
func (ActionExecutionValue) TypeIdentifier() string { return "loom.ActionExecutionValue" }

// actionExecutionFunction lowers ActionExecutionKey → ActionExecutionValue
// by dispatching to the executor. A non-zero exit surfaces as an error, so
// failed executions are never cached and dependents observe the failure.
type actionExecutionFunction struct {
	exec executor.Executor
}

func (f actionExecutionFunction) Compute(ctx context.Context, fi *engine.FunctionInterface, key engine.Key) (engine.Value, error) {
	ek, err := keyAs[ActionExecutionKey](key)
	if err != nil {
		return nil, err
	}

	resp, err := f.exec.Execute(ctx, executor.Request{
		Spec:    ek.Spec,
		Inputs:  ek.Inputs,
		Outputs: ek.Outputs,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Outputs) != len(ek.Outputs) {
		return nil, fmt.Errorf("execute action: %d outputs declared, executor returned %d", len(ek.Outputs), len(resp.Outputs))
	}

	return &ActionExecutionValue{
		Outputs:  resp.Outputs,
		ExitCode: resp.ExitCode,
		StdoutID: resp.StdoutID,
	}, nil
}
