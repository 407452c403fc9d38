package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/roach88/loom/cas"
	"github.com/roach88/loom/engine"
	"github.com/roach88/loom/executor"
)

// Artifact is a declared future file-or-directory output of an action, or a
// pre-resolved source.
//
// Root is the configuration-and-label-scoped namespace that prevents
// collisions: two targets declaring the same relative path under different
// (configuration, label) pairs get different roots. Exactly one of ID
// (source artifacts) or ActionID (action outputs) is set; a declared-but-
// unregistered artifact has neither and cannot be built.
type Artifact struct {
	Root string                `json:"root,omitempty"`
	Path string                `json:"path"`
	Type executor.ArtifactType `json:"type"`

	// ID is the content of a source artifact, known before any execution.
	ID cas.DataID `json:"id,omitempty"`

	// ActionID and OutputIndex locate the registered action that produces
	// this artifact and which of its declared outputs it is.
	ActionID    cas.DataID `json:"action_id,omitempty"`
	OutputIndex int        `json:"output_index,omitempty"`
}

// SourceArtifact wraps already-stored content as an artifact, e.g. a file
// from the workspace root tree.
func SourceArtifact(p string, typ executor.ArtifactType, id cas.DataID) Artifact {
	return Artifact{Path: p, Type: typ, ID: id}
}

// FullPath is the root-qualified path used in action sandboxes and output
// storage.
func (a Artifact) FullPath() string {
	if a.Root == "" {
		return a.Path
	}
	return path.Join(a.Root, a.Path)
}

// artifactRoot computes the collision-free namespace for a configured
// target's outputs.
func artifactRoot(ck ConfiguredTargetKey) (string, error) {
	cfgHash, err := ck.Configuration.Hash()
	if err != nil {
		return "", err
	}
	parts := append([]string{cfgHash}, ck.Label.Components()...)
	parts = append(parts, ck.Label.Name())
	return path.Join(parts...), nil
}

// validateArtifactPath rejects paths that could escape the namespace.
func validateArtifactPath(p string) error {
	if p == "" {
		return fmt.Errorf("artifact path is empty")
	}
	if path.IsAbs(p) {
		return fmt.Errorf("artifact path %q is absolute", p)
	}
	clean := path.Clean(p)
	if clean != p || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("artifact path %q is not a clean relative path", p)
	}
	return nil
}

// ArtifactKey requests materialization of one artifact.
type ArtifactKey struct {
	Artifact Artifact `json:"artifact"`
}

// TypeIdentifier implements codec.Typed.
func (ArtifactKey) TypeIdentifier() string { return "loom.ArtifactKey" }

// String renders the key for cycle reports and logs.
func (k ArtifactKey) String() string {
	return "artifact(" + k.Artifact.FullPath() + ")"
}

// ArtifactValue is a materialized artifact: its content DataID alongside
// the declared path and type.
type ArtifactValue struct {
	ID   cas.DataID            `json:"id"`
	Path string                `json:"path"`
	Type executor.ArtifactType `json:"type"`
}

// TypeIdentifier implements codec.Typed.
func (ArtifactValue) TypeIdentifier() string { return "loom.ArtifactValue" }

// artifactFunction lowers ArtifactKey → ArtifactValue. Source artifacts
// resolve immediately; action outputs load the registered action from the
// CAS, materialize its inputs (recursively, in parallel), and request one
// action execution, picking the output this artifact names.
type artifactFunction struct{}

func (artifactFunction) Compute(ctx context.Context, fi *engine.FunctionInterface, key engine.Key) (engine.Value, error) {
	ak, err := keyAs[ArtifactKey](key)
	if err != nil {
		return nil, err
	}
	art := ak.Artifact

	if art.ID.IsValid() {
		return &ArtifactValue{ID: art.ID, Path: art.FullPath(), Type: art.Type}, nil
	}
	if !art.ActionID.IsValid() {
		return nil, fmt.Errorf("artifact %q: declared but never registered as an action output", art.FullPath())
	}

	record, err := loadAction(ctx, fi.Database(), art.ActionID)
	if err != nil {
		return nil, fmt.Errorf("artifact %q: %w", art.FullPath(), err)
	}
	if art.OutputIndex < 0 || art.OutputIndex >= len(record.Outputs) {
		return nil, fmt.Errorf("artifact %q: output index %d out of range", art.FullPath(), art.OutputIndex)
	}

	inputKeys := make([]engine.Key, len(record.Inputs))
	for i, input := range record.Inputs {
		inputKeys[i] = &ArtifactKey{Artifact: input}
	}
	inputValues, err := fi.RequestAll(ctx, inputKeys)
	if err != nil {
		return nil, err
	}

	execKey := &ActionExecutionKey{
		Spec:    record.Spec,
		Outputs: record.Outputs,
	}
	for _, iv := range inputValues {
		av, ok := iv.(*ArtifactValue)
		if !ok {
			return nil, fmt.Errorf("artifact %q: input resolved to %T", art.FullPath(), iv)
		}
		execKey.Inputs = append(execKey.Inputs, executor.Input{Path: av.Path, ID: av.ID, Type: av.Type})
	}

	execValue, err := fi.Request(ctx, execKey)
	if err != nil {
		return nil, err
	}
	ev, ok := execValue.(*ActionExecutionValue)
	if !ok {
		return nil, fmt.Errorf("artifact %q: execution resolved to %T", art.FullPath(), execValue)
	}
	if art.OutputIndex >= len(ev.Outputs) {
		return nil, fmt.Errorf("artifact %q: execution returned %d outputs, want index %d", art.FullPath(), len(ev.Outputs), art.OutputIndex)
	}

	return &ArtifactValue{
		ID:   ev.Outputs[art.OutputIndex],
		Path: art.FullPath(),
		Type: art.Type,
	}, nil
}
