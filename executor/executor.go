// Package executor defines the action execution contract and two reference
// executors: a null executor that rejects everything and a local subprocess
// executor that materializes inputs from the CAS, runs the command, and
// stores the declared outputs back.
//
// The contract does not mandate how inputs are materialized; that is each
// executor's business. Timeouts are also the executor's responsibility: the
// engine never imposes one.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/loom/cas"
)

// ArtifactType says whether a path names a file or a directory tree.
type ArtifactType string

const (
	ArtifactFile      ArtifactType = "file"
	ArtifactDirectory ArtifactType = "directory"
)

// EnvVar is a single environment entry. Specs keep the list sorted by name
// so equal environments digest equally.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PreAction is a command run before the main action, in order. Background
// pre-actions are started and left running for the action's duration.
type PreAction struct {
	Arguments   []string `json:"arguments"`
	Environment []EnvVar `json:"environment,omitempty"`
	Background  bool     `json:"background,omitempty"`
}

// ActionSpec is the closed, content-addressable description of the work:
// everything about the command except the identity of its inputs.
type ActionSpec struct {
	Arguments        []string    `json:"arguments"`
	Environment      []EnvVar    `json:"environment,omitempty"`
	WorkingDirectory string      `json:"working_directory,omitempty"`
	PreActions       []PreAction `json:"pre_actions,omitempty"`
}

// Input is a resolved action input: where it goes, what it is, and the CAS
// object holding its content.
type Input struct {
	Path string       `json:"path"`
	ID   cas.DataID   `json:"id"`
	Type ArtifactType `json:"type"`
}

// Output is a declared action output.
type Output struct {
	Path string       `json:"path"`
	Type ArtifactType `json:"type"`
}

// Request carries one action to an executor.
type Request struct {
	Spec    ActionSpec `json:"spec"`
	Inputs  []Input    `json:"inputs,omitempty"`
	Outputs []Output   `json:"outputs,omitempty"`
}

// Response reports a finished action. Outputs holds the DataIDs of the
// declared outputs in declaration order.
type Response struct {
	Outputs  []cas.DataID `json:"outputs"`
	ExitCode int          `json:"exit_code"`
	StdoutID cas.DataID   `json:"stdout_id"`
}

// Executor runs actions. Implementations range from NullExecutor through
// LocalExecutor to remote adapters living outside this module.
type Executor interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

// ErrUnsupported is returned when an executor cannot run the request at all
// (wrong platform, missing capability, or the null executor).
var ErrUnsupported = errors.New("unsupported")

// ErrUnimplemented is returned by test doubles standing in for a real
// executor.
var ErrUnimplemented = errors.New("unimplemented")

// ExecutionError reports a command that ran and exited non-zero. The
// response that accompanies it still carries the exit code and stdout, so a
// rule that expects failure can recover.
type ExecutionError struct {
	ExitCode int
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("EXECUTION_FAILED: exit code %d", e.ExitCode)
}

// IsExecutionError reports whether err is a non-zero-exit failure.
// Uses errors.As to handle wrapped errors.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// NullExecutor fails every request with ErrUnsupported. It is the executor
// of engines that only evaluate and never execute.
type NullExecutor struct{}

// Execute implements Executor.
func (NullExecutor) Execute(context.Context, Request) (Response, error) {
	return Response{}, ErrUnsupported
}
