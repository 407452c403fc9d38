package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/loom/cas"
)

// LocalExecutor runs actions as subprocesses in a scratch directory.
//
// Each execution gets a fresh sandbox: inputs are materialized from the CAS
// at their declared paths, the command runs with exactly the environment the
// spec names (nothing is inherited), and declared outputs are read back into
// the CAS. The sandbox is removed afterwards regardless of outcome.
type LocalExecutor struct {
	db     cas.Database
	root   string
	logger *slog.Logger
	tracer trace.Tracer
}

// LocalOption configures a LocalExecutor.
type LocalOption func(*LocalExecutor)

// WithLocalLogger sets the logger. Default: slog.Default().
func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(e *LocalExecutor) {
		e.logger = logger
	}
}

// WithLocalTracer sets the tracer for execution spans.
func WithLocalTracer(tracer trace.Tracer) LocalOption {
	return func(e *LocalExecutor) {
		e.tracer = tracer
	}
}

// NewLocalExecutor creates a local executor whose sandboxes live under
// scratchDir.
func NewLocalExecutor(db cas.Database, scratchDir string, opts ...LocalOption) *LocalExecutor {
	e := &LocalExecutor{
		db:     db,
		root:   scratchDir,
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("loom"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements Executor.
func (e *LocalExecutor) Execute(ctx context.Context, req Request) (Response, error) {
	ctx, span := e.tracer.Start(ctx, "executor.execute", trace.WithAttributes(
		attribute.StringSlice("loom.arguments", req.Spec.Arguments),
	))
	defer span.End()

	if len(req.Spec.Arguments) == 0 {
		return Response{}, fmt.Errorf("execute: empty argument list: %w", ErrUnsupported)
	}

	if err := os.MkdirAll(e.root, 0o755); err != nil {
		return Response{}, fmt.Errorf("execute: %w", err)
	}
	sandbox, err := os.MkdirTemp(e.root, "action-*")
	if err != nil {
		return Response{}, fmt.Errorf("execute: %w", err)
	}
	defer os.RemoveAll(sandbox)

	for _, input := range req.Inputs {
		dst := filepath.Join(sandbox, filepath.FromSlash(input.Path))
		switch input.Type {
		case ArtifactDirectory:
			err = materializeTree(ctx, e.db, input.ID, dst)
		default:
			err = materializeFile(ctx, e.db, input.ID, dst)
		}
		if err != nil {
			return Response{}, fmt.Errorf("execute: %w", err)
		}
	}

	workdir := sandbox
	if req.Spec.WorkingDirectory != "" {
		workdir = filepath.Join(sandbox, filepath.FromSlash(req.Spec.WorkingDirectory))
		if err := os.MkdirAll(workdir, 0o755); err != nil {
			return Response{}, fmt.Errorf("execute: %w", err)
		}
	}

	stop, err := e.runPreActions(ctx, req.Spec.PreActions, workdir)
	defer stop()
	if err != nil {
		return Response{}, err
	}

	cmd := exec.CommandContext(ctx, req.Spec.Arguments[0], req.Spec.Arguments[1:]...)
	cmd.Dir = workdir
	cmd.Env = flattenEnv(req.Spec.Environment)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	stdoutID, err := e.db.Put(ctx, nil, stdout.Bytes())
	if err != nil {
		return Response{}, fmt.Errorf("execute: store stdout: %w", err)
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code := exitErr.ExitCode()
			e.logger.Debug("action failed",
				"arguments", req.Spec.Arguments, "exit_code", code, "stderr", stderr.String())
			return Response{ExitCode: code, StdoutID: stdoutID}, &ExecutionError{ExitCode: code}
		}
		return Response{}, fmt.Errorf("execute %q: %w", req.Spec.Arguments[0], runErr)
	}

	outputs := make([]cas.DataID, len(req.Outputs))
	for i, output := range req.Outputs {
		src := filepath.Join(sandbox, filepath.FromSlash(output.Path))
		var id cas.DataID
		switch output.Type {
		case ArtifactDirectory:
			id, err = putTree(ctx, e.db, src)
		default:
			id, err = putFile(ctx, e.db, src)
		}
		if err != nil {
			return Response{}, fmt.Errorf("execute: collect output %q: %w", output.Path, err)
		}
		outputs[i] = id
	}

	return Response{Outputs: outputs, ExitCode: 0, StdoutID: stdoutID}, nil
}

// runPreActions runs foreground pre-actions to completion in order and
// starts background ones. The returned stop function kills still-running
// background pre-actions; it is safe to call even after an error.
func (e *LocalExecutor) runPreActions(ctx context.Context, pres []PreAction, workdir string) (func(), error) {
	var background []*exec.Cmd
	stop := func() {
		for _, cmd := range background {
			if cmd.Process != nil {
				cmd.Process.Kill()
				cmd.Wait()
			}
		}
	}

	for _, pre := range pres {
		if len(pre.Arguments) == 0 {
			return stop, fmt.Errorf("execute: empty pre-action: %w", ErrUnsupported)
		}
		cmd := exec.CommandContext(ctx, pre.Arguments[0], pre.Arguments[1:]...)
		cmd.Dir = workdir
		cmd.Env = flattenEnv(pre.Environment)
		if pre.Background {
			if err := cmd.Start(); err != nil {
				return stop, fmt.Errorf("execute: start pre-action %q: %w", pre.Arguments[0], err)
			}
			background = append(background, cmd)
			continue
		}
		if err := cmd.Run(); err != nil {
			return stop, fmt.Errorf("execute: pre-action %q: %w", pre.Arguments[0], err)
		}
	}
	return stop, nil
}

func flattenEnv(env []EnvVar) []string {
	flat := make([]string, len(env))
	for i, v := range env {
		flat[i] = v.Name + "=" + v.Value
	}
	return flat
}
