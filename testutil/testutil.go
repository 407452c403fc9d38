// Package testutil provides deterministic test doubles shared by the loom
// test suites: a counting function wrapper for observing memoization and a
// scripted executor that runs no subprocesses.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/roach88/loom/cas"
	"github.com/roach88/loom/engine"
	"github.com/roach88/loom/executor"
)

// CountingFunction wraps a function and counts Compute invocations. Tests
// use the count to observe deduplication and memoization: a shared or
// cached evaluation must not bump it.
type CountingFunction struct {
	Inner engine.Function

	count atomic.Int64
}

// Compute implements engine.Function.
func (f *CountingFunction) Compute(ctx context.Context, fi *engine.FunctionInterface, key engine.Key) (engine.Value, error) {
	f.count.Add(1)
	return f.Inner.Compute(ctx, fi, key)
}

// Count returns the number of Compute invocations so far.
func (f *CountingFunction) Count() int {
	return int(f.count.Load())
}

// FuncFunction adapts a plain closure to engine.Function.
type FuncFunction func(ctx context.Context, fi *engine.FunctionInterface, key engine.Key) (engine.Value, error)

// Compute implements engine.Function.
func (f FuncFunction) Compute(ctx context.Context, fi *engine.FunctionInterface, key engine.Key) (engine.Value, error) {
	return f(ctx, fi, key)
}

// ScriptedExecutor is an executor double that fabricates outputs without
// running anything. Each declared output is stored to the CAS as the
// command's first argument joined with the output path, so distinct actions
// produce distinct, predictable contents. Requests are recorded for
// at-most-once assertions.
type ScriptedExecutor struct {
	DB cas.Database

	mu       sync.Mutex
	requests []executor.Request
}

// Execute implements executor.Executor.
func (e *ScriptedExecutor) Execute(ctx context.Context, req executor.Request) (executor.Response, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	name := ""
	if len(req.Spec.Arguments) > 0 {
		name = req.Spec.Arguments[0]
	}

	outputs := make([]cas.DataID, len(req.Outputs))
	for i, out := range req.Outputs {
		id, err := e.DB.Put(ctx, nil, []byte(name+":"+out.Path))
		if err != nil {
			return executor.Response{}, err
		}
		outputs[i] = id
	}
	stdoutID, err := e.DB.Put(ctx, nil, []byte(name+" ok\n"))
	if err != nil {
		return executor.Response{}, err
	}
	return executor.Response{Outputs: outputs, ExitCode: 0, StdoutID: stdoutID}, nil
}

// Requests returns a copy of the recorded requests.
func (e *ScriptedExecutor) Requests() []executor.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]executor.Request(nil), e.requests...)
}

// UnimplementedExecutor fails every request with executor.ErrUnimplemented.
type UnimplementedExecutor struct{}

// Execute implements executor.Executor.
func (UnimplementedExecutor) Execute(context.Context, executor.Request) (executor.Response, error) {
	return executor.Response{}, executor.ErrUnimplemented
}
