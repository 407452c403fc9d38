package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/loom/cas"
	"github.com/roach88/loom/codec"
	"github.com/roach88/loom/fncache"
)

// Engine schedules key evaluations against a CAS database and a function
// cache.
//
// Thread-safety model:
//   - Build(): safe from any goroutine
//   - the in-flight table is engine-global and mutex-protected; the critical
//     section covers only insert/lookup
//   - the dependency graph is per top-level request
//
// INVARIANTS:
//   - at most one evaluation runs per fingerprint at any moment
//   - results are memoized (CAS put + cache update) before any waiter
//     observes them
//   - failed evaluations are never cached
type Engine struct {
	db     cas.Database
	cache  fncache.Cache
	lookup FunctionLookup
	logger *slog.Logger
	tracer trace.Tracer
	props  fncache.Props
	tokens TokenGenerator

	mu       sync.Mutex
	inflight map[string]*evaluation
}

// evaluation is the engine-internal promise for one fingerprint. It lives
// from first request to completion; waiters block on done.
type evaluation struct {
	done   chan struct{}
	result Result
	err    error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracer sets the tracer for evaluation spans. Default: a noop tracer;
// tracing is never load-bearing.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithCacheVersion names the function-cache generation. Bumping the version
// atomically invalidates every entry written under the previous one.
func WithCacheVersion(version string) Option {
	return func(e *Engine) {
		e.props.Version = version
	}
}

// WithTokenGenerator overrides request token generation. Tests use
// NewFixedGenerator for deterministic tokens.
func WithTokenGenerator(gen TokenGenerator) Option {
	return func(e *Engine) {
		e.tokens = gen
	}
}

// New creates an Engine over the given database, cache, and function-lookup
// delegate.
func New(db cas.Database, cache fncache.Cache, lookup FunctionLookup, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		cache:    cache,
		lookup:   lookup,
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer("loom"),
		props:    fncache.Props{Version: "v0"},
		tokens:   UUIDv7Generator{},
		inflight: make(map[string]*evaluation),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Database returns the engine's CAS database. Functions that store
// auxiliary objects (action specs, output trees) write through it.
func (e *Engine) Database() cas.Database {
	return e.db
}

// Build evaluates key and returns its value with the DataID it is stored
// under. Concurrent Builds of the same key share a single evaluation. A
// caller that joined an in-flight evaluation may abandon it by cancelling
// ctx; the evaluation continues for the remaining waiters and the
// memoization still happens. Cancelling the initiating caller's ctx is
// visible to the user function, which may stop cooperatively.
func (e *Engine) Build(ctx context.Context, key Key) (Result, error) {
	st := requestStateFrom(ctx)
	if st == nil {
		st = &requestState{token: e.tokens.Generate(), graph: newDepGraph()}
		ctx = withRequestState(ctx, st)
	}
	return e.build(ctx, st, key, "", nil)
}

// build is the dispatch path shared by top-level requests (fromFP == "")
// and subrequests (fromFP names the requesting key).
func (e *Engine) build(ctx context.Context, st *requestState, key Key, fromFP string, fromKey Key) (Result, error) {
	fp, err := fingerprint(key)
	if err != nil {
		return Result{}, err
	}

	// The edge is recorded before joining an in-flight evaluation: a
	// requester inside the promised key's own dependency chain must get a
	// cycle error, not a promise that can never complete.
	if fromFP != "" {
		if err := st.graph.addEdge(fromFP, fp, fromKey, key); err != nil {
			return Result{}, err
		}
	}

	e.mu.Lock()
	if ev, ok := e.inflight[fp]; ok {
		e.mu.Unlock()
		select {
		case <-ev.done:
			return ev.result, ev.err
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	ev := &evaluation{done: make(chan struct{})}
	e.inflight[fp] = ev
	e.mu.Unlock()

	res, err := e.evaluate(ctx, st, key, fp)

	ev.result, ev.err = res, err
	e.mu.Lock()
	delete(e.inflight, fp)
	e.mu.Unlock()
	close(ev.done)

	return res, err
}

func (e *Engine) evaluate(ctx context.Context, st *requestState, key Key, fp string) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.build", trace.WithAttributes(
		attribute.String("loom.key_type", key.TypeIdentifier()),
		attribute.String("loom.fingerprint", fp),
		attribute.String("loom.request", st.token),
	))
	defer span.End()

	if res, ok, err := e.loadCached(ctx, fp); err != nil {
		span.RecordError(err)
		return Result{}, err
	} else if ok {
		span.AddEvent("cache hit")
		return res, nil
	}

	fn, err := e.lookup.FunctionFor(key.TypeIdentifier())
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	fi := &FunctionInterface{engine: e, key: key, fp: fp}
	value, err := fn.Compute(ctx, fi, key)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	envelope, err := codec.Marshal(value)
	if err != nil {
		return Result{}, fmt.Errorf("store %q result: %w", key.TypeIdentifier(), err)
	}
	id, err := e.db.Put(ctx, nil, envelope)
	if err != nil {
		return Result{}, fmt.Errorf("store %q result: %w", key.TypeIdentifier(), err)
	}
	if err := e.cache.Update(ctx, fp, e.props, id); err != nil {
		// The cache is advisory; a failed update costs a re-evaluation
		// later, not the build.
		e.logger.Warn("function cache update failed",
			"fingerprint", fp, "request", st.token, "error", err)
	}

	return Result{Value: value, ID: id}, nil
}

// loadCached consults the function cache and the CAS. A present cache entry
// whose CAS object has been pruned is treated as a miss and re-evaluated.
func (e *Engine) loadCached(ctx context.Context, fp string) (Result, bool, error) {
	id, ok, err := e.cache.Get(ctx, fp, e.props)
	if err != nil {
		e.logger.Warn("function cache get failed", "fingerprint", fp, "error", err)
		return Result{}, false, nil
	}
	if !ok {
		return Result{}, false, nil
	}

	obj, err := e.db.Get(ctx, id)
	if err != nil {
		return Result{}, false, fmt.Errorf("load cached value %s: %w", id, err)
	}
	if obj == nil {
		return Result{}, false, nil
	}

	typed, err := codec.Unmarshal(obj.Data)
	if err != nil {
		return Result{}, false, fmt.Errorf("load cached value %s: %w", id, err)
	}
	value, ok := typed.(Value)
	if !ok {
		return Result{}, false, fmt.Errorf("load cached value %s: %q is not a value", id, typed.TypeIdentifier())
	}
	return Result{Value: value, ID: id}, true, nil
}

// FunctionInterface is the handle a function uses to request subkeys. It
// carries the requesting key's identity so the engine can record dependency
// edges.
type FunctionInterface struct {
	engine *Engine
	key    Key
	fp     string
}

// Request evaluates a subkey through the engine and returns its value.
func (fi *FunctionInterface) Request(ctx context.Context, key Key) (Value, error) {
	res, err := fi.RequestResult(ctx, key)
	return res.Value, err
}

// RequestResult is Request with the stored DataID alongside the value.
func (fi *FunctionInterface) RequestResult(ctx context.Context, key Key) (Result, error) {
	st := requestStateFrom(ctx)
	if st == nil {
		// The function detached the context; fall back to a fresh request
		// scope rather than losing cycle detection entirely.
		st = &requestState{token: fi.engine.tokens.Generate(), graph: newDepGraph()}
		ctx = withRequestState(ctx, st)
	}
	return fi.engine.build(ctx, st, key, fi.fp, fi.key)
}

// RequestAll evaluates keys in parallel and returns their values in key
// order. The first error encountered is propagated; the rest are logged.
func (fi *FunctionInterface) RequestAll(ctx context.Context, keys []Key) ([]Value, error) {
	values := make([]Value, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		g.Go(func() error {
			value, err := fi.Request(gctx, key)
			if err != nil {
				fi.engine.logger.Debug("subrequest failed",
					"key_type", key.TypeIdentifier(), "error", err)
				return err
			}
			values[i] = value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

// Database returns the engine's CAS database.
func (fi *FunctionInterface) Database() cas.Database {
	return fi.engine.db
}

// Logger returns the engine's logger.
func (fi *FunctionInterface) Logger() *slog.Logger {
	return fi.engine.logger
}
