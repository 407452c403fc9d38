package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/loom/cas"
	"github.com/roach88/loom/codec"
	"github.com/roach88/loom/fncache"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type echoKey struct {
	Name string `json:"name"`
}

func (echoKey) TypeIdentifier() string { return "engine.test.EchoKey" }
func (k echoKey) String() string       { return "echo(" + k.Name + ")" }

type echoValue struct {
	Text string `json:"text"`
}

func (echoValue) TypeIdentifier() string { return "engine.test.EchoValue" }

func init() {
	codec.Register(echoKey{})
	codec.Register(echoValue{})
}

// countingEcho counts Compute invocations; subrequests are driven by the
// optional deps map (key name → subkey names).
type countingEcho struct {
	mu    sync.Mutex
	count int
	deps  map[string][]string
	fail  map[string]error
	block <-chan struct{}
}

func (f *countingEcho) Compute(ctx context.Context, fi *FunctionInterface, key Key) (Value, error) {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}

	ek := key.(*echoKey)
	if err := f.fail[ek.Name]; err != nil {
		return nil, err
	}

	text := ek.Name
	if deps := f.deps[ek.Name]; len(deps) > 0 {
		keys := make([]Key, len(deps))
		for i, dep := range deps {
			keys[i] = &echoKey{Name: dep}
		}
		values, err := fi.RequestAll(ctx, keys)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			text += "+" + v.(*echoValue).Text
		}
	}
	return &echoValue{Text: text}, nil
}

func (f *countingEcho) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func newTestEngine(fn Function, opts ...Option) *Engine {
	functions := FunctionMap{echoKey{}.TypeIdentifier(): fn}
	return New(cas.NewInMemoryDatabase(), fncache.NewInMemoryCache(), functions, opts...)
}

func TestBuild_EvaluatesAndStores(t *testing.T) {
	ctx := context.Background()
	fn := &countingEcho{}
	eng := newTestEngine(fn)

	res, err := eng.Build(ctx, &echoKey{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", res.Value.(*echoValue).Text)
	assert.True(t, res.ID.IsValid())

	obj, err := eng.Database().Get(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, obj)
	decoded, err := codec.Unmarshal(obj.Data)
	require.NoError(t, err)
	assert.Equal(t, "a", decoded.(*echoValue).Text)
}

func TestBuild_MemoizesPerFingerprint(t *testing.T) {
	ctx := context.Background()
	fn := &countingEcho{}
	eng := newTestEngine(fn)

	first, err := eng.Build(ctx, &echoKey{Name: "a"})
	require.NoError(t, err)
	second, err := eng.Build(ctx, &echoKey{Name: "a"})
	require.NoError(t, err)

	assert.Equal(t, 1, fn.Count(), "a pure function runs at most once per fingerprint")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Value.(*echoValue).Text, second.Value.(*echoValue).Text)
}

func TestBuild_DeduplicatesConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	fn := &countingEcho{block: release}
	eng := newTestEngine(fn)

	const waiters = 10
	var started, done sync.WaitGroup
	results := make([]Result, waiters)
	errs := make([]error, waiters)
	for i := range waiters {
		started.Add(1)
		done.Add(1)
		go func() {
			started.Done()
			defer done.Done()
			results[i], errs[i] = eng.Build(ctx, &echoKey{Name: "shared"})
		}()
	}
	started.Wait()
	time.Sleep(10 * time.Millisecond)
	close(release)
	done.Wait()

	for i := range waiters {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i].Value.(*echoValue).Text)
		assert.Equal(t, results[0].ID, results[i].ID)
	}
	assert.Equal(t, 1, fn.Count(), "concurrent identical requests share one evaluation")
}

func TestBuild_CacheHitSkipsFunction(t *testing.T) {
	ctx := context.Background()
	db := cas.NewInMemoryDatabase()
	cache := fncache.NewInMemoryCache()

	// Plant the result by hand: serialize the value, store it, point the
	// cache at it.
	key := &echoKey{Name: "planted"}
	envelope, err := codec.Marshal(&echoValue{Text: "from the cache"})
	require.NoError(t, err)
	id, err := db.Put(ctx, nil, envelope)
	require.NoError(t, err)
	fp, err := fingerprint(key)
	require.NoError(t, err)
	require.NoError(t, cache.Update(ctx, fp, fncache.Props{Version: "v0"}, id))

	fn := &countingEcho{}
	eng := New(db, cache, FunctionMap{echoKey{}.TypeIdentifier(): fn})

	res, err := eng.Build(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "from the cache", res.Value.(*echoValue).Text)
	assert.Equal(t, id, res.ID)
	assert.Equal(t, 0, fn.Count(), "a cache hit must not invoke the function")
}

func TestBuild_PrunedCacheEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	db := cas.NewInMemoryDatabase()
	cache := fncache.NewInMemoryCache()

	key := &echoKey{Name: "pruned"}
	fp, err := fingerprint(key)
	require.NoError(t, err)
	// The cache promises an object the CAS never stored.
	ghost := cas.Identify(nil, []byte("pruned away"))
	require.NoError(t, cache.Update(ctx, fp, fncache.Props{Version: "v0"}, ghost))

	fn := &countingEcho{}
	eng := New(db, cache, FunctionMap{echoKey{}.TypeIdentifier(): fn})

	res, err := eng.Build(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "pruned", res.Value.(*echoValue).Text)
	assert.Equal(t, 1, fn.Count(), "a pruned entry re-evaluates")
}

func TestBuild_FailuresAreNotCached(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	fn := &countingEcho{fail: map[string]error{"flaky": boom}}
	eng := newTestEngine(fn)

	_, err := eng.Build(ctx, &echoKey{Name: "flaky"})
	require.ErrorIs(t, err, boom)

	fn.mu.Lock()
	delete(fn.fail, "flaky")
	fn.mu.Unlock()

	res, err := eng.Build(ctx, &echoKey{Name: "flaky"})
	require.NoError(t, err)
	assert.Equal(t, "flaky", res.Value.(*echoValue).Text)
	assert.Equal(t, 2, fn.Count(), "the failed evaluation must not be memoized")
}

func TestBuild_SubrequestsResolveTransitively(t *testing.T) {
	ctx := context.Background()
	fn := &countingEcho{deps: map[string][]string{
		"top":  {"left", "right"},
		"left": {"base"},
		"right": {
			"base",
		},
	}}
	eng := newTestEngine(fn)

	res, err := eng.Build(ctx, &echoKey{Name: "top"})
	require.NoError(t, err)
	assert.Equal(t, "top+left+base+right+base", res.Value.(*echoValue).Text)
	assert.Equal(t, 4, fn.Count(), "the shared base evaluates once")
}

func TestBuild_CycleDetected(t *testing.T) {
	ctx := context.Background()
	fn := &countingEcho{deps: map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}}
	eng := newTestEngine(fn)

	_, err := eng.Build(ctx, &echoKey{Name: "a"})
	require.Error(t, err)
	assert.True(t, IsCycleError(err), "got %v", err)
	assert.Contains(t, err.Error(), "CYCLE_DETECTED")
	assert.Contains(t, err.Error(), "echo(a)")
}

func TestBuild_SelfRequestIsACycle(t *testing.T) {
	ctx := context.Background()
	fn := &countingEcho{deps: map[string][]string{"selfish": {"selfish"}}}
	eng := newTestEngine(fn)

	_, err := eng.Build(ctx, &echoKey{Name: "selfish"})
	require.Error(t, err)
	assert.True(t, IsCycleError(err))
}

func TestBuild_SeparateRequestsDoNotAliasCycles(t *testing.T) {
	ctx := context.Background()
	fn := &countingEcho{deps: map[string][]string{
		"x": {"shared"},
		"y": {"shared"},
	}}
	eng := newTestEngine(fn)

	_, err := eng.Build(ctx, &echoKey{Name: "x"})
	require.NoError(t, err)
	_, err = eng.Build(ctx, &echoKey{Name: "y"})
	require.NoError(t, err)
}

func TestBuild_NoFunctionForKeyType(t *testing.T) {
	ctx := context.Background()
	eng := New(cas.NewInMemoryDatabase(), fncache.NewInMemoryCache(), FunctionMap{})

	_, err := eng.Build(ctx, &echoKey{Name: "orphan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no function registered")
}

func TestRequestAll_PropagatesFirstError(t *testing.T) {
	ctx := context.Background()
	fn := &countingEcho{
		deps: map[string][]string{"top": {"ok", "bad"}},
		fail: map[string]error{"bad": fmt.Errorf("bad leaf")},
	}
	eng := newTestEngine(fn)

	_, err := eng.Build(ctx, &echoKey{Name: "top"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad leaf")
}

func TestFingerprint_ContentOnly(t *testing.T) {
	a1, err := fingerprint(&echoKey{Name: "a"})
	require.NoError(t, err)
	a2, err := fingerprint(&echoKey{Name: "a"})
	require.NoError(t, err)
	b, err := fingerprint(&echoKey{Name: "b"})
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
}
