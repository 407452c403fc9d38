package harness

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/loom/cas"
	"github.com/roach88/loom/codec"
	"github.com/roach88/loom/engine"
	"github.com/roach88/loom/fncache"
)

func init() {
	codec.Register(CellKey{})
	codec.Register(CellValue{})
}

// CellKey requests one cell of one scenario. The scenario name is part of
// the key so cells with equal names in different scenarios never share a
// fingerprint.
type CellKey struct {
	Scenario string `json:"scenario"`
	Name     string `json:"name"`
}

// TypeIdentifier implements codec.Typed.
func (CellKey) TypeIdentifier() string { return "loom.harness.CellKey" }

// String renders the key for cycle reports.
func (k CellKey) String() string { return "cell(" + k.Name + ")" }

// CellValue is a cell's computed value, always carried as text.
type CellValue struct {
	Text string `json:"text"`
}

// TypeIdentifier implements codec.Typed.
func (CellValue) TypeIdentifier() string { return "loom.harness.CellValue" }

// Snapshot is the deterministic result of running a scenario: the values
// of the requested cells and the number of function invocations per cell.
type Snapshot struct {
	ScenarioName string
	Values       map[string]string
	Evaluations  map[string]int
}

// cellFunction evaluates scenario cells, counting invocations. The counter
// is how tests observe memoization and deduplication.
type cellFunction struct {
	scenario *Scenario

	mu     sync.Mutex
	counts map[string]int
}

func (f *cellFunction) Compute(ctx context.Context, fi *engine.FunctionInterface, key engine.Key) (engine.Value, error) {
	ck, ok := key.(*CellKey)
	if !ok {
		if v, isValue := key.(CellKey); isValue {
			ck = &v
		} else {
			return nil, fmt.Errorf("unexpected key type %T", key)
		}
	}

	f.mu.Lock()
	f.counts[ck.Name]++
	f.mu.Unlock()

	cell, ok := f.scenario.Cells[ck.Name]
	if !ok {
		return nil, fmt.Errorf("cell %q: not in scenario", ck.Name)
	}

	switch {
	case cell.Literal != nil:
		return &CellValue{Text: *cell.Literal}, nil

	case cell.Sum != nil:
		texts, err := f.request(ctx, fi, ck.Scenario, cell.Sum)
		if err != nil {
			return nil, err
		}
		var total int64
		for i, text := range texts {
			n, err := strconv.ParseInt(text, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cell %q: operand %q is not an integer: %w", ck.Name, cell.Sum[i], err)
			}
			total += n
		}
		return &CellValue{Text: strconv.FormatInt(total, 10)}, nil

	case cell.Concat != nil:
		texts, err := f.request(ctx, fi, ck.Scenario, cell.Concat)
		if err != nil {
			return nil, err
		}
		return &CellValue{Text: strings.Join(texts, "")}, nil

	default:
		return nil, fmt.Errorf("cell %q: no operation", ck.Name)
	}
}

func (f *cellFunction) request(ctx context.Context, fi *engine.FunctionInterface, scenario string, names []string) ([]string, error) {
	keys := make([]engine.Key, len(names))
	for i, name := range names {
		keys[i] = &CellKey{Scenario: scenario, Name: name}
	}
	values, err := fi.RequestAll(ctx, keys)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(values))
	for i, v := range values {
		cv, ok := v.(*CellValue)
		if !ok {
			return nil, fmt.Errorf("cell %q resolved to %T", names[i], v)
		}
		texts[i] = cv.Text
	}
	return texts, nil
}

// Run evaluates a scenario's requests against a fresh in-memory engine and
// returns the snapshot. Expectations, when present, are checked here.
func Run(scenario *Scenario) (*Snapshot, error) {
	fn := &cellFunction{scenario: scenario, counts: make(map[string]int)}
	functions := engine.FunctionMap{
		CellKey{}.TypeIdentifier(): fn,
	}
	eng := engine.New(
		cas.NewInMemoryDatabase(),
		fncache.NewInMemoryCache(),
		functions,
		engine.WithTokenGenerator(engine.NewFixedGenerator(requestTokens(scenario)...)),
	)

	snapshot := &Snapshot{
		ScenarioName: scenario.Name,
		Values:       make(map[string]string),
		Evaluations:  make(map[string]int),
	}

	for _, req := range scenario.Requests {
		res, err := eng.Build(context.Background(), &CellKey{Scenario: scenario.Name, Name: req})
		if err != nil {
			return nil, fmt.Errorf("scenario %q: build %q: %w", scenario.Name, req, err)
		}
		cv, ok := res.Value.(*CellValue)
		if !ok {
			return nil, fmt.Errorf("scenario %q: %q resolved to %T", scenario.Name, req, res.Value)
		}
		snapshot.Values[req] = cv.Text
	}

	fn.mu.Lock()
	for name, count := range fn.counts {
		snapshot.Evaluations[name] = count
	}
	fn.mu.Unlock()

	for name, want := range scenario.Expect {
		got, ok := snapshot.Values[name]
		if !ok {
			return nil, fmt.Errorf("scenario %q: expectation on unrequested cell %q", scenario.Name, name)
		}
		if got != want {
			return nil, fmt.Errorf("scenario %q: cell %q = %q, want %q", scenario.Name, name, got, want)
		}
	}

	return snapshot, nil
}

func requestTokens(scenario *Scenario) []string {
	tokens := make([]string, len(scenario.Requests))
	for i := range scenario.Requests {
		tokens[i] = fmt.Sprintf("%s-request-%d", scenario.Name, i)
	}
	return tokens
}
