package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/loom/codec"
)

// RunWithGolden executes a scenario and compares its snapshot against the
// golden file testdata/<name>.golden. Regenerate with:
//
//	go test ./harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	snapshot, err := Run(scenario)
	if err != nil {
		t.Fatalf("run scenario %q: %v", scenario.Name, err)
	}

	encoded, err := encodeSnapshot(snapshot)
	if err != nil {
		t.Fatalf("encode snapshot %q: %v", scenario.Name, err)
	}

	g := goldie.New(t)
	g.Assert(t, scenario.Name, encoded)
}

// encodeSnapshot renders a snapshot as canonical JSON so golden files are
// byte-stable across runs and platforms.
func encodeSnapshot(s *Snapshot) ([]byte, error) {
	values := make(map[string]any, len(s.Values))
	for k, v := range s.Values {
		values[k] = v
	}
	evals := make(map[string]any, len(s.Evaluations))
	for k, v := range s.Evaluations {
		evals[k] = v
	}
	return codec.MarshalCanonical(map[string]any{
		"scenario_name": s.ScenarioName,
		"values":        values,
		"evaluations":   evals,
	})
}
