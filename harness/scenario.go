package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario describes a small build graph to evaluate.
type Scenario struct {
	// Name identifies the scenario; golden files are stored under it.
	Name string `yaml:"name"`

	// Description says what the scenario demonstrates.
	Description string `yaml:"description,omitempty"`

	// Cells is the graph: cell name → operation.
	Cells map[string]Cell `yaml:"cells"`

	// Requests lists the cells to build, in order.
	Requests []string `yaml:"requests"`

	// Expect optionally pins the textual value of cells; Run fails on
	// mismatch.
	Expect map[string]string `yaml:"expect,omitempty"`
}

// Cell is one node in a scenario graph. Exactly one operation is set.
type Cell struct {
	// Literal is a constant string value.
	Literal *string `yaml:"literal,omitempty"`

	// Sum adds the named cells, which must hold decimal integers.
	Sum []string `yaml:"sum,omitempty"`

	// Concat joins the named cells' text in order.
	Concat []string `yaml:"concat,omitempty"`
}

// LoadScenario reads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario has no name")
	}
	if len(s.Requests) == 0 {
		return fmt.Errorf("scenario %q has no requests", s.Name)
	}
	for name, cell := range s.Cells {
		ops := 0
		if cell.Literal != nil {
			ops++
		}
		if cell.Sum != nil {
			ops++
		}
		if cell.Concat != nil {
			ops++
		}
		if ops != 1 {
			return fmt.Errorf("cell %q must have exactly one operation, has %d", name, ops)
		}
		for _, dep := range append(append([]string{}, cell.Sum...), cell.Concat...) {
			if _, ok := s.Cells[dep]; !ok {
				return fmt.Errorf("cell %q references unknown cell %q", name, dep)
			}
		}
	}
	for _, req := range s.Requests {
		if _, ok := s.Cells[req]; !ok {
			return fmt.Errorf("request names unknown cell %q", req)
		}
	}
	return nil
}
