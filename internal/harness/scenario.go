package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is one multi-peer conversation with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Flow is executed in order, each step as its peer.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and View.
	Assertions []Assertion `yaml:"assertions"`
}

// Step routes one command as a peer.
type Step struct {
	// As is the identity submitting the command.
	As string `yaml:"as"`

	// Command is the JSON command object, including its op.
	Command map[string]any `yaml:"command"`

	// Expect validates the reply and, for mutating commands, the receipt.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the outcome of a step. Unset fields are not checked.
type Expect struct {
	OK      *bool          `yaml:"ok,omitempty"`
	Code    string         `yaml:"code,omitempty"`
	Applied *bool          `yaml:"applied,omitempty"`
	Reason  string         `yaml:"reason,omitempty"`
	Key     string         `yaml:"key,omitempty"`
	Data    map[string]any `yaml:"data,omitempty"` // subset of the reply data
	Count   *int           `yaml:"count,omitempty"` // length of list reply data
}

// Assertion validates the trace or final View.
type Assertion struct {
	Type string `yaml:"type"`

	// trace_contains, trace_count
	Op        string `yaml:"op,omitempty"`
	Submitter string `yaml:"submitter,omitempty"`
	Applied   *bool  `yaml:"applied,omitempty"`
	Reason    string `yaml:"reason,omitempty"`

	// trace_order
	Ops []string `yaml:"ops,omitempty"`

	// trace_count, final_count
	Count int `yaml:"count,omitempty"`

	// final_state
	Key    string         `yaml:"key,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// final_count
	Prefix string `yaml:"prefix,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertFinalCount    = "final_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// FindScenarios returns the YAML files under dir whose base name matches
// filter (a glob; empty matches all), sorted.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			ok, err := filepath.Match(filter, filepath.Base(path))
			if err != nil {
				return fmt.Errorf("invalid filter %q: %w", filter, err)
			}
			if !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	for i, step := range s.Flow {
		if step.As == "" {
			return fmt.Errorf("flow[%d]: as is required", i)
		}
		if op, _ := step.Command["op"].(string); op == "" {
			return fmt.Errorf("flow[%d]: command.op is required", i)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: trace_contains requires op", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order requires at least 2 ops", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: trace_count requires op", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: trace_count requires a non-negative count", index)
		}
	case AssertFinalState:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: final_state requires key", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: final_state requires expect", index)
		}
	case AssertFinalCount:
		if a.Prefix == "" {
			return fmt.Errorf("assertions[%d]: final_count requires prefix", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
