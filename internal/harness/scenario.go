package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one cross-backend conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is a CUE directory, .cue or .yaml schema file, relative to the
	// scenario file.
	Schema string `yaml:"schema"`

	// Steps run in order against a fresh engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step operations.
const (
	OpSave         = "save"
	OpUpdate       = "update"
	OpDelete       = "delete"
	OpCheckVersion = "check_version"
	OpFind         = "find"
)

// Step is one engine call.
type Step struct {
	Op string `yaml:"op"`

	// Type is the element type; update, delete and check_version default to
	// the type ref was saved with.
	Type string `yaml:"type,omitempty"`

	// As binds the element created by a save to an alias.
	As string `yaml:"as,omitempty"`

	// Ref is the alias update, delete and check_version act on.
	Ref string `yaml:"ref,omitempty"`

	// Version overrides the version update and check_version send.
	Version *int64 `yaml:"version,omitempty"`

	Data map[string]any `yaml:"data,omitempty"`
	User string         `yaml:"user,omitempty"`

	Find *Query `yaml:"find,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Query is the YAML form of queryir.Find.
type Query struct {
	Owner          string                       `yaml:"owner,omitempty"`
	Where          map[string]string            `yaml:"where,omitempty"`
	Children       map[string]map[string]string `yaml:"children,omitempty"`
	Page           int                          `yaml:"page,omitempty"`
	PageSize       int                          `yaml:"page_size,omitempty"`
	Sort           []string                     `yaml:"sort,omitempty"`
	LatestOnly     bool                         `yaml:"latest_only,omitempty"`
	LatestRefsOnly bool                         `yaml:"latest_refs_only"`
	AsOf           string                       `yaml:"as_of,omitempty"`
	IncludeDeleted bool                         `yaml:"include_deleted,omitempty"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Error is the expected error code, e.g. CONFLICT.
	Error string `yaml:"error,omitempty"`

	// IDs are the aliases a find returns. Order matters only when
	// Ordered is set.
	IDs     []string `yaml:"ids,omitempty"`
	Ordered bool     `yaml:"ordered,omitempty"`

	// Version is the version a save or update returns.
	Version *int64 `yaml:"version,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is element or history.
	Type string `yaml:"type"`

	Ref string `yaml:"ref"`

	// Expect holds the keys the head map of ref must contain (element).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the number of modifications of ref (history).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertElement = "element"
	AssertHistory = "history"
)

// LoadScenario reads and parses a scenario YAML file and resolves its
// schema path relative to the file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml scenario in dir in name order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema not found: %s", s.Schema)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	aliases := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, &step, aliases); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, aliases); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step, aliases map[string]bool) error {
	switch step.Op {
	case OpSave:
		if step.Type == "" {
			return fmt.Errorf("steps[%d]: type is required for save", index)
		}
		if step.As != "" {
			if aliases[step.As] {
				return fmt.Errorf("steps[%d]: alias %q is already bound", index, step.As)
			}
			aliases[step.As] = true
		}
	case OpUpdate, OpDelete, OpCheckVersion:
		if !aliases[step.Ref] {
			return fmt.Errorf("steps[%d]: ref %q is not bound by an earlier save", index, step.Ref)
		}
	case OpFind:
		if step.Type == "" {
			return fmt.Errorf("steps[%d]: type is required for find", index)
		}
		if step.Find == nil {
			return fmt.Errorf("steps[%d]: find is required for find", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
	if step.Expect != nil && len(step.Expect.IDs) > 0 && step.Op != OpFind {
		return fmt.Errorf("steps[%d]: expect.ids only applies to find", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, aliases map[string]bool) error {
	if !aliases[a.Ref] {
		return fmt.Errorf("assertions[%d]: ref %q is not bound", index, a.Ref)
	}
	switch a.Type {
	case AssertElement:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for element", index)
		}
	case AssertHistory:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for history", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
