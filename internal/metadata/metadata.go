// Package metadata loads the per-tab flow descriptors that drive test cases.
// Each descriptor names a sheet tab and declares the ordered input and output
// flows of API steps to run for every row of that tab.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Errors returned by the metadata package.
var (
	// ErrMetadataNotFound is returned when the metadata directory does not exist.
	ErrMetadataNotFound = errors.New("metadata: metadata directory not found")
	// ErrMissingTabName is returned when a descriptor has no tab name.
	ErrMissingTabName = errors.New("metadata: tab name not found")
	// ErrIncompleteStep is returned when a step lacks sequence, action, entity or url.
	ErrIncompleteStep = errors.New("metadata: missing required step fields")
)

// Action is the HTTP verb of a step.
type Action string

// Supported actions. Flows only exercise POST and PUT.
const (
	ActionGet    Action = "GET"
	ActionPost   Action = "POST"
	ActionPut    Action = "PUT"
	ActionDelete Action = "DELETE"
)

// Sequence is a step's position label. Metadata may write it as a number or a string.
type Sequence string

// UnmarshalJSON accepts numbers and strings.
func (s *Sequence) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = Sequence(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("sequence must be a number or string: %s", string(data))
	}
	*s = Sequence(num.String())
	return nil
}

// UnmarshalYAML accepts any scalar.
func (s *Sequence) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("sequence must be a scalar at line %d", node.Line)
	}
	*s = Sequence(node.Value)
	return nil
}

// Int returns the numeric sequence, or ok=false if it is not a number.
func (s Sequence) Int() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(s)))
	return n, err == nil
}

// Descriptor is the metadata for one tab.
type Descriptor struct {
	// TabName is the sheet (and workbook file) name.
	TabName string `json:"tab_name" yaml:"tab_name"`

	// Flow holds the input and output step sequences.
	Flow TestCaseFlow `json:"test_case_flow" yaml:"test_case_flow"`

	// Source is the file the descriptor was read from.
	Source string `json:"-" yaml:"-"`
}

// TestCaseFlow holds both flows of a tab.
type TestCaseFlow struct {
	Inputs  []StepDefinition `json:"inputs" yaml:"inputs"`
	Outputs []StepDefinition `json:"outputs" yaml:"outputs"`
}

// StepDefinition declares one API call of a flow.
type StepDefinition struct {
	// Sequence orders the step within its flow.
	Sequence Sequence `json:"sequence" yaml:"sequence"`

	// Action is the HTTP verb.
	Action Action `json:"action" yaml:"action"`

	// Entity names the target entity; sheet columns are keyed by it.
	Entity string `json:"entity" yaml:"entity"`

	// URL is appended to the base URL.
	URL string `json:"url" yaml:"url"`

	// IdentifierAttributes locate an existing entity instance.
	IdentifierAttributes []string `json:"identifier_attributes,omitempty" yaml:"identifier_attributes,omitempty"`

	// InputAttributes are written into the entity (input flow only).
	InputAttributes []string `json:"input_attributes,omitempty" yaml:"input_attributes,omitempty"`

	// OutputAttributes are compared against expected values (output flow only).
	OutputAttributes []string `json:"output_attributes,omitempty" yaml:"output_attributes,omitempty"`
}

// Validate reports ErrIncompleteStep when a required field is empty.
func (s *StepDefinition) Validate() error {
	var missing []string
	if strings.TrimSpace(string(s.Sequence)) == "" {
		missing = append(missing, "sequence")
	}
	if strings.TrimSpace(string(s.Action)) == "" {
		missing = append(missing, "action")
	}
	if strings.TrimSpace(s.Entity) == "" {
		missing = append(missing, "entity")
	}
	if strings.TrimSpace(s.URL) == "" {
		missing = append(missing, "url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncompleteStep, strings.Join(missing, ", "))
	}
	return nil
}

// Method returns the upper-cased action.
func (s *StepDefinition) Method() Action {
	return Action(strings.ToUpper(strings.TrimSpace(string(s.Action))))
}

// NormalizedEntity returns the upper-cased entity name used for sheet keys
// and the entity output map.
func (s *StepDefinition) NormalizedEntity() string {
	return strings.ToUpper(strings.TrimSpace(s.Entity))
}

// Validate checks the descriptor itself. Steps are checked separately so that
// an incomplete step only skips that step.
func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.TabName) == "" {
		return ErrMissingTabName
	}
	return nil
}

// Partition splits steps into runnable ones and warns about incomplete ones.
func Partition(steps []StepDefinition, log *zap.Logger) []StepDefinition {
	if log == nil {
		log = zap.NewNop()
	}

	valid := make([]StepDefinition, 0, len(steps))
	for i, step := range steps {
		if err := step.Validate(); err != nil {
			log.Warn("skipping step",
				zap.Int("index", i),
				zap.String("sequence", string(step.Sequence)),
				zap.String("entity", step.Entity),
				zap.Error(err),
			)
			continue
		}
		valid = append(valid, step)
	}
	return valid
}

// LoadDir reads every regular file in dir as a descriptor. Files that fail to
// decode are logged and skipped. Descriptors are returned in file name order.
func LoadDir(dir string, log *zap.Logger) ([]Descriptor, error) {
	if log == nil {
		log = zap.NewNop()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMetadataNotFound, dir)
		}
		return nil, fmt.Errorf("reading metadata directory: %w", err)
	}

	var descriptors []Descriptor
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		desc, err := LoadFile(path)
		if err != nil {
			log.Warn("skipping metadata file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		descriptors = append(descriptors, *desc)
	}

	return descriptors, nil
}

// LoadFile decodes one descriptor. YAML is used for .yaml/.yml files, JSON otherwise.
func LoadFile(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata file: %w", err)
	}

	var desc Descriptor
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &desc); err != nil {
			return nil, fmt.Errorf("decoding YAML in %s: %w", filepath.Base(path), err)
		}
	default:
		if err := json.Unmarshal(data, &desc); err != nil {
			return nil, fmt.Errorf("decoding JSON in %s: %w", filepath.Base(path), err)
		}
	}

	desc.Source = path
	return &desc, nil
}
