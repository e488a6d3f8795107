package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/allocaudit/internal/ir"
	"github.com/roach88/allocaudit/internal/ledger"
)

// Scenario is a recorded event sequence and what replaying it must show.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Events is the sequence replayed, in order. May be empty.
	Events []EventSpec `yaml:"events"`

	// Expect holds the checks applied to the replay.
	Expect Expect `yaml:"expect"`
}

// EventSpec is the YAML form of one event.
type EventSpec struct {
	Kind        string      `yaml:"kind"`
	Region      *RegionSpec `yaml:"region,omitempty"`
	Free        *RegionSpec `yaml:"free,omitempty"`
	IsZeroed    string      `yaml:"is_zeroed,omitempty"`
	IsRelocated string      `yaml:"is_relocated,omitempty"`
	Backtrace   []string    `yaml:"backtrace,omitempty"`
}

// RegionSpec is the YAML form of a region. Address accepts any Go integer
// literal, so both 4096 and 0x1000 work.
type RegionSpec struct {
	Address string `yaml:"address"`
	Size    uint64 `yaml:"size"`
	Align   uint64 `yaml:"align"`
}

// Expect lists the outcomes a scenario asserts. Nil fields are not checked.
type Expect struct {
	Violations     []ViolationSpec `yaml:"violations"`
	Leaks          *int            `yaml:"leaks,omitempty"`
	MaxMemory      *uint64         `yaml:"max_memory,omitempty"`
	MaxMemoryError string          `yaml:"max_memory_error,omitempty"`
}

// ViolationSpec matches one reported violation.
type ViolationSpec struct {
	Kind    string `yaml:"kind"`
	Address string `yaml:"address,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// FindScenarios returns the YAML files in dir, sorted by name. An empty
// pattern matches every file; otherwise pattern is a filepath.Match glob
// applied to the base name.
func FindScenarios(dir, pattern string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenarios directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		if pattern != "" {
			ok, err := filepath.Match(pattern, name)
			if err != nil {
				return nil, fmt.Errorf("invalid filter %q: %w", pattern, err)
			}
			if !ok {
				continue
			}
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	for i, spec := range s.Events {
		if _, err := spec.Event(); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
	}

	for i, v := range s.Expect.Violations {
		if _, err := ledger.ParseKind(v.Kind); err != nil {
			return fmt.Errorf("expect.violations[%d]: %w", i, err)
		}
		if v.Address != "" {
			if _, err := ir.ParsePointer(v.Address); err != nil {
				return fmt.Errorf("expect.violations[%d]: %w", i, err)
			}
		}
	}

	if s.Expect.Leaks != nil && *s.Expect.Leaks < 0 {
		return fmt.Errorf("expect.leaks must be non-negative")
	}

	if s.Expect.MaxMemory != nil && s.Expect.MaxMemoryError != "" {
		return fmt.Errorf("expect: max_memory and max_memory_error are mutually exclusive")
	}
	if s.Expect.MaxMemoryError != "" {
		if _, err := ledger.ParseKind(s.Expect.MaxMemoryError); err != nil {
			return fmt.Errorf("expect.max_memory_error: %w", err)
		}
	}

	return nil
}

// events converts every event spec.
func (s *Scenario) events() ([]ir.Event, error) {
	events := make([]ir.Event, 0, len(s.Events))
	for i, spec := range s.Events {
		e, err := spec.Event()
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// Event converts the YAML event through the wire record, so YAML and JSON
// events are validated identically.
func (s EventSpec) Event() (ir.Event, error) {
	rec := ir.EventRecord{
		Kind:      ir.Kind(s.Kind),
		Backtrace: ir.Backtrace(s.Backtrace),
	}

	var err error
	if rec.Region, err = s.Region.region(); err != nil {
		return nil, fmt.Errorf("region: %w", err)
	}
	if rec.Free, err = s.Free.region(); err != nil {
		return nil, fmt.Errorf("free: %w", err)
	}
	if rec.IsZeroed, err = ir.ParseTristate(s.IsZeroed); err != nil {
		return nil, fmt.Errorf("is_zeroed: %w", err)
	}
	if rec.IsRelocated, err = ir.ParseTristate(s.IsRelocated); err != nil {
		return nil, fmt.Errorf("is_relocated: %w", err)
	}

	return rec.Event()
}

func (r *RegionSpec) region() (*ir.Region, error) {
	if r == nil {
		return nil, nil
	}
	addr, err := ir.ParsePointer(r.Address)
	if err != nil {
		return nil, err
	}
	region := ir.NewRegion(addr, r.Size, r.Align)
	return &region, nil
}
