package oracle

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"gopkg.in/yaml.v3"
)

// Script answers from a fixed table of outcomes, typically loaded from YAML:
//
//	default: pass
//	outcomes:
//	  org.example.CalcTest#testAdd: fail
//	traces:
//	  org.example.CalcTest#testAdd: ["org.example$Calc#add(int,int):10"]
type Script struct {
	Default  string              `yaml:"default"`
	Outcomes map[string]string   `yaml:"outcomes"`
	Traces   map[string][]string `yaml:"traces"`
}

// LoadScript reads a Script from a YAML file.
func LoadScript(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseScript(f)
}

// ParseScript decodes and validates a YAML script.
func ParseScript(r io.Reader) (*Script, error) {
	var s Script
	if err := yaml.NewDecoder(r).Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if s.Default != "" {
		if _, err := parseOutcome(s.Default); err != nil {
			return nil, fmt.Errorf("invalid default: %w", err)
		}
	}
	for name, o := range s.Outcomes {
		if _, err := parseOutcome(o); err != nil {
			return nil, fmt.Errorf("invalid outcome for %s: %w", name, err)
		}
	}
	return &s, nil
}

// Execute implements tdp.Oracle.
func (s *Script) Execute(ctx context.Context, test planner.AvailableTest) (tdp.TestResult, error) {
	if err := ctx.Err(); err != nil {
		return tdp.TestResult{}, err
	}
	outcome, ok := s.Outcomes[test.Name]
	if !ok {
		outcome = s.Default
	}
	if outcome == "" {
		return tdp.TestResult{}, fmt.Errorf("%w: %s", ErrUnknownTest, test.Name)
	}
	passed, err := parseOutcome(outcome)
	if err != nil {
		return tdp.TestResult{}, err
	}

	res := tdp.TestResult{Name: test.Name, Passed: passed}
	if trace, ok := s.Traces[test.Name]; ok {
		res.ActualTrace = coverage.NewElementSet(trace...)
	}
	return res, nil
}

// parseOutcome accepts pass/fail in the spellings people type.
func parseOutcome(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p", "pass", "passed", "ok":
		return true, nil
	case "f", "fail", "failed":
		return false, nil
	}
	return false, fmt.Errorf("unknown outcome %q", s)
}
