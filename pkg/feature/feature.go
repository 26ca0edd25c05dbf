// Package feature handles parsing and representation of YAML feature files.
package feature

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Feature is the immutable description of one feature file: shared background
// steps plus the scenarios that inherit them. Call modifiers (line, tag, name)
// parsed from the path suffix narrow which scenarios a nested call selects.
type Feature struct {
	Path       string // Source file path, without any call suffix
	Name       string
	Tags       []string
	Background []*Step
	Scenarios  []*Scenario

	// Call modifiers, set when the feature was addressed as
	// "file.yaml:12", "file.yaml@tag" or "file.yaml~name".
	CallLine int // -1 when absent
	CallName string
	CallTag  string
}

// Scenario is one executable test case: an ordered step list plus metadata.
// Read-only to the execution core except for the evaluated display name.
type Scenario struct {
	Feature     *Feature
	Name        string // May contain a ${...} template, evaluated at run time
	Description string
	Tags        []string
	Line        int // Line of this scenario (example row line for outlines)
	SectionLine int // Line of the enclosing scenario entry

	Steps []*Step

	// Outline/example data, set when the scenario was generated from a row.
	ExampleData  map[string]interface{}
	ExampleIndex int

	// Dynamic marks an outline whose example rows come from an expression
	// evaluated after a background-only pre-pass.
	Dynamic     bool
	DynamicExpr string
}

// TagsEffective returns the scenario's tags merged with the feature's.
func (s *Scenario) TagsEffective() []string {
	seen := make(map[string]bool)
	var tags []string
	for _, t := range s.Feature.Tags {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	for _, t := range s.Tags {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	return tags
}

// HasTag returns true if the effective tag set contains the tag.
func (s *Scenario) HasTag(tag string) bool {
	tag = strings.TrimPrefix(tag, "@")
	for _, t := range s.TagsEffective() {
		if t == tag {
			return true
		}
	}
	return false
}

// BackgroundSteps returns the feature's shared background steps.
func (s *Scenario) BackgroundSteps() []*Step {
	return s.Feature.Background
}

// StepsIncludingBackground returns background steps followed by the
// scenario's own steps, as a fresh slice.
func (s *Scenario) StepsIncludingBackground() []*Step {
	steps := make([]*Step, 0, len(s.Feature.Background)+len(s.Steps))
	steps = append(steps, s.Feature.Background...)
	steps = append(steps, s.Steps...)
	return steps
}

// IsOutlineExample returns true when the scenario was generated from an
// example row.
func (s *Scenario) IsOutlineExample() bool {
	return s.ExampleData != nil
}

// UniqueID returns a stable identifier used for attachment file names.
func (s *Scenario) UniqueID() string {
	base := strings.TrimSuffix(filepath.Base(s.Feature.Path), filepath.Ext(s.Feature.Path))
	id := fmt.Sprintf("%s_%d", base, s.SectionLine)
	if s.IsOutlineExample() {
		id = fmt.Sprintf("%s_%d", id, s.ExampleIndex)
	}
	return id
}

// SetName replaces the display name after template evaluation.
func (s *Scenario) SetName(name string) {
	s.Name = name
}

func (s *Scenario) String() string {
	return fmt.Sprintf("%s:%d %s", s.Feature.Path, s.Line, s.Name)
}

// FindStepByLine locates the step at the given source line, searching the
// background and every scenario. Returns nil when no step matches.
func (f *Feature) FindStepByLine(line int) *Step {
	for _, step := range f.Background {
		if step.Line == line {
			return step
		}
	}
	for _, sc := range f.Scenarios {
		for _, step := range sc.Steps {
			if step.Line == line {
				return step
			}
		}
	}
	return nil
}

// ParsePath splits a feature path into the file path and call modifiers.
// Supported suffixes: ":42" (call line), "@tag" (call tag), "~name" (call
// name regex).
func ParsePath(path string) (file string, callLine int, callTag, callName string) {
	callLine = -1
	file = path
	if i := strings.LastIndex(file, "~"); i > 0 {
		callName = file[i+1:]
		file = file[:i]
		return file, callLine, callTag, callName
	}
	if i := strings.LastIndex(file, "@"); i > 0 {
		callTag = file[i+1:]
		file = file[:i]
		return file, callLine, callTag, callName
	}
	if i := strings.LastIndex(file, ":"); i > 0 {
		line := 0
		digits := file[i+1:]
		if digits != "" {
			ok := true
			for _, c := range digits {
				if c < '0' || c > '9' {
					ok = false
					break
				}
				line = line*10 + int(c-'0')
			}
			if ok {
				callLine = line
				file = file[:i]
			}
		}
	}
	return file, callLine, callTag, callName
}
