package feature

import (
	"fmt"
	"strings"
)

// Step is one instruction line within a scenario. The text is mutable only
// through UpdateFrom, which is how hot reload swaps an edited instruction in
// place without rebuilding the feature.
type Step struct {
	Line int    // 1-based line number in the source file
	Text string // Raw instruction text, including any "*" meta prefix
}

// NewStep creates a step at the given source line.
func NewStep(line int, text string) *Step {
	return &Step{Line: line, Text: text}
}

// UpdateFrom re-parses the step's instruction in place. It fails for text
// that cannot be a step, leaving the old text intact.
func (s *Step) UpdateFrom(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("empty step text")
	}
	if strings.HasPrefix(trimmed, "#") {
		return fmt.Errorf("step text is a comment: %s", trimmed)
	}
	if strings.TrimSpace(strings.TrimPrefix(trimmed, "*")) == "" {
		return fmt.Errorf("step has no instruction: %s", trimmed)
	}
	s.Text = trimmed
	return nil
}

// IsMeta returns true for "*"-prefixed steps, which are hidden from reports
// unless they print or the config requests showing all steps.
func (s *Step) IsMeta() bool {
	return strings.HasPrefix(strings.TrimSpace(s.Text), "*")
}

// Instruction returns the step text with any meta prefix stripped.
func (s *Step) Instruction() string {
	t := strings.TrimSpace(s.Text)
	if strings.HasPrefix(t, "*") {
		t = strings.TrimSpace(t[1:])
	}
	return t
}

// IsPrint returns true when the instruction is a print command.
func (s *Step) IsPrint() bool {
	inst := s.Instruction()
	return inst == "print" || strings.HasPrefix(inst, "print ")
}

// DebugInfo returns the step's source location for error logging.
func (s *Step) DebugInfo() string {
	return fmt.Sprintf("line %d", s.Line)
}

func (s *Step) String() string {
	return s.Text
}
