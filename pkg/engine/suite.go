// Package engine implements the scenario execution core: the state machine
// that iterates steps, dispatches lifecycle hooks, aggregates results,
// resolves variable scope across nested calls and serializes asynchronous
// child executions.
package engine

import (
	"sync"

	"github.com/devicelab-dev/scenario-runner/pkg/core"
	"github.com/devicelab-dev/scenario-runner/pkg/feature"
)

// Interpreter executes a single step against the runtime's scope. The core
// does not know how the instruction executes; it only classifies the
// returned outcome.
type Interpreter interface {
	Execute(step *feature.Step, rt *ScenarioRuntime) core.Result
}

// AttachmentStore persists embedded artifacts. The returned locator is
// stored on the embed in place of the raw bytes.
type AttachmentStore interface {
	Save(scenarioID string, data []byte, resourceType core.ResourceType) (string, error)
}

// Suite holds the run-wide collaborators and settings shared by every
// scenario runtime of one run.
type Suite struct {
	Interp Interpreter
	Hooks  []RuntimeHook
	Store  AttachmentStore

	TagSelector    string // Suite-wide tag selector expression
	Env            string // Environment name for the layered config script
	DryRun         bool
	PerfMode       bool
	ConfigDisabled bool // Skip the layered config scripts entirely

	// Layered config script sources, evaluated in order at the start of
	// every top-level scenario: base, global, environment-specific.
	ConfigBase string
	ConfigMain string
	ConfigEnv  string

	// async tracks outstanding spawned child executions so a run can wait
	// for them before finalizing reports.
	async sync.WaitGroup
}

// TrackAsync registers an outstanding asynchronous child execution.
func (s *Suite) TrackAsync() {
	s.async.Add(1)
}

// AsyncDone marks one asynchronous child execution as finished.
func (s *Suite) AsyncDone() {
	s.async.Done()
}

// WaitForAsync blocks until all spawned child executions have finished.
func (s *Suite) WaitForAsync() {
	s.async.Wait()
}
