package engine

import (
	"fmt"

	"github.com/devicelab-dev/scenario-runner/pkg/core"
	"github.com/devicelab-dev/scenario-runner/pkg/jsengine"
	"github.com/devicelab-dev/scenario-runner/pkg/logger"
)

// VarOrigin records who owns a scope's variable map.
type VarOrigin int

const (
	// VarsOwned means the map belongs exclusively to this scope.
	VarsOwned VarOrigin = iota
	// VarsSharedRef means the map is the caller's live map, shared by
	// reference. Mutations are visible to the caller and any sibling
	// sharing the same reference.
	VarsSharedRef
)

// VarStore holds a scope's variables. No internal locking: the map is
// either exclusively owned, or mutation is serialized through the async
// gate by callers that opted into shared scope.
type VarStore struct {
	values map[string]interface{}
}

// NewVarStore creates an empty owned store.
func NewVarStore() *VarStore {
	return &VarStore{values: make(map[string]interface{})}
}

// Get returns a variable value.
func (v *VarStore) Get(name string) (interface{}, bool) {
	val, ok := v.values[name]
	return val, ok
}

// Set binds a variable.
func (v *VarStore) Set(name string, value interface{}) {
	v.values[name] = value
}

// SetAll binds every entry of the map.
func (v *VarStore) SetAll(vars map[string]interface{}) {
	for k, val := range vars {
		v.values[k] = val
	}
}

// Snapshot returns a shallow copy of the current values.
func (v *VarStore) Snapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

// Copy returns a new owned store with copied values. Deep copies map and
// slice values so mutations cannot leak across the scope boundary.
func (v *VarStore) Copy(deep bool) *VarStore {
	out := NewVarStore()
	for k, val := range v.values {
		out.values[k] = jsengine.CopyValue(val, deep)
	}
	return out
}

// Len returns the number of variables.
func (v *VarStore) Len() int { return len(v.values) }

// Config is the runtime configuration of one scenario scope, mutable
// through configure steps. SharedScope calls see the caller's live config;
// IsolatedScope calls get a clone so overrides do not leak upward.
type Config struct {
	ShowLog                bool
	ShowAllSteps           bool
	AbortedStepsShouldPass bool
	// AfterScenario is a JS function source evaluated as a scenario-level
	// teardown hook. Failures are captured, never rethrown.
	AfterScenario string
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{ShowLog: true}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// FailureListener is an external collaborator notified when a step fails.
// Notification is fire-and-forget and has no effect on control flow.
type FailureListener interface {
	OnFailure(result *core.StepResult)
}

// Scope binds a scenario execution's variables, configuration, JS engine
// and log sink. It is handed to the step interpreter as the action context;
// there is no process-global registration of the active scope.
type Scope struct {
	Vars       *VarStore
	VarsOrigin VarOrigin
	Config     *Config
	JS         *jsengine.Engine
	Logger     *logger.Logger

	magic     map[string]interface{}
	listeners []FailureListener
	closers   []func() error
}

// resolveScope decides the initial variables, config and log sink for a new
// scenario execution. Always succeeds.
func resolveScope(call *ScenarioCall, perfMode bool) (*VarStore, VarOrigin, *Config, logger.Appender) {
	switch call.Mode {
	case CallModeSharedScope:
		parent := call.Parent.Scope
		return parent.Vars, VarsSharedRef, parent.Config, call.Parent.appender
	case CallModeIsolatedScope:
		parent := call.Parent.Scope
		return parent.Vars.Copy(true), VarsOwned, parent.Config.Clone(), call.Parent.appender
	default:
		var appender logger.Appender
		if perfMode {
			appender = logger.NopAppender{}
		} else {
			appender = logger.NewStringAppender()
		}
		return NewVarStore(), VarsOwned, NewConfig(), appender
	}
}

// bind pushes magic variables and the current variable map into the JS
// runtime. Real variables shadow magic ones.
func (s *Scope) bind() {
	for k, v := range s.magic {
		s.JS.SetVariable(k, v)
	}
	for k, v := range s.Vars.Snapshot() {
		s.JS.SetVariable(k, v)
	}
}

// Eval evaluates a JS expression against the scope's variables.
func (s *Scope) Eval(expr string) (interface{}, error) {
	s.bind()
	return s.JS.Eval(expr)
}

// EvalBool evaluates a JS expression and coerces the result to a boolean.
func (s *Scope) EvalBool(expr string) (bool, error) {
	s.bind()
	return s.JS.EvalBool(expr)
}

// EvalTemplate evaluates a template literal against the scope's variables.
func (s *Scope) EvalTemplate(text string) (string, error) {
	s.bind()
	return s.JS.EvalTemplate(text)
}

// EvalConfig evaluates a config script and returns the variable map it
// produced.
func (s *Scope) EvalConfig(src, displayName string) (map[string]interface{}, error) {
	s.bind()
	return s.JS.EvalConfigScript(src, displayName)
}

// SetVariable binds a variable in the scope.
func (s *Scope) SetVariable(name string, value interface{}) {
	s.Vars.Set(name, value)
}

// GetVariable returns a variable from the scope, or a magic variable when
// no real variable shadows it.
func (s *Scope) GetVariable(name string) (interface{}, bool) {
	if v, ok := s.Vars.Get(name); ok {
		return v, true
	}
	v, ok := s.magic[name]
	return v, ok
}

// SetVariables binds every entry of the map.
func (s *Scope) SetVariables(vars map[string]interface{}) {
	s.Vars.SetAll(vars)
}

// AddFailureListener registers an external failure collaborator.
func (s *Scope) AddFailureListener(l FailureListener) {
	s.listeners = append(s.listeners, l)
}

// NotifyFailure notifies attached collaborators of a failed step. Panics
// in a listener are logged and swallowed.
func (s *Scope) NotifyFailure(result *core.StepResult) {
	for _, l := range s.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.Logger.Warn("failure listener panicked: %v", r)
				}
			}()
			l.OnFailure(result)
		}()
	}
}

// AddCloser registers a scenario-scoped resource released when the scope
// stops.
func (s *Scope) AddCloser(close func() error) {
	s.closers = append(s.closers, close)
}

// Stop releases scenario-scoped resources. Errors are logged, not
// propagated.
func (s *Scope) Stop(last *core.StepResult) {
	for _, close := range s.closers {
		if err := close(); err != nil {
			s.Logger.Warn("failed to release scenario resource: %v", err)
		}
	}
	s.closers = nil
}

// MagicVariables returns the read-only magic variable mapping.
func (s *Scope) MagicVariables() map[string]interface{} {
	return s.magic
}

func (s *Scope) String() string {
	return fmt.Sprintf("scope[vars=%d origin=%d]", s.Vars.Len(), s.VarsOrigin)
}
