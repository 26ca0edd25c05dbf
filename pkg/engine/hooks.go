package engine

import (
	"github.com/devicelab-dev/scenario-runner/pkg/core"
	"github.com/devicelab-dev/scenario-runner/pkg/feature"
	"github.com/devicelab-dev/scenario-runner/pkg/logger"
)

// RuntimeHook observes the four lifecycle points of scenario execution.
// Implementations register into the suite's ordered hook list, resolved
// once at suite start. BeforeStep returns a veto: when any hook returns
// false the step is skipped entirely, not executed and not counted.
type RuntimeHook interface {
	BeforeScenario(rt *ScenarioRuntime)
	BeforeStep(step *feature.Step, rt *ScenarioRuntime) bool
	AfterStep(result *core.StepResult, rt *ScenarioRuntime)
	AfterScenario(rt *ScenarioRuntime)
}

// BaseHook is a no-op RuntimeHook for embedding, so implementations only
// override the points they care about.
type BaseHook struct{}

// BeforeScenario is a no-op.
func (BaseHook) BeforeScenario(*ScenarioRuntime) {}

// BeforeStep allows the step.
func (BaseHook) BeforeStep(*feature.Step, *ScenarioRuntime) bool { return true }

// AfterStep is a no-op.
func (BaseHook) AfterStep(*core.StepResult, *ScenarioRuntime) {}

// AfterScenario is a no-op.
func (BaseHook) AfterScenario(*ScenarioRuntime) {}

// A panicking hook must not abort the dispatcher: the failure is logged
// and the remaining hooks still run.
func safely(log *logger.Logger, point string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("%s hook failed: %v", point, r)
		}
	}()
	fn()
}

func dispatchBeforeScenario(hooks []RuntimeHook, rt *ScenarioRuntime) {
	for _, h := range hooks {
		safely(rt.Logger, "beforeScenario", func() { h.BeforeScenario(rt) })
	}
}

// dispatchBeforeStep runs every beforeStep hook and ANDs the results. A
// hook that panics is logged and does not veto.
func dispatchBeforeStep(hooks []RuntimeHook, step *feature.Step, rt *ScenarioRuntime) bool {
	shouldExecute := true
	for _, h := range hooks {
		hook := h
		safely(rt.Logger, "beforeStep", func() {
			if !hook.BeforeStep(step, rt) {
				shouldExecute = false
			}
		})
	}
	return shouldExecute
}

func dispatchAfterStep(hooks []RuntimeHook, result *core.StepResult, rt *ScenarioRuntime) {
	for _, h := range hooks {
		hook := h
		safely(rt.Logger, "afterStep", func() { hook.AfterStep(result, rt) })
	}
}

func dispatchAfterScenario(hooks []RuntimeHook, rt *ScenarioRuntime) {
	for _, h := range hooks {
		hook := h
		safely(rt.Logger, "afterScenario", func() { hook.AfterScenario(rt) })
	}
}
