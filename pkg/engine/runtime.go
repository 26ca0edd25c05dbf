package engine

import (
	"context"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/devicelab-dev/scenario-runner/pkg/core"
	"github.com/devicelab-dev/scenario-runner/pkg/feature"
	"github.com/devicelab-dev/scenario-runner/pkg/jsengine"
	"github.com/devicelab-dev/scenario-runner/pkg/logger"
)

// ScenarioRuntime drives one scenario execution to completion: step
// iteration, stop/abort/error state, selection filtering, hot reload and
// the run/after-run lifecycle. An instance runs on one goroutine at a time;
// many instances run concurrently across a pool.
type ScenarioRuntime struct {
	Logger     *logger.Logger
	Feature    *FeatureRuntime
	Background *ScenarioRuntime // Background-only pre-pass, used to check which steps remain
	Caller     *ScenarioCall
	Scenario   *feature.Scenario
	Tags       []string
	Result     *core.ScenarioResult
	Scope      *Scope

	ReportDisabled       bool
	SelectedForExecution bool
	PerfMode             bool
	DryRun               bool

	// Executor identifies the worker running this scenario, stamped on the
	// result. Set by the scheduler before Run; defaults to "main".
	Executor string

	appender logger.Appender
	ctx      context.Context

	// Mutable control block, owned exclusively by this runtime.
	steps             []*feature.Step
	embeds            []core.Embed
	callResults       []*core.ScenarioResult
	currentStepResult *core.StepResult
	currentStep       *feature.Step
	err               error
	configFailed      bool
	stopped           bool
	aborted           bool
	stepIndex         int

	gate             *Gate
	hasAsyncChildren atomic.Bool
	isAsyncChild     bool
}

// NewScenarioRuntime constructs a runtime bound to a scenario and its
// invocation context. background, when non-nil, is the runtime of a
// background-only pre-pass whose step results this execution inherits.
func NewScenarioRuntime(fr *FeatureRuntime, scenario *feature.Scenario, background *ScenarioRuntime) *ScenarioRuntime {
	caller := fr.Caller
	if caller == nil {
		caller = CallNone()
	}
	rt := &ScenarioRuntime{
		Feature:    fr,
		Background: background,
		Caller:     caller,
		Scenario:   scenario,
		PerfMode:   fr.Suite.PerfMode,
		DryRun:     fr.Suite.DryRun,
		Executor:   "main",
		gate:       NewGate(),
	}

	vars, origin, config, appender := resolveScope(caller, rt.PerfMode)
	rt.appender = appender
	rt.Logger = logger.New(appender)
	rt.Scope = &Scope{
		Vars:       vars,
		VarsOrigin: origin,
		Config:     config,
		JS:         jsengine.New(rt.Logger),
		Logger:     rt.Logger,
	}
	rt.Scope.magic = rt.initMagicVariables()

	rt.Result = &core.ScenarioResult{
		ScenarioName: scenario.Name,
		UniqueID:     scenario.UniqueID(),
		FeaturePath:  scenario.Feature.Path,
		Line:         scenario.Line,
	}
	if background != nil {
		for _, sr := range background.Result.StepResults {
			rt.Result.AddStepResult(sr)
		}
	}

	rt.Tags = scenario.TagsEffective()
	rt.ReportDisabled = rt.PerfMode || scenario.HasTag("report=false")
	rt.SelectedForExecution = isSelectedForExecution(fr, scenario, rt)
	return rt
}

// IsFailed returns true once an error has been captured or any recorded
// step failed.
func (rt *ScenarioRuntime) IsFailed() bool {
	return rt.err != nil || rt.Result.IsFailed()
}

// IsStopped returns true once execution has stopped.
func (rt *ScenarioRuntime) IsStopped() bool { return rt.stopped }

// IsAborted returns true when the stop was a deliberate abort.
func (rt *ScenarioRuntime) IsAborted() bool { return rt.aborted }

// Error returns the first captured error.
func (rt *ScenarioRuntime) Error() error { return rt.err }

// CurrentStep returns the step under execution, for debuggers and error
// reporting.
func (rt *ScenarioRuntime) CurrentStep() *feature.Step { return rt.currentStep }

// Suite returns the run-wide collaborators.
func (rt *ScenarioRuntime) Suite() *Suite { return rt.Feature.Suite }

// Context returns the execution context, valid during Run.
func (rt *ScenarioRuntime) Context() context.Context {
	if rt.ctx == nil {
		return context.Background()
	}
	return rt.ctx
}

// StepBack clears the stopped flag and rewinds the index by two, floored at
// zero, so the step before the current one re-executes. Only meaningful
// while paused mid-loop under a debugger.
func (rt *ScenarioRuntime) StepBack() {
	rt.stopped = false
	rt.stepIndex -= 2
	if rt.stepIndex < 0 {
		rt.stepIndex = 0
	}
}

// StepReset clears the stopped flag and rewinds by one, floored at zero, so
// the current step re-executes.
func (rt *ScenarioRuntime) StepReset() {
	rt.stopped = false
	rt.stepIndex--
	if rt.stepIndex < 0 {
		rt.stepIndex = 0
	}
}

// StepProceed clears the stopped flag without moving the index.
func (rt *ScenarioRuntime) StepProceed() {
	rt.stopped = false
}

func (rt *ScenarioRuntime) nextStepIndex() int {
	index := rt.stepIndex
	rt.stepIndex++
	return index
}

// MarkAsyncChild registers a spawned asynchronous child execution. From now
// on every step of this runtime, and of the child, serializes through the
// shared gate.
func (rt *ScenarioRuntime) MarkAsyncChild(child *ScenarioRuntime) {
	rt.hasAsyncChildren.Store(true)
	child.gate = rt.gate
	child.isAsyncChild = true
}

// AddCallResult accumulates a nested feature-call result; it is attached to
// the current step when the step completes.
func (rt *ScenarioRuntime) AddCallResult(r *core.ScenarioResult) {
	rt.callResults = append(rt.callResults, r)
}

// Embed saves a binary attachment through the attachment store and queues
// it for the current step.
func (rt *ScenarioRuntime) Embed(data []byte, resourceType core.ResourceType) (core.Embed, error) {
	embed := core.Embed{ResourceType: resourceType, Bytes: data}
	if store := rt.Suite().Store; store != nil {
		path, err := store.Save(rt.Scenario.UniqueID(), data, resourceType)
		if err != nil {
			rt.Logger.Warn("failed to save embed: %v", err)
			return embed, err
		}
		embed.Path = path
	}
	rt.embeds = append(rt.embeds, embed)
	return embed, nil
}

// EmbedVideo attaches a video capture to a synthesized "[video]" step so it
// is visible in the report independent of any real step.
func (rt *ScenarioRuntime) EmbedVideo(data []byte) (core.Embed, error) {
	stepResult := rt.Result.AddFakeStepResult("[video]", nil)
	embed := core.Embed{ResourceType: core.ResourceMP4, Bytes: data}
	if store := rt.Suite().Store; store != nil {
		path, err := store.Save(rt.Scenario.UniqueID(), data, core.ResourceMP4)
		if err != nil {
			rt.Logger.Warn("failed to save video embed: %v", err)
			return embed, err
		}
		embed.Path = path
	}
	stepResult.AddEmbeds([]core.Embed{embed})
	return embed, nil
}

// HotReload re-reads the scenario's source feature and reparses, in place,
// every loaded step whose text changed at its line. Returns whether any
// step was changed. A reparse failure leaves the old step intact.
func (rt *ScenarioRuntime) HotReload() bool {
	success := false
	fresh, err := feature.Read(rt.Scenario.Feature.Path)
	if err != nil {
		rt.Logger.Warn("failed to re-read feature for hot reload: %v", err)
		return false
	}
	for _, oldStep := range rt.steps {
		newStep := fresh.FindStepByLine(oldStep.Line)
		if newStep == nil {
			continue
		}
		if oldStep.Text != newStep.Text {
			if err := oldStep.UpdateFrom(newStep.Text); err != nil {
				rt.Logger.Warn("failed to hot reload step: %v", err)
				continue
			}
			rt.Logger.Info("hot reloaded line: %d - %s", newStep.Line, newStep.Text)
			success = true
		}
	}
	return success
}

// ScenarioInfo returns execution metadata for hook and collaborator use.
func (rt *ScenarioRuntime) ScenarioInfo() map[string]interface{} {
	info := map[string]interface{}{
		"featurePath":         rt.Scenario.Feature.Path,
		"scenarioName":        rt.Scenario.Name,
		"scenarioDescription": rt.Scenario.Description,
	}
	if rt.err != nil {
		info["errorMessage"] = rt.err.Error()
	}
	return info
}

func (rt *ScenarioRuntime) logError(message string) {
	if rt.currentStep != nil {
		message = rt.currentStep.DebugInfo() + "\n" + rt.currentStep.String() + "\n" + message
	}
	rt.Logger.Error("%s", message)
}

// initMagicVariables assembles the read-only implicit variables: the call
// argument and loop index for nested calls, and the example row data for
// outline scenarios.
func (rt *ScenarioRuntime) initMagicVariables() map[string]interface{} {
	magic := make(map[string]interface{})
	caller := rt.Caller
	if caller.IsNone() {
		if argMap, ok := caller.Arg.(map[string]interface{}); ok {
			for k, v := range argMap {
				magic[k] = v
			}
		}
	} else {
		magic["__arg"] = caller.Arg
		magic["__loop"] = caller.LoopIndex
		if argMap, ok := caller.Arg.(map[string]interface{}); ok {
			for k, v := range argMap {
				magic[k] = v
			}
		}
	}
	if rt.Scenario.IsOutlineExample() && !rt.Scenario.Dynamic {
		for k, v := range rt.Scenario.ExampleData {
			magic[k] = v
		}
		magic["__row"] = rt.Scenario.ExampleData
		magic["__num"] = rt.Scenario.ExampleIndex
	}
	return magic
}

// evalConfigScript evaluates one layered config script. A failure here is
// fatal to the scenario: every subsequent step records as failed with the
// captured error so the root cause is visible at every line.
func (rt *ScenarioRuntime) evalConfigScript(src, displayName string) {
	if src == "" {
		return
	}
	vars, err := rt.Scope.EvalConfig(src, displayName)
	if err != nil {
		rt.err = core.ErrConfigEval.WithCause(fmt.Errorf("%s: %s: %w", rt.Scenario, displayName, err))
		rt.stopped = true
		rt.configFailed = true
		return
	}
	rt.Scope.SetVariables(vars)
}

// isSelectedForExecution applies the selection filter, first match wins:
// call line, call name, call tag, then the suite tag selector for top-level
// runs. Nested calls ignore tags entirely.
func isSelectedForExecution(fr *FeatureRuntime, scenario *feature.Scenario, rt *ScenarioRuntime) bool {
	feat := scenario.Feature
	if feat.CallLine != -1 {
		if feat.CallLine == scenario.SectionLine || feat.CallLine == scenario.Line {
			rt.Logger.Info("found scenario at line: %d", feat.CallLine)
			return true
		}
		rt.Logger.Debug("skipping scenario at line: %d, needed: %d", scenario.Line, feat.CallLine)
		return false
	}
	if feat.CallName != "" {
		matched, err := regexp.MatchString(feat.CallName, scenario.Name)
		if err != nil {
			rt.Logger.Warn("invalid call name pattern %q: %v", feat.CallName, err)
			return false
		}
		if matched {
			rt.Logger.Info("found scenario at line: %d - %s", scenario.Line, feat.CallName)
			return true
		}
		rt.Logger.Debug("skipping scenario at line: %d - %s, needed: %s", scenario.Line, scenario.Name, feat.CallName)
		return false
	}
	if feat.CallTag != "" {
		if scenario.HasTag(feat.CallTag) {
			rt.Logger.Info("scenario called at line: %d by tag: %s", scenario.Line, feat.CallTag)
			return true
		}
		rt.Logger.Debug("skipping scenario at line: %d, call by tag: %s", scenario.Line, feat.CallTag)
		return false
	}
	if fr.Caller == nil || fr.Caller.IsNone() {
		selected, err := rt.Scope.JS.EvalTagSelector(fr.Suite.TagSelector, rt.Tags)
		if err != nil {
			rt.Logger.Warn("tag selector failed: %v", err)
			return false
		}
		if !selected {
			rt.Logger.Debug("skipping scenario at line: %d with tags: %v", scenario.Line, rt.Tags)
		}
		return selected
	}
	// when called, tags are ignored, all scenarios run
	return true
}

// BeforeRun chooses the step list, stamps start time and executor, runs the
// layered config scripts for top-level invocations and evaluates a dynamic
// scenario name.
func (rt *ScenarioRuntime) BeforeRun() {
	if rt.Scenario.Dynamic {
		rt.steps = rt.Scenario.BackgroundSteps()
	} else if rt.Background == nil {
		rt.steps = rt.Scenario.StepsIncludingBackground()
	} else {
		rt.steps = rt.Scenario.Steps
	}
	rt.Result.ExecutorName = rt.Executor
	rt.Result.StartTime = time.Now()
	if !rt.DryRun {
		suite := rt.Suite()
		if rt.Caller.IsNone() && !suite.ConfigDisabled {
			rt.evalConfigScript(suite.ConfigBase, "config-base.js")
			rt.evalConfigScript(suite.ConfigMain, "config.js")
			if suite.Env != "" {
				rt.evalConfigScript(suite.ConfigEnv, "config-"+suite.Env+".js")
			}
		}
		if rt.Background == nil {
			dispatchBeforeScenario(suite.Hooks, rt)
		}
	}
	if !rt.Scenario.Dynamic {
		// don't evaluate names when running only the background section
		rt.EvaluateScenarioName()
	}
}

// EvaluateScenarioName evaluates the scenario name as a template when it is
// explicitly backtick-quoted or contains an expression placeholder, and
// replaces the stored name with the result.
func (rt *ScenarioRuntime) EvaluateScenarioName() {
	name := rt.Scenario.Name
	if !jsengine.IsTemplateLiteral(name) && !jsengine.HasPlaceholder(name) {
		return
	}
	evaluated, err := rt.Scope.EvalTemplate(name)
	if err != nil {
		rt.Logger.Warn("failed to evaluate scenario name: %v", err)
		return
	}
	rt.Scenario.SetName(evaluated)
	rt.Result.ScenarioName = evaluated
}

// Run executes the scenario to completion and returns the aggregated
// result. Cleanup always runs, even when the loop itself crashes: the crash
// is converted into one synthesized failed step and afterRun still
// proceeds. The log sink of a top-level invocation is closed exactly once
// on the way out.
func (rt *ScenarioRuntime) Run(ctx context.Context) *core.ScenarioResult {
	if ctx == nil {
		ctx = context.Background()
	}
	rt.ctx = ctx
	defer func() {
		// don't add a synthetic background-only pre-pass to the results
		if !rt.Scenario.Dynamic {
			rt.AfterRun()
		}
		if rt.Caller.IsNone() {
			rt.appender.Close() // reclaim memory
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err := core.ErrScenarioCrashed.WithCause(fmt.Errorf("%v", r))
			rt.logError("scenario [run] failed\n" + err.Error())
			rt.currentStepResult = rt.Result.AddFakeStepResult("scenario [run] failed", err)
		}
	}()
	if rt.steps == nil {
		rt.BeforeRun()
	}
	count := len(rt.steps)
	for {
		index := rt.nextStepIndex()
		if index >= count {
			break
		}
		rt.currentStep = rt.steps[index]
		rt.execute(rt.currentStep)
		if rt.currentStepResult != nil { // nil on debug step-back or hook veto
			rt.Result.AddStepResult(rt.currentStepResult)
		}
	}
	return rt.Result
}

// execute runs one step through the classification ladder of the state
// machine and records its outcome.
func (rt *ScenarioRuntime) execute(step *feature.Step) {
	suite := rt.Suite()
	if !rt.stopped && !rt.DryRun {
		if !dispatchBeforeStep(suite.Hooks, step, rt) {
			rt.currentStepResult = nil
			return
		}
	}
	var stepResult core.Result
	executed := !rt.stopped
	switch {
	case rt.stopped:
		if rt.aborted && rt.Scope.Config.AbortedStepsShouldPass {
			stepResult = core.Passed(0)
		} else if rt.configFailed {
			stepResult = core.Failed(0, rt.err)
		} else {
			stepResult = core.Skipped()
		}
	case rt.DryRun:
		stepResult = core.Passed(0)
	case rt.hasAsyncChildren.Load() || rt.isAsyncChild:
		stepResult = rt.executeGated(step)
	default:
		stepResult = suite.Interp.Execute(step, rt)
	}
	rt.currentStepResult = core.NewStepResult(step.Line, step.Text, stepResult)
	if stepResult.IsAborted() {
		// we log only aborts for visibility; an abort is not an error
		rt.aborted = true
		rt.stopped = true
		rt.Logger.Debug("abort at %s", step.DebugInfo())
	} else if stepResult.IsFailed() {
		rt.stopped = true
		rt.err = stepResult.Err
		rt.logError(stepResult.Err.Error())
	} else {
		hidden := rt.ReportDisabled ||
			(step.IsMeta() && !step.IsPrint() && !rt.Scope.Config.ShowAllSteps)
		rt.currentStepResult.Hidden = hidden
	}
	rt.drainLogsEmbedsAndCallResults()
	if stepResult.IsFailed() {
		rt.Scope.NotifyFailure(rt.currentStepResult)
	}
	if executed && !rt.DryRun {
		dispatchAfterStep(suite.Hooks, rt.currentStepResult, rt)
	}
}

// executeGated serializes step execution through the async gate. If
// acquisition fails due to context cancellation, a warning is logged and
// the step executes unlocked anyway: liveness over strict ordering, a
// documented relaxation rather than a silent bug.
func (rt *ScenarioRuntime) executeGated(step *feature.Step) core.Result {
	if err := rt.gate.Acquire(rt.Context()); err != nil {
		rt.Logger.Warn("[runtime] async gate acquire failed, executing unlocked: %v", err)
		return rt.Suite().Interp.Execute(step, rt)
	}
	defer rt.gate.Release()
	return rt.Suite().Interp.Execute(step, rt)
}

// AfterRun stamps the end time, guarantees at least one step result,
// invokes the configured teardown and after-scenario hooks and drains any
// trailing logs, embeds and call results. Crashes here are captured and
// converted into a synthesized failed step.
func (rt *ScenarioRuntime) AfterRun() {
	defer func() {
		if r := recover(); r != nil {
			err := core.ErrCleanupFailed.WithCause(fmt.Errorf("%v", r))
			rt.logError("scenario [cleanup] failed\n" + err.Error())
			rt.currentStepResult = rt.Result.AddFakeStepResult("scenario [cleanup] failed", err)
		}
	}()
	rt.Result.EndTime = time.Now()
	if rt.currentStepResult == nil {
		rt.currentStepResult = rt.Result.AddFakeStepResult("no steps executed", nil)
	}
	if !rt.DryRun {
		rt.invokeAfterScenarioConfigHook()
		dispatchAfterScenario(rt.Suite().Hooks, rt)
		rt.Scope.Stop(rt.currentStepResult)
	}
	rt.drainLogsEmbedsAndCallResults()
}

// invokeAfterScenarioConfigHook runs the configure'd scenario teardown
// function. Failures are captured, never rethrown.
func (rt *ScenarioRuntime) invokeAfterScenarioConfigHook() {
	src := rt.Scope.Config.AfterScenario
	if src == "" {
		return
	}
	if _, err := rt.Scope.Eval("(" + src + ")()"); err != nil {
		rt.Logger.Warn("afterScenario hook failed: %v", err)
	}
}

// drainLogsEmbedsAndCallResults moves everything captured since the
// previous step onto the current step result and clears the pending
// buffers. The log sink is always drained; the text is attached only when
// log-to-report is enabled for this scenario.
func (rt *ScenarioRuntime) drainLogsEmbedsAndCallResults() {
	if rt.currentStepResult == nil {
		return
	}
	stepLog := rt.appender.Collect()
	if !rt.ReportDisabled && rt.Scope.Config.ShowLog {
		rt.currentStepResult.AppendToStepLog(stepLog)
	}
	if rt.callResults != nil {
		rt.currentStepResult.AddCallResults(rt.callResults)
		rt.callResults = nil
	}
	if rt.embeds != nil {
		rt.currentStepResult.AddEmbeds(rt.embeds)
		rt.embeds = nil
	}
}

func (rt *ScenarioRuntime) String() string {
	return rt.Scenario.String()
}
