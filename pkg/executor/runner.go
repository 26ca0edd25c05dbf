// Package executor orchestrates suite execution, connecting the scenario
// engine to reports and console progress.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/devicelab-dev/scenario-runner/pkg/config"
	"github.com/devicelab-dev/scenario-runner/pkg/core"
	"github.com/devicelab-dev/scenario-runner/pkg/engine"
	"github.com/devicelab-dev/scenario-runner/pkg/feature"
	"github.com/devicelab-dev/scenario-runner/pkg/interp"
	"github.com/devicelab-dev/scenario-runner/pkg/report"
)

// RunnerConfig configures a suite run.
type RunnerConfig struct {
	OutputDir string // Report output directory
	ConfigDir string // Workspace directory holding the config scripts
	Workers   int    // Max concurrent features (0 or 1 = sequential)

	TagSelector    string
	Env            string
	DryRun         bool
	PerfMode       bool
	ConfigDisabled bool

	RunnerVersion string

	// Extra lifecycle hooks installed alongside the progress hook.
	Hooks []engine.RuntimeHook

	// Live progress callbacks
	OnScenarioStart func(name, featurePath string, line int)
	OnStepComplete  func(line int, text string, passed bool, durationMs int64, errMsg string)
	OnScenarioEnd   func(name string, passed bool, durationMs int64)
}

// RunResult contains the outcome of a suite run.
type RunResult struct {
	Status          report.Status
	TotalScenarios  int
	PassedScenarios int
	FailedScenarios int
	Duration        int64 // wall clock, milliseconds
	ScenarioResults []*core.ScenarioResult
}

// Runner executes features against one shared suite.
type Runner struct {
	config RunnerConfig
	suite  *engine.Suite
	writer *report.Writer
}

// New creates a runner: prepares the report directory, loads the layered
// config scripts and assembles the suite.
func New(cfg RunnerConfig) (*Runner, error) {
	writer, err := report.NewWriter(cfg.OutputDir, cfg.Env, cfg.RunnerVersion)
	if err != nil {
		return nil, err
	}

	scripts := config.LoadScripts(cfg.ConfigDir, cfg.Env)
	hooks := cfg.Hooks
	if cfg.OnScenarioStart != nil || cfg.OnStepComplete != nil || cfg.OnScenarioEnd != nil {
		hooks = append(hooks, &progressHook{config: &cfg})
	}

	suite := &engine.Suite{
		Interp:         interp.New(),
		Hooks:          hooks,
		Store:          report.NewStore(cfg.OutputDir),
		TagSelector:    cfg.TagSelector,
		Env:            cfg.Env,
		DryRun:         cfg.DryRun,
		PerfMode:       cfg.PerfMode,
		ConfigDisabled: cfg.ConfigDisabled,
		ConfigBase:     scripts.Base,
		ConfigMain:     scripts.Main,
		ConfigEnv:      scripts.Env,
	}

	return &Runner{config: cfg, suite: suite, writer: writer}, nil
}

// Suite exposes the assembled suite, mainly for tests.
func (r *Runner) Suite() *engine.Suite {
	return r.suite
}

// Run executes all features and finalizes the report. Spawned child
// executions are drained before the report is closed.
func (r *Runner) Run(ctx context.Context, features []*feature.Feature) (*RunResult, error) {
	startTime := time.Now()

	var results []*core.ScenarioResult
	var err error
	if r.config.Workers > 1 {
		results, err = r.runParallel(ctx, features)
	} else {
		results, err = r.runSequential(ctx, features)
	}
	if err != nil {
		return nil, err
	}

	r.suite.WaitForAsync()

	for _, res := range results {
		if addErr := r.writer.Add(res); addErr != nil {
			return nil, addErr
		}
	}
	if err := r.writer.Finish(); err != nil {
		return nil, err
	}

	return buildRunResult(results, time.Since(startTime).Milliseconds()), nil
}

func (r *Runner) runSequential(ctx context.Context, features []*feature.Feature) ([]*core.ScenarioResult, error) {
	var results []*core.ScenarioResult
	for _, feat := range features {
		if ctx.Err() != nil {
			break
		}
		fr := engine.NewFeatureRuntime(r.suite, feat, nil)
		results = append(results, fr.Run(ctx)...)
	}
	return results, nil
}

// runParallel fans features out to a fixed worker pool over a shared work
// queue. Scenario runtimes are per-scenario, so workers only share the
// suite, which is read-only during the run.
func (r *Runner) runParallel(ctx context.Context, features []*feature.Feature) ([]*core.ScenarioResult, error) {
	type workItem struct {
		feat  *feature.Feature
		index int
	}

	workQueue := make(chan workItem, len(features))
	for i, feat := range features {
		workQueue <- workItem{feat: feat, index: i}
	}
	close(workQueue)

	perFeature := make([][]*core.ScenarioResult, len(features))
	var wg sync.WaitGroup
	for w := 0; w < r.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workQueue {
				if ctx.Err() != nil {
					return
				}
				fr := engine.NewFeatureRuntime(r.suite, item.feat, nil)
				perFeature[item.index] = fr.Run(ctx)
			}
		}()
	}
	wg.Wait()

	var results []*core.ScenarioResult
	for _, rs := range perFeature {
		results = append(results, rs...)
	}
	return results, nil
}

func buildRunResult(results []*core.ScenarioResult, wallClockMillis int64) *RunResult {
	out := &RunResult{
		Status:          report.StatusPassed,
		TotalScenarios:  len(results),
		Duration:        wallClockMillis,
		ScenarioResults: results,
	}
	for _, res := range results {
		if res.IsFailed() {
			out.FailedScenarios++
		} else {
			out.PassedScenarios++
		}
	}
	if out.FailedScenarios > 0 {
		out.Status = report.StatusFailed
	}
	return out
}

// progressHook adapts the runner's progress callbacks onto the engine's
// lifecycle hook interface.
type progressHook struct {
	engine.BaseHook
	config *RunnerConfig
}

func (h *progressHook) BeforeScenario(rt *engine.ScenarioRuntime) {
	if h.config.OnScenarioStart != nil {
		h.config.OnScenarioStart(rt.Scenario.Name, rt.Scenario.Feature.Path, rt.Scenario.Line)
	}
}

func (h *progressHook) AfterStep(sr *core.StepResult, rt *engine.ScenarioRuntime) {
	if h.config.OnStepComplete != nil && !sr.Hidden {
		h.config.OnStepComplete(sr.Line, sr.Text, !sr.Result.IsFailed(),
			sr.Result.Duration.Milliseconds(), sr.Error)
	}
}

func (h *progressHook) AfterScenario(rt *engine.ScenarioRuntime) {
	if h.config.OnScenarioEnd != nil {
		h.config.OnScenarioEnd(rt.Result.ScenarioName, !rt.Result.IsFailed(),
			rt.Result.DurationMillis())
	}
}
