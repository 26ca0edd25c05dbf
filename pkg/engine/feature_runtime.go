package engine

import (
	"context"
	"time"

	"github.com/devicelab-dev/scenario-runner/pkg/core"
	"github.com/devicelab-dev/scenario-runner/pkg/feature"
)

// FeatureRuntime runs the scenarios of one feature in order, honoring the
// selection filter, and expands dynamic outlines after their background
// pre-pass.
type FeatureRuntime struct {
	Suite   *Suite
	Feature *feature.Feature
	Caller  *ScenarioCall

	// LastScope is the scope of the most recently completed scenario, used
	// by callers that bind an isolated call's resulting variables.
	LastScope *Scope
}

// NewFeatureRuntime binds a feature to the suite and an invocation context.
func NewFeatureRuntime(suite *Suite, feat *feature.Feature, caller *ScenarioCall) *FeatureRuntime {
	if caller == nil {
		caller = CallNone()
	}
	return &FeatureRuntime{Suite: suite, Feature: feat, Caller: caller}
}

// Run executes every selected scenario sequentially and returns their
// results in scenario order.
func (fr *FeatureRuntime) Run(ctx context.Context) []*core.ScenarioResult {
	var results []*core.ScenarioResult
	for _, sc := range fr.Feature.Scenarios {
		if sc.Dynamic {
			results = append(results, fr.runDynamicOutline(ctx, sc)...)
			continue
		}
		rt := NewScenarioRuntime(fr, sc, nil)
		if !rt.SelectedForExecution {
			continue
		}
		results = append(results, rt.Run(ctx))
		fr.LastScope = rt.Scope
	}
	return results
}

// runDynamicOutline runs the background-only pre-pass, evaluates the
// example expression in the pre-pass scope, then runs one scenario per row
// with the pre-pass as inherited background.
func (fr *FeatureRuntime) runDynamicOutline(ctx context.Context, sc *feature.Scenario) []*core.ScenarioResult {
	prepass := NewScenarioRuntime(fr, sc, nil)
	if !prepass.SelectedForExecution {
		return nil
	}
	prepass.Run(ctx)
	if prepass.IsFailed() {
		// background failed: report the pre-pass itself, skip the rows
		prepass.Result.EndTime = time.Now()
		return []*core.ScenarioResult{prepass.Result}
	}

	rowsValue, err := prepass.Scope.Eval(sc.DynamicExpr)
	if err != nil {
		prepass.Logger.Warn("dynamic examples expression failed: %v", err)
		prepass.Result.AddFakeStepResult("dynamic examples expression failed",
			core.ErrConfigEval.WithCause(err))
		prepass.Result.EndTime = time.Now()
		return []*core.ScenarioResult{prepass.Result}
	}

	rows, _ := rowsValue.([]interface{})
	var results []*core.ScenarioResult
	for i, rowValue := range rows {
		row, ok := rowValue.(map[string]interface{})
		if !ok {
			prepass.Logger.Warn("ignoring dynamic example row %d: not a map", i)
			continue
		}
		example := *sc
		example.Dynamic = false
		example.DynamicExpr = ""
		example.ExampleData = row
		example.ExampleIndex = i

		rt := NewScenarioRuntime(fr, &example, prepass)
		// the rows inherit the variables the background established
		rt.Scope.SetVariables(prepass.Scope.Vars.Copy(true).Snapshot())
		results = append(results, rt.Run(ctx))
		fr.LastScope = rt.Scope
	}
	return results
}
