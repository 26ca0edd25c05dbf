package interp

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/scenario-runner/pkg/engine"
	"github.com/devicelab-dev/scenario-runner/pkg/feature"
)

// runCall executes a nested feature call. Shared-scope calls mutate the
// caller's live variables; isolated calls return the called scenario's
// resulting variable map so the caller can bind it. A list argument loops
// the call once per item, with the loop index injected as __loop.
func (in *Interp) runCall(rest string, rt *engine.ScenarioRuntime, isolated bool) (interface{}, error) {
	path, argExpr := splitKeyword(rest)
	if path == "" {
		return nil, fmt.Errorf("call requires a feature path")
	}

	var arg interface{}
	if argExpr != "" {
		value, err := evalExpr(rt, argExpr)
		if err != nil {
			return nil, err
		}
		arg = value
	}

	resolved := resolvePath(rt, path)

	if list, ok := arg.([]interface{}); ok {
		var collected []interface{}
		for i, item := range list {
			value, err := in.doCall(rt, resolved, item, i, isolated)
			if err != nil {
				return nil, err
			}
			collected = append(collected, value)
		}
		if isolated {
			return collected, nil
		}
		return nil, nil
	}

	return in.doCall(rt, resolved, arg, -1, isolated)
}

func (in *Interp) doCall(rt *engine.ScenarioRuntime, path string, arg interface{}, loopIndex int, isolated bool) (interface{}, error) {
	feat, err := feature.Read(path)
	if err != nil {
		return nil, fmt.Errorf("call failed to read feature %s: %w", path, err)
	}

	var caller *engine.ScenarioCall
	if isolated {
		caller = engine.CallIsolated(rt, arg, loopIndex)
	} else {
		caller = engine.CallShared(rt, arg, loopIndex)
	}

	fr := engine.NewFeatureRuntime(rt.Suite(), feat, caller)
	results := fr.Run(rt.Context())
	for _, r := range results {
		rt.AddCallResult(r)
	}
	for _, r := range results {
		if r.IsFailed() {
			return nil, fmt.Errorf("call failed: %s: %s", path, r.FailureMessage())
		}
	}
	if isolated && fr.LastScope != nil {
		return fr.LastScope.Vars.Snapshot(), nil
	}
	return nil, nil
}

// runSpawn launches the called feature's scenarios as an asynchronous
// shared-scope child execution. Further parent steps serialize through the
// async gate; the child's results are not attached to any step.
func (in *Interp) runSpawn(rest string, rt *engine.ScenarioRuntime) error {
	path, argExpr := splitKeyword(rest)
	if path == "" {
		return fmt.Errorf("spawn requires a feature path")
	}

	var arg interface{}
	if argExpr != "" {
		value, err := evalExpr(rt, argExpr)
		if err != nil {
			return err
		}
		arg = value
	}

	feat, err := feature.Read(resolvePath(rt, path))
	if err != nil {
		return fmt.Errorf("spawn failed to read feature %s: %w", path, err)
	}

	fr := engine.NewFeatureRuntime(rt.Suite(), feat, engine.CallShared(rt, arg, -1))
	var children []*engine.ScenarioRuntime
	for _, sc := range feat.Scenarios {
		if sc.Dynamic {
			rt.Logger.Warn("spawn does not support dynamic outlines, skipping scenario at line %d", sc.Line)
			continue
		}
		child := engine.NewScenarioRuntime(fr, sc, nil)
		if !child.SelectedForExecution {
			continue
		}
		rt.MarkAsyncChild(child)
		children = append(children, child)
	}
	if len(children) == 0 {
		return fmt.Errorf("spawn selected no scenarios in %s", path)
	}

	suite := rt.Suite()
	suite.TrackAsync()
	ctx := rt.Context()
	go func() {
		defer suite.AsyncDone()
		for _, child := range children {
			result := child.Run(ctx)
			rt.Logger.Debug("spawned scenario finished: %s (failed=%v)",
				result.ScenarioName, result.IsFailed())
		}
	}()
	return nil
}

// resolvePath resolves a called feature path relative to the calling
// feature's directory.
func resolvePath(rt *engine.ScenarioRuntime, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	dir := filepath.Dir(rt.Scenario.Feature.Path)
	if dir == "." || strings.TrimSpace(dir) == "" {
		return path
	}
	return filepath.Join(dir, path)
}
