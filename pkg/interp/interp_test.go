package interp

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/devicelab-dev/scenario-runner/pkg/core"
	"github.com/devicelab-dev/scenario-runner/pkg/engine"
	"github.com/devicelab-dev/scenario-runner/pkg/feature"
)

func newSuite() *engine.Suite {
	return &engine.Suite{Interp: New()}
}

// runSteps executes a single in-memory scenario with the given step texts
// and returns the runtime for scope inspection plus the aggregated result.
func runSteps(t *testing.T, suite *engine.Suite, steps ...string) (*engine.ScenarioRuntime, *core.ScenarioResult) {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("name: t\nscenarios:\n  - name: s\n    steps:\n")
	for _, s := range steps {
		sb.WriteString("      - " + strconv.Quote(s) + "\n")
	}
	f, err := feature.Parse([]byte(sb.String()), "t.yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fr := engine.NewFeatureRuntime(suite, f, nil)
	rt := engine.NewScenarioRuntime(fr, f.Scenarios[0], nil)
	result := rt.Run(context.Background())
	return rt, result
}

func writeFeature(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func assertAllPassed(t *testing.T, result *core.ScenarioResult) {
	t.Helper()
	for _, sr := range result.StepResults {
		if sr.Result.Status != core.StatusPassed {
			t.Errorf("step %q = %s (%v)", sr.Text, sr.Result.Status, sr.Result.Err)
		}
	}
}

func TestDefAndAssert(t *testing.T) {
	rt, result := runSteps(t, newSuite(),
		"def a = 5",
		"assert a == 5",
	)
	assertAllPassed(t, result)
	if v, _ := rt.Scope.GetVariable("a"); v != int64(5) {
		t.Errorf("a = %v (%T), want 5", v, v)
	}
}

func TestDefObjectLiteral(t *testing.T) {
	_, result := runSteps(t, newSuite(),
		"def m = { a: 1, nested: { b: 'x' } }",
		"assert m.a == 1",
		"assert m.nested.b == 'x'",
		"match m == { a: 1, nested: { b: 'x' } }",
	)
	assertAllPassed(t, result)
}

func TestMatch(t *testing.T) {
	_, result := runSteps(t, newSuite(),
		"def a = 1",
		"match a == 1.0",
		"def list = [1, 'two', { x: 3 }]",
		"match list == [1, 'two', { x: 3 }]",
	)
	assertAllPassed(t, result)

	rt, _ := runSteps(t, newSuite(),
		"def a = 1",
		"match a == 2",
	)
	if !rt.IsFailed() || !strings.Contains(rt.Error().Error(), "match failed") {
		t.Errorf("err = %v, want match failure", rt.Error())
	}

	_, result = runSteps(t, newSuite(),
		"def a = 1",
		"match a != 2",
	)
	assertAllPassed(t, result)
}

func TestAssertFailure(t *testing.T) {
	rt, _ := runSteps(t, newSuite(),
		"assert 1 == 2",
	)
	if !rt.IsFailed() || !strings.Contains(rt.Error().Error(), "assert failed") {
		t.Errorf("err = %v, want assert failure", rt.Error())
	}
}

func TestPrintLandsInStepLog(t *testing.T) {
	_, result := runSteps(t, newSuite(),
		"def name = 'bob'",
		"print 'hello ' + name",
		"print",
	)
	assertAllPassed(t, result)
	found := false
	for _, sr := range result.StepResults {
		if strings.Contains(sr.StepLog, "[print] hello bob") {
			found = true
		}
	}
	if !found {
		t.Error("print output must land in the step log")
	}
}

func TestEvalInstruction(t *testing.T) {
	_, result := runSteps(t, newSuite(),
		"eval 1 + 1",
	)
	assertAllPassed(t, result)

	rt, _ := runSteps(t, newSuite(),
		"eval this is not js",
	)
	if !rt.IsFailed() {
		t.Error("invalid eval must fail the step")
	}
}

func TestConfigure(t *testing.T) {
	rt, result := runSteps(t, newSuite(),
		"configure abortedStepsShouldPass = true",
		"configure showAllSteps = true",
		"configure showLog = false",
		"configure afterScenario = function() { }",
	)
	assertAllPassed(t, result)
	cfg := rt.Scope.Config
	if !cfg.AbortedStepsShouldPass || !cfg.ShowAllSteps || cfg.ShowLog {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.AfterScenario != "function() { }" {
		t.Errorf("afterScenario = %q", cfg.AfterScenario)
	}

	rt, _ = runSteps(t, newSuite(),
		"configure noSuchKey = true",
	)
	if !rt.IsFailed() || !strings.Contains(rt.Error().Error(), "unknown configure key") {
		t.Errorf("err = %v, want unknown key failure", rt.Error())
	}
}

func TestAbortStopsScenario(t *testing.T) {
	rt, result := runSteps(t, newSuite(),
		"def a = 1",
		"abort",
		"def b = 2",
	)
	if !rt.IsAborted() {
		t.Fatal("abort must mark the runtime aborted")
	}
	if rt.IsFailed() {
		t.Error("abort is not a failure")
	}
	if _, ok := rt.Scope.GetVariable("b"); ok {
		t.Error("steps after abort must not execute")
	}
	last := result.StepResults[len(result.StepResults)-1]
	if last.Result.Status != core.StatusSkipped {
		t.Errorf("trailing step = %s, want skipped", last.Result.Status)
	}
}

func TestSleep(t *testing.T) {
	_, result := runSteps(t, newSuite(),
		"sleep 1",
	)
	assertAllPassed(t, result)

	rt, _ := runSteps(t, newSuite(),
		"sleep soon",
	)
	if !rt.IsFailed() || !strings.Contains(rt.Error().Error(), "invalid sleep duration") {
		t.Errorf("err = %v, want sleep failure", rt.Error())
	}
}

func TestUnknownInstruction(t *testing.T) {
	rt, _ := runSteps(t, newSuite(),
		"frobnicate the widget",
	)
	if !rt.IsFailed() || !strings.Contains(rt.Error().Error(), "unknown instruction") {
		t.Errorf("err = %v, want unknown instruction failure", rt.Error())
	}
}

type captureStore struct {
	scenarioID   string
	data         []byte
	resourceType core.ResourceType
}

func (s *captureStore) Save(scenarioID string, data []byte, resourceType core.ResourceType) (string, error) {
	s.scenarioID = scenarioID
	s.data = data
	s.resourceType = resourceType
	return "assets/" + scenarioID + "/1.txt", nil
}

func TestEmbed(t *testing.T) {
	store := &captureStore{}
	suite := newSuite()
	suite.Store = store

	_, result := runSteps(t, suite,
		"embed 'payload' as txt",
	)
	assertAllPassed(t, result)
	if string(store.data) != "payload" || store.resourceType != core.ResourceText {
		t.Errorf("store saw %q as %q", store.data, store.resourceType)
	}
	embeds := result.StepResults[0].Embeds
	if len(embeds) != 1 || embeds[0].Path != "assets/"+store.scenarioID+"/1.txt" {
		t.Errorf("embeds = %+v", embeds)
	}
}

const calleeShared = `name: callee
scenarios:
  - name: set shared
    steps:
      - def shared = 42
`

func TestCallSharedScopeMutatesCaller(t *testing.T) {
	dir := t.TempDir()
	writeFeature(t, dir, "callee.yaml", calleeShared)
	caller := writeFeature(t, dir, "caller.yaml", `name: caller
scenarios:
  - name: calls
    steps:
      - call callee.yaml
      - assert shared == 42
`)

	f, err := feature.Read(caller)
	if err != nil {
		t.Fatal(err)
	}
	fr := engine.NewFeatureRuntime(newSuite(), f, nil)
	results := fr.Run(context.Background())
	if len(results) != 1 || results[0].IsFailed() {
		t.Fatalf("results = %+v", results)
	}
	if v, _ := fr.LastScope.GetVariable("shared"); v != int64(42) {
		t.Errorf("shared = %v, want 42", v)
	}
}

func TestDefCallIsolatesCallee(t *testing.T) {
	dir := t.TempDir()
	writeFeature(t, dir, "callee.yaml", `name: callee
scenarios:
  - name: make token
    steps:
      - def token = 'abc'
`)
	caller := writeFeature(t, dir, "caller.yaml", `name: caller
scenarios:
  - name: calls
    steps:
      - def result = call callee.yaml
      - assert result.token == 'abc'
      - assert typeof token == 'undefined'
`)

	f, err := feature.Read(caller)
	if err != nil {
		t.Fatal(err)
	}
	fr := engine.NewFeatureRuntime(newSuite(), f, nil)
	results := fr.Run(context.Background())
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].IsFailed() {
		t.Fatalf("scenario failed: %s", results[0].FailureMessage())
	}
}

func TestCallArgAndLoop(t *testing.T) {
	dir := t.TempDir()
	writeFeature(t, dir, "callee.yaml", `name: callee
scenarios:
  - name: doubles
    steps:
      - def double = n * 2
      - def index = __loop
`)
	caller := writeFeature(t, dir, "caller.yaml", `name: caller
scenarios:
  - name: loops
    steps:
      - "def results = call callee.yaml [{ n: 1 }, { n: 2 }]"
      - assert results[0].double == 2 && results[0].index == 0
      - assert results[1].double == 4 && results[1].index == 1
`)

	f, err := feature.Read(caller)
	if err != nil {
		t.Fatal(err)
	}
	fr := engine.NewFeatureRuntime(newSuite(), f, nil)
	results := fr.Run(context.Background())
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].IsFailed() {
		t.Fatalf("scenario failed: %s", results[0].FailureMessage())
	}
}

func TestCallFailurePropagatesAndAttachesResults(t *testing.T) {
	dir := t.TempDir()
	writeFeature(t, dir, "callee.yaml", `name: callee
scenarios:
  - name: breaks
    steps:
      - assert 1 == 2
`)
	caller := writeFeature(t, dir, "caller.yaml", `name: caller
scenarios:
  - name: calls
    steps:
      - call callee.yaml
      - def never = true
`)

	f, err := feature.Read(caller)
	if err != nil {
		t.Fatal(err)
	}
	fr := engine.NewFeatureRuntime(newSuite(), f, nil)
	results := fr.Run(context.Background())
	if len(results) != 1 || !results[0].IsFailed() {
		t.Fatal("a failing callee must fail the calling step")
	}
	callStep := results[0].StepResults[0]
	if !strings.Contains(callStep.Result.Err.Error(), "call failed") {
		t.Errorf("err = %v", callStep.Result.Err)
	}
	if len(callStep.CallResults) != 1 || !callStep.CallResults[0].IsFailed() {
		t.Errorf("call results = %+v, want the callee's failed result attached", callStep.CallResults)
	}
}

func TestCallMissingFeatureFails(t *testing.T) {
	rt, _ := runSteps(t, newSuite(),
		"call no-such-file.yaml",
	)
	if !rt.IsFailed() || !strings.Contains(rt.Error().Error(), "failed to read feature") {
		t.Errorf("err = %v, want read failure", rt.Error())
	}
}

func TestSpawnSharedVariableVisibleAfterWait(t *testing.T) {
	dir := t.TempDir()
	writeFeature(t, dir, "callee.yaml", calleeShared)
	caller := writeFeature(t, dir, "caller.yaml", `name: caller
scenarios:
  - name: spawns
    steps:
      - spawn callee.yaml
      - assert true
`)

	f, err := feature.Read(caller)
	if err != nil {
		t.Fatal(err)
	}
	suite := newSuite()
	fr := engine.NewFeatureRuntime(suite, f, nil)
	results := fr.Run(context.Background())
	suite.WaitForAsync()

	if len(results) != 1 || results[0].IsFailed() {
		t.Fatalf("results = %+v", results)
	}
	if v, _ := fr.LastScope.GetVariable("shared"); v != int64(42) {
		t.Errorf("shared = %v, want the spawned scenario's mutation", v)
	}
}

func TestSpawnMissingFeatureFails(t *testing.T) {
	rt, _ := runSteps(t, newSuite(),
		"spawn no-such-file.yaml",
	)
	if !rt.IsFailed() || !strings.Contains(rt.Error().Error(), "failed to read feature") {
		t.Errorf("err = %v, want read failure", rt.Error())
	}
}
