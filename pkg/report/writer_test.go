package report

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devicelab-dev/scenario-runner/pkg/core"
)

func readJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", path, err)
	}
}

func passedScenario(id, name string) *core.ScenarioResult {
	start := time.Now().Add(-50 * time.Millisecond)
	r := &core.ScenarioResult{
		ScenarioName: name,
		UniqueID:     id,
		FeaturePath:  "users.yaml",
		Line:         5,
		StartTime:    start,
		EndTime:      start.Add(40 * time.Millisecond),
	}
	r.AddStepResult(core.NewStepResult(6, "def a = 1", core.Passed(time.Millisecond)))
	r.AddStepResult(core.NewStepResult(7, "assert a == 1", core.Passed(time.Millisecond)))
	return r
}

func failedScenario(id string) *core.ScenarioResult {
	r := passedScenario(id, "broken")
	r.AddStepResult(core.NewStepResult(8, "assert a == 2",
		core.Failed(time.Millisecond, errors.New("assert failed: a == 2"))))
	return r
}

func TestNewWriterCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "qa", "1.2.3")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	for _, sub := range []string{"scenarios", "assets"} {
		if fi, err := os.Stat(filepath.Join(dir, sub)); err != nil || !fi.IsDir() {
			t.Errorf("%s dir missing: %v", sub, err)
		}
	}

	var idx Index
	readJSON(t, filepath.Join(dir, "report.json"), &idx)
	if idx.Status != StatusRunning {
		t.Errorf("initial status = %s", idx.Status)
	}
	if idx.Env != "qa" || idx.Runner.Version != "1.2.3" || idx.Version != Version {
		t.Errorf("index header = %+v", idx)
	}
	if w.OutputDir() != dir {
		t.Errorf("output dir = %s", w.OutputDir())
	}
}

func TestAddWritesDetailAndIndexEntry(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "", "dev")
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Add(passedScenario("sc-1", "create user")); err != nil {
		t.Fatalf("add: %v", err)
	}

	var detail ScenarioDetail
	readJSON(t, filepath.Join(dir, "scenarios", "sc-1.json"), &detail)
	if detail.Name != "create user" || detail.Status != StatusPassed {
		t.Errorf("detail = %+v", detail)
	}
	if len(detail.Steps) != 2 || detail.Steps[1].Index != 1 || detail.Steps[1].Text != "assert a == 1" {
		t.Errorf("steps = %+v", detail.Steps)
	}

	var idx Index
	readJSON(t, filepath.Join(dir, "report.json"), &idx)
	if len(idx.Scenarios) != 1 {
		t.Fatalf("index scenarios = %d", len(idx.Scenarios))
	}
	entry := idx.Scenarios[0]
	if entry.ID != "sc-1" || entry.DataFile != filepath.Join("scenarios", "sc-1.json") {
		t.Errorf("entry = %+v", entry)
	}
	if entry.AssetsDir != filepath.Join("assets", "sc-1") {
		t.Errorf("assets dir = %s", entry.AssetsDir)
	}
	if idx.Summary.Total != 1 || idx.Summary.Passed != 1 {
		t.Errorf("summary = %+v", idx.Summary)
	}
}

func TestFinishStampsFinalStatus(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "", "dev")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Add(passedScenario("sc-1", "ok")); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(failedScenario("sc-2")); err != nil {
		t.Fatal(err)
	}
	if !w.Failed() {
		t.Error("Failed() must report the failed scenario")
	}
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	var idx Index
	readJSON(t, filepath.Join(dir, "report.json"), &idx)
	if idx.Status != StatusFailed {
		t.Errorf("final status = %s", idx.Status)
	}
	if idx.EndTime == nil {
		t.Error("end time missing")
	}
	if idx.Summary.Total != 2 || idx.Summary.Passed != 1 || idx.Summary.Failed != 1 {
		t.Errorf("summary = %+v", idx.Summary)
	}
	if idx.Scenarios[1].Error == "" {
		t.Error("failed entry must carry the failure message")
	}
}

func TestConvertNestedCallResults(t *testing.T) {
	parent := passedScenario("sc-p", "caller")
	nested := passedScenario("sc-n", "callee")
	parent.StepResults[0].AddCallResults([]*core.ScenarioResult{nested})
	parent.StepResults[0].AddEmbeds([]core.Embed{{Path: "assets/sc-p/1.png", ResourceType: core.ResourcePNG}})

	detail := convertScenario(parent)
	step := detail.Steps[0]
	if len(step.Calls) != 1 || step.Calls[0].ID != "sc-n" {
		t.Errorf("nested calls = %+v", step.Calls)
	}
	if len(step.Embeds) != 1 || step.Embeds[0].ContentType != "image/png" {
		t.Errorf("embeds = %+v", step.Embeds)
	}
}

func TestStatusMapping(t *testing.T) {
	if statusOf(core.StatusAborted) != StatusPassed {
		t.Error("aborted must report as passed")
	}
	if statusOf(core.StatusSkipped) != StatusSkipped || statusOf(core.StatusFailed) != StatusFailed {
		t.Error("skipped/failed must map through unchanged")
	}
}

func TestStoreSave(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	rel, err := s.Save("sc-1", []byte("hello"), core.ResourceText)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Dir(rel) != filepath.Join("assets", "sc-1") {
		t.Errorf("rel path = %s", rel)
	}
	if filepath.Ext(rel) != ".txt" {
		t.Errorf("extension = %s", filepath.Ext(rel))
	}
	data, err := os.ReadFile(filepath.Join(dir, rel))
	if err != nil || string(data) != "hello" {
		t.Errorf("stored content = %q, err = %v", data, err)
	}

	// binary attachments get no extension and rapid saves never collide
	first, err := s.Save("sc-1", []byte{0x1}, core.ResourceBinary)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Save("sc-1", []byte{0x2}, core.ResourceBinary)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(first) != "" {
		t.Errorf("binary attachment has extension: %s", first)
	}
	if first == second {
		t.Error("consecutive saves must get distinct names")
	}
}
