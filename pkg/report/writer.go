package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/devicelab-dev/scenario-runner/pkg/core"
)

// Writer persists scenario results under one output directory. Safe for
// concurrent use by parallel workers; the index file is mutex-protected,
// detail files are written once per scenario.
type Writer struct {
	mu        sync.Mutex
	outputDir string
	index     *Index
}

// NewWriter prepares the report directory structure and writes the initial
// index file.
func NewWriter(outputDir, env, runnerVersion string) (*Writer, error) {
	if err := ensureDir(filepath.Join(outputDir, "scenarios")); err != nil {
		return nil, fmt.Errorf("create scenarios dir: %w", err)
	}
	if err := ensureDir(filepath.Join(outputDir, "assets")); err != nil {
		return nil, fmt.Errorf("create assets dir: %w", err)
	}

	now := time.Now()
	w := &Writer{
		outputDir: outputDir,
		index: &Index{
			Version:     Version,
			Status:      StatusRunning,
			Env:         env,
			StartTime:   now,
			LastUpdated: now,
			Runner:      RunnerInfo{Name: "scenario-runner", Version: runnerVersion},
			Scenarios:   []ScenarioEntry{},
		},
	}
	if err := w.flushLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

// OutputDir returns the report base directory.
func (w *Writer) OutputDir() string {
	return w.outputDir
}

// Add records one finished scenario: writes its detail file and updates
// the index.
func (w *Writer) Add(result *core.ScenarioResult) error {
	detail := convertScenario(result)
	dataFile := filepath.Join("scenarios", detail.ID+".json")
	if err := atomicWriteJSON(filepath.Join(w.outputDir, dataFile), detail); err != nil {
		return fmt.Errorf("write scenario detail: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.index.Scenarios = append(w.index.Scenarios, ScenarioEntry{
		Index:       len(w.index.Scenarios),
		ID:          detail.ID,
		Name:        detail.Name,
		FeaturePath: detail.FeaturePath,
		Line:        detail.Line,
		DataFile:    dataFile,
		AssetsDir:   filepath.Join("assets", detail.ID),
		Status:      detail.Status,
		Duration:    detail.Duration,
		Error:       result.FailureMessage(),
	})
	return w.flushLocked()
}

// Finish stamps the end time and final run status on the index.
func (w *Writer) Finish() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.EndTime = &now
	w.index.Status = StatusPassed
	for _, sc := range w.index.Scenarios {
		if sc.Status == StatusFailed {
			w.index.Status = StatusFailed
			break
		}
	}
	return w.flushLocked()
}

// Failed reports whether any recorded scenario failed.
func (w *Writer) Failed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sc := range w.index.Scenarios {
		if sc.Status == StatusFailed {
			return true
		}
	}
	return false
}

// flushLocked recomputes the summary and writes the index. Callers hold mu.
func (w *Writer) flushLocked() error {
	w.index.LastUpdated = time.Now()
	var s Summary
	for _, sc := range w.index.Scenarios {
		s.Total++
		switch sc.Status {
		case StatusFailed:
			s.Failed++
		case StatusPassed:
			s.Passed++
		}
	}
	w.index.Summary = s
	return atomicWriteJSON(filepath.Join(w.outputDir, "report.json"), w.index)
}

func convertScenario(result *core.ScenarioResult) ScenarioDetail {
	status := StatusPassed
	if result.IsFailed() {
		status = StatusFailed
	}
	detail := ScenarioDetail{
		ID:          result.UniqueID,
		Name:        result.ScenarioName,
		FeaturePath: result.FeaturePath,
		Line:        result.Line,
		ExecutedBy:  result.ExecutorName,
		StartTime:   result.StartTime,
		EndTime:     result.EndTime,
		Duration:    result.DurationMillis(),
		Status:      status,
		Steps:       make([]StepDetail, 0, len(result.StepResults)),
	}
	for i, sr := range result.StepResults {
		detail.Steps = append(detail.Steps, convertStep(i, sr))
	}
	return detail
}

func convertStep(index int, sr *core.StepResult) StepDetail {
	step := StepDetail{
		Index:    index,
		Line:     sr.Line,
		Text:     sr.Text,
		Status:   statusOf(sr.Result.Status),
		Duration: sr.Result.Duration.Milliseconds(),
		Error:    sr.Error,
		Hidden:   sr.Hidden,
		Log:      sr.StepLog,
	}
	for _, e := range sr.Embeds {
		step.Embeds = append(step.Embeds, EmbedRef{
			Path:        e.Path,
			ContentType: e.ResourceType.ContentType(),
		})
	}
	for _, call := range sr.CallResults {
		step.Calls = append(step.Calls, convertScenario(call))
	}
	return step
}

// atomicWriteJSON writes v as indented JSON via a temp file and rename, so
// a concurrent reader never observes a partial file.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
