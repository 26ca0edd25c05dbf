// Package report persists run results as JSON files.
//
// Layout:
//   - report.json: index file (small, updated after every scenario, mutex-protected)
//   - scenarios/<id>.json: per-scenario detail files
//   - assets/<id>/: per-scenario attachments (embeds, videos)
//
// The index is the single source of truth for run status; consumers poll
// report.json and fetch scenario details as needed.
package report

import (
	"time"

	"github.com/devicelab-dev/scenario-runner/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// Status represents an execution status in the report schema.
type Status string

// Status values.
const (
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Index is the main report file that binds everything together.
type Index struct {
	Version     string          `json:"version"`
	Status      Status          `json:"status"`
	Env         string          `json:"env,omitempty"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     *time.Time      `json:"endTime,omitempty"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Runner      RunnerInfo      `json:"runner"`
	Summary     Summary         `json:"summary"`
	Scenarios   []ScenarioEntry `json:"scenarios"`
}

// RunnerInfo identifies the runner that produced the report.
type RunnerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Summary contains aggregated scenario counts.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// ScenarioEntry is the index entry for one scenario (minimal info).
type ScenarioEntry struct {
	Index       int    `json:"index"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	FeaturePath string `json:"featurePath,omitempty"`
	Line        int    `json:"line,omitempty"`
	DataFile    string `json:"dataFile"`
	AssetsDir   string `json:"assetsDir"`
	Status      Status `json:"status"`
	Duration    int64  `json:"duration"` // milliseconds
	Error       string `json:"error,omitempty"`
}

// ScenarioDetail contains the full execution record of one scenario,
// including nested call results.
type ScenarioDetail struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	FeaturePath string       `json:"featurePath,omitempty"`
	Line        int          `json:"line,omitempty"`
	ExecutedBy  string       `json:"executedBy,omitempty"`
	StartTime   time.Time    `json:"startTime"`
	EndTime     time.Time    `json:"endTime"`
	Duration    int64        `json:"duration"` // milliseconds
	Status      Status       `json:"status"`
	Steps       []StepDetail `json:"steps"`
}

// StepDetail is one executed step in a scenario detail file.
type StepDetail struct {
	Index    int              `json:"index"`
	Line     int              `json:"line"`
	Text     string           `json:"text"`
	Status   Status           `json:"status"`
	Duration int64            `json:"duration"` // milliseconds
	Error    string           `json:"error,omitempty"`
	Hidden   bool             `json:"hidden,omitempty"`
	Log      string           `json:"log,omitempty"`
	Embeds   []EmbedRef       `json:"embeds,omitempty"`
	Calls    []ScenarioDetail `json:"calls,omitempty"`
}

// EmbedRef points at a persisted attachment. Paths are relative to the
// report directory.
type EmbedRef struct {
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
}

// statusOf maps a core execution status to the report schema. Aborted
// scenarios and steps report as passed when they carried no error.
func statusOf(s core.Status) Status {
	switch s {
	case core.StatusFailed:
		return StatusFailed
	case core.StatusSkipped:
		return StatusSkipped
	default:
		return StatusPassed
	}
}
