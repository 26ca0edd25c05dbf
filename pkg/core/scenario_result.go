package core

import "time"

// StepResult captures the complete outcome of executing a single step,
// including logs, attachments and nested call results drained after the step.
type StepResult struct {
	// Identity
	Line int    `json:"line"`
	Text string `json:"text"`

	// Outcome
	Result Result `json:"result"`
	Error  string `json:"error,omitempty"`

	// Reporting
	Hidden  bool   `json:"hidden,omitempty"`
	StepLog string `json:"log,omitempty"`

	// Attachments and nested results
	Embeds      []Embed           `json:"embeds,omitempty"`
	CallResults []*ScenarioResult `json:"callResults,omitempty"`
}

// NewStepResult creates a step result for the given step identity and outcome.
func NewStepResult(line int, text string, result Result) *StepResult {
	return &StepResult{Line: line, Text: text, Result: result, Error: result.ErrorMessage()}
}

// AppendToStepLog appends captured log text to the step result.
func (sr *StepResult) AppendToStepLog(log string) {
	if log == "" {
		return
	}
	sr.StepLog += log
}

// AddEmbeds attaches embeds to the step result.
func (sr *StepResult) AddEmbeds(embeds []Embed) {
	sr.Embeds = append(sr.Embeds, embeds...)
}

// AddCallResults attaches nested scenario call results to the step result.
func (sr *StepResult) AddCallResults(results []*ScenarioResult) {
	sr.CallResults = append(sr.CallResults, results...)
}

// ScenarioResult is the append-only accumulation of step results for one
// scenario execution. It is the only artifact exposed after execution.
type ScenarioResult struct {
	// Identity
	ScenarioName string `json:"name"`
	UniqueID     string `json:"uniqueId"`
	FeaturePath  string `json:"featurePath,omitempty"`
	Line         int    `json:"line,omitempty"`

	// Timing and executor
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	ExecutorName string    `json:"executedBy,omitempty"`

	// Results, in strict step-execution order
	StepResults []*StepResult `json:"steps"`
}

// AddStepResult appends a completed step result in step order.
func (r *ScenarioResult) AddStepResult(sr *StepResult) {
	r.StepResults = append(r.StepResults, sr)
}

// AddFakeStepResult appends a synthesized step so the scenario result is
// never step-less. Used for crashes and zero-step scenarios.
func (r *ScenarioResult) AddFakeStepResult(text string, err error) *StepResult {
	res := Passed(0)
	if err != nil {
		res = Failed(0, err)
	}
	sr := NewStepResult(-1, text, res)
	r.AddStepResult(sr)
	return sr
}

// IsFailed returns true if any step failed.
func (r *ScenarioResult) IsFailed() bool {
	for _, sr := range r.StepResults {
		if sr.Result.IsFailed() {
			return true
		}
	}
	return false
}

// Failure returns the first step error, or nil when the scenario passed.
func (r *ScenarioResult) Failure() error {
	for _, sr := range r.StepResults {
		if sr.Result.IsFailed() && sr.Result.Err != nil {
			return sr.Result.Err
		}
	}
	return nil
}

// FailureMessage returns the first failure text for display, or "".
func (r *ScenarioResult) FailureMessage() string {
	if err := r.Failure(); err != nil {
		return err.Error()
	}
	return ""
}

// DurationMillis returns the wall-clock duration of the scenario.
func (r *ScenarioResult) DurationMillis() int64 {
	if r.EndTime.Before(r.StartTime) {
		return 0
	}
	return r.EndTime.Sub(r.StartTime).Milliseconds()
}

// ComputeSummary returns passed/failed/skipped counts over the step results.
func (r *ScenarioResult) ComputeSummary() (passed, failed, skipped int) {
	for _, sr := range r.StepResults {
		switch sr.Result.Status {
		case StatusPassed, StatusAborted:
			passed++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return passed, failed, skipped
}
