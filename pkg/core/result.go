package core

import "time"

// Result is the raw outcome of interpreting a single step.
type Result struct {
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Passed returns a passed result with the given duration.
func Passed(d time.Duration) Result {
	return Result{Status: StatusPassed, Duration: d}
}

// Failed returns a failed result carrying the error.
func Failed(d time.Duration, err error) Result {
	return Result{Status: StatusFailed, Duration: d, Err: err}
}

// Skipped returns a skipped result.
func Skipped() Result {
	return Result{Status: StatusSkipped}
}

// Aborted returns an aborted result with the given duration.
func Aborted(d time.Duration) Result {
	return Result{Status: StatusAborted, Duration: d}
}

// IsFailed returns true if the step failed.
func (r Result) IsFailed() bool { return r.Status == StatusFailed }

// IsAborted returns true if the step signalled an abort.
func (r Result) IsAborted() bool { return r.Status == StatusAborted }

// ErrorMessage returns the error text, or "" when there is none.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
