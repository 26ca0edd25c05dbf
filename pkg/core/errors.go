package core

import "fmt"

// ErrorCategory classifies execution errors for reporting and logging.
type ErrorCategory int

const (
	ErrCategoryNone      ErrorCategory = iota // No error
	ErrCategoryStep                           // Step-level failure (assertion, interpreter)
	ErrCategoryConfig                         // Config script evaluation failure (fatal to the scenario)
	ErrCategoryCrash                          // Machine-level crash escaping the step loop
	ErrCategoryHook                           // Lifecycle hook failure (logged, not propagated)
	ErrCategoryHotReload                      // Step reparse failure during hot reload
)

// String returns the string representation of ErrorCategory.
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryStep:
		return "step"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryCrash:
		return "crash"
	case ErrCategoryHook:
		return "hook"
	case ErrCategoryHotReload:
		return "hot_reload"
	default:
		return "unknown"
	}
}

// ExecutionError is a structured error with category, code and cause.
type ExecutionError struct {
	Category ErrorCategory
	Code     string // Machine-readable code: config_eval_failed, step_crashed, etc.
	Message  string // Human-readable message
	Cause    error  // Underlying error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an ExecutionError with the given parameters.
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{Category: category, Code: code, Message: message}
}

// WithCause returns a copy of the error with the given cause.
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{Category: e.Category, Code: e.Code, Message: e.Message, Cause: cause}
}

// Predefined errors.
var (
	ErrConfigEval = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "config_eval_failed",
		Message:  "config script evaluation failed",
	}
	ErrScenarioCrashed = &ExecutionError{
		Category: ErrCategoryCrash,
		Code:     "scenario_crashed",
		Message:  "scenario [run] failed",
	}
	ErrCleanupFailed = &ExecutionError{
		Category: ErrCategoryCrash,
		Code:     "cleanup_failed",
		Message:  "scenario [cleanup] failed",
	}
)
