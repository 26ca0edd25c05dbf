package core

// Status represents the execution status of a step or scenario.
type Status int

const (
	StatusPassed  Status = iota // Completed successfully
	StatusFailed                // Assertion or execution failure
	StatusSkipped               // Not executed (prior failure, veto, or selection)
	StatusAborted               // Deliberate stop signal, not an error
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so results serialize
// with readable status strings.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsSuccess returns true if the status does not count against the scenario.
func (s Status) IsSuccess() bool {
	return s == StatusPassed || s == StatusSkipped
}
