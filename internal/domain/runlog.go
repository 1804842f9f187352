package domain

import "time"

// Run log entry types
const (
	LogTypeInfo    = "INFO"
	LogTypeWarning = "WARNING"
	LogTypeError   = "ERROR"
)

// RunLogEntry records the outcome of one pipeline invocation.
// Corresponds to run_log table in PostgreSQL.
type RunLogEntry struct {
	ID        string    // run UUID
	Pipeline  string    // pipeline name or id
	Mode      string    // fit-init, fit, predict, predict-active, transform
	Type      string    // INFO, WARNING, ERROR
	Message   string    // short description
	Extended  string    // error text or details, may be empty
	CreatedAt time.Time // entry time
}
