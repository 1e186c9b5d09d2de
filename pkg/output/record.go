// Package output provides JSONL event output for migration runs.
//
// Output is structured as typed record envelopes carrying the plan, per
// engine outcomes, batch progress, errors and a final summary. Each line is
// a self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: engineshift.<type>.v<version>
const (
	// TypePlan identifies the work-set record emitted before processing.
	TypePlan = "engineshift.plan.v1"

	// TypeUnit identifies per-engine outcome records.
	TypeUnit = "engineshift.unit.v1"

	// TypeProgress identifies batch progress records.
	TypeProgress = "engineshift.progress.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "engineshift.summary.v1"

	// TypeError identifies error records.
	TypeError = "engineshift.error.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "engineshift.unit.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this migration run.
	RunID string `json:"run_id"`

	// Source identifies the source cluster endpoint.
	Source string `json:"source"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// PlanRecord describes the work set of a run.
type PlanRecord struct {
	Listed      int            `json:"listed"`
	Candidates  int            `json:"candidates"`
	WillMigrate int            `json:"will_migrate"`
	Counts      map[string]int `json:"counts"`
	Concurrency int            `json:"concurrency"`
	Prefix      string         `json:"prefix,omitempty"`
	Resume      bool           `json:"resume"`
	DryRun      bool           `json:"dry_run"`
}

// Unit status values.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// UnitRecord is the settled outcome of one engine.
type UnitRecord struct {
	Engine   string        `json:"engine"`
	Dest     string        `json:"dest"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// ProgressRecord is emitted after each batch is saved.
type ProgressRecord struct {
	Batch     int `json:"batch"`
	Batches   int `json:"batches"`
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// Elapsed is measured from the state start time and spans resumed runs.
	Elapsed time.Duration `json:"elapsed_ns"`

	// Throughput is recorded engines per second.
	Throughput float64 `json:"throughput"`

	// ETA is omitted until throughput is known.
	ETA *time.Duration `json:"eta_ns,omitempty"`
}

// FailedEngine is one entry of the summary failure list.
type FailedEngine struct {
	Engine string `json:"engine"`
	Error  string `json:"error"`
}

// SummaryRecord is emitted once at the end of a run.
type SummaryRecord struct {
	Total         int            `json:"total"`
	Succeeded     int            `json:"succeeded"`
	Failed        int            `json:"failed"`
	SuccessRate   float64        `json:"success_rate"`
	Completed     int            `json:"completed"`
	FailedEngines []FailedEngine `json:"failed_engines"`
	Interrupted   bool           `json:"interrupted,omitempty"`
	StateLocation string         `json:"state_location,omitempty"`
	Duration      time.Duration  `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// ErrorRecord reports a run-level failure.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Engine is the engine related to this error, if applicable.
	Engine string `json:"engine,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeConfig      = "CONFIG"
	ErrCodeListing     = "LISTING"
	ErrCodePersistence = "PERSISTENCE"
	ErrCodeCancelled   = "CANCELLED"
	ErrCodeInternal    = "INTERNAL"
)

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
