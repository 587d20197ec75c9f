// Package output provides JSONL output for CLI results.
//
// Output is structured as typed record envelopes containing items,
// coordinator events, errors and summaries. Each line is a self-contained
// JSON object that can be parsed independently.
package output

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/hirelane/pkg/ordering"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: hirelane.<type>.v<version>
const (
	// TypeItem identifies candidate and job records.
	TypeItem = "hirelane.item.v1"

	// TypeEvent identifies optimistic coordinator events.
	TypeEvent = "hirelane.event.v1"

	// TypeError identifies error records.
	TypeError = "hirelane.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "hirelane.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "hirelane.item.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID correlates the records of one CLI invocation.
	RunID string `json:"run_id"`

	// Source names the board the records came from: "local" or a server URL.
	Source string `json:"source"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ItemRecord is the data payload for one candidate or job.
type ItemRecord struct {
	Kind      pipeline.Kind `json:"kind"`
	ID        string        `json:"id"`
	Group     string        `json:"group"`
	Order     int           `json:"order"`
	Label     string        `json:"label"`
	Email     string        `json:"email,omitempty"`
	Slug      string        `json:"slug,omitempty"`
	Status    string        `json:"status,omitempty"`
	Tags      []string      `json:"tags,omitempty"`
	AppliedAt *time.Time    `json:"applied_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewItemRecord projects it for output.
func NewItemRecord(it pipeline.Item) *ItemRecord {
	return &ItemRecord{
		Kind:      it.Kind,
		ID:        it.ID,
		Group:     it.Group,
		Order:     it.Order,
		Label:     it.Label(),
		Email:     it.Email,
		Slug:      it.Slug,
		Status:    string(it.Status),
		Tags:      it.Tags,
		AppliedAt: it.AppliedAt,
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
}

// EventRecord is the data payload for a coordinator snapshot change.
type EventRecord struct {
	Event string   `json:"event"`
	Kind  string   `json:"kind"`
	Group string   `json:"group"`
	IDs   []string `json:"ids"`
	Error string   `json:"error,omitempty"`
}

// ErrorRecord is the data payload for errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// ID is the item the error concerns, if any.
	ID string `json:"id,omitempty"`

	// Group is the group being changed when the error occurred.
	Group string `json:"group,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeTransient  = "TRANSIENT"
	ErrCodeTimeout    = "TIMEOUT"
	ErrCodeInternal   = "INTERNAL"
)

// ErrorCode classifies err into one of the ErrCode constants.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ordering.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ordering.ErrBadRequest):
		return ErrCodeBadRequest
	case errors.Is(err, pipeline.ErrConflict):
		return ErrCodeConflict
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, ordering.ErrTransient):
		return ErrCodeTransient
	}
	return ErrCodeInternal
}

// NewErrorRecord builds an error record for err.
func NewErrorRecord(err error, id, group string) *ErrorRecord {
	return &ErrorRecord{Code: ErrorCode(err), Message: err.Error(), ID: id, Group: group}
}

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	// Operation is the CLI verb that ran (list, reorder, transfer, ...).
	Operation string `json:"operation"`

	Kind  string `json:"kind,omitempty"`
	Group string `json:"group,omitempty"`

	// Items is the number of item records emitted.
	Items int64 `json:"items"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Errors is the count of errors encountered.
	Errors int64 `json:"errors"`
}

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
