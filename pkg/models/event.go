// Package models contains shared data models used across the Crater codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// StackFrame is one entry of an error's stack trace, innermost first.
type StackFrame struct {
	File     string `json:"file"`
	Function string `json:"function"`
	Line     int    `json:"line"`
}

// ErrorEvent represents a single reported occurrence of an error.
// Events are immutable once constructed; IssueID is assigned when the
// event is folded into an issue and appended to the event log.
type ErrorEvent struct {
	ID          uuid.UUID         `db:"id"          json:"id"`
	IssueID     uuid.UUID         `db:"issue_id"    json:"issue_id"`
	TenantID    uuid.UUID         `db:"tenant_id"   json:"tenant_id"`
	ErrorType   string            `db:"error_type"  json:"error_type"`
	Message     string            `db:"message"     json:"message"`
	Frames      []StackFrame      `db:"frames"      json:"frames"`
	Environment string            `db:"environment" json:"environment"`
	Release     string            `db:"release"     json:"release"`
	Context     map[string]string `db:"context"     json:"context,omitempty"`
	OccurredAt  time.Time         `db:"occurred_at" json:"occurred_at"`
	CreatedAt   time.Time         `db:"created_at"  json:"created_at"`
}
