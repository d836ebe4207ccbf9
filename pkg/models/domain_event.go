package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventIssueCreated  = "issue.created"
	EventIssueReopened = "issue.reopened"
	EventIssueResolved = "issue.resolved"
)

// DomainEvent is an immutable record of an issue state transition.
// Events are delivered in-process at least once; subscribers own
// duplicate suppression.
type DomainEvent struct {
	Kind       string            `json:"kind"`
	IssueID    uuid.UUID         `json:"issue_id"`
	TenantID   uuid.UUID         `json:"tenant_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Payload    map[string]string `json:"payload,omitempty"`
}
