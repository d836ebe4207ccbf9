package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	IssueStatusOpen     = "open"
	IssueStatusResolved = "resolved"
	IssueStatusIgnored  = "ignored"
)

// SampleSize is the number of recent events retained on each issue.
const SampleSize = 10

// Issue is the aggregate grouping every reported occurrence that shares a
// fingerprint. All state changes go through NewIssue, RecordOccurrence,
// Resolve and Ignore; callers must not mutate fields directly.
//
// Version backs optimistic concurrency in the store: zero means the issue
// has never been persisted, and every successful save increments it.
type Issue struct {
	ID          uuid.UUID    `db:"id"            json:"id"`
	TenantID    uuid.UUID    `db:"tenant_id"     json:"tenant_id"`
	Fingerprint string       `db:"fingerprint"   json:"fingerprint"`
	Status      string       `db:"status"        json:"status"`
	FirstSeenAt time.Time    `db:"first_seen_at" json:"first_seen_at"`
	LastSeenAt  time.Time    `db:"last_seen_at"  json:"last_seen_at"`
	Count       int          `db:"count"         json:"count"`
	Sample      []ErrorEvent `db:"sample"        json:"sample"`
	ResolvedBy  *string      `db:"resolved_by"   json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time   `db:"resolved_at"   json:"resolved_at,omitempty"`
	Version     int          `db:"version"       json:"-"`
	CreatedAt   time.Time    `db:"created_at"    json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"    json:"updated_at"`
}

// NewIssue creates an open issue from its first occurrence and returns it
// together with the IssueCreated event. An issue cannot exist without at
// least one initiating event.
func NewIssue(tenantID uuid.UUID, fingerprint string, first ErrorEvent) (*Issue, []DomainEvent) {
	now := time.Now().UTC()
	issue := &Issue{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Fingerprint: fingerprint,
		Status:      IssueStatusOpen,
		FirstSeenAt: first.OccurredAt,
		LastSeenAt:  first.OccurredAt,
		Count:       1,
		Sample:      []ErrorEvent{first},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created := DomainEvent{
		Kind:       EventIssueCreated,
		IssueID:    issue.ID,
		TenantID:   tenantID,
		OccurredAt: now,
		Payload:    map[string]string{"fingerprint": fingerprint},
	}
	return issue, []DomainEvent{created}
}

// RecordOccurrence folds one more event into the issue. A resolved issue
// reopens and emits IssueReopened; an ignored issue keeps counting without
// reopening.
func (i *Issue) RecordOccurrence(ev ErrorEvent) []DomainEvent {
	now := time.Now().UTC()
	var events []DomainEvent

	if i.Status == IssueStatusResolved {
		i.Status = IssueStatusOpen
		i.ResolvedBy = nil
		i.ResolvedAt = nil
		events = append(events, DomainEvent{
			Kind:       EventIssueReopened,
			IssueID:    i.ID,
			TenantID:   i.TenantID,
			OccurredAt: now,
			Payload:    map[string]string{"fingerprint": i.Fingerprint},
		})
	}

	i.Count++
	if ev.OccurredAt.After(i.LastSeenAt) {
		i.LastSeenAt = ev.OccurredAt
	}
	if ev.OccurredAt.Before(i.FirstSeenAt) {
		i.FirstSeenAt = ev.OccurredAt
	}
	i.pushSample(ev)
	i.UpdatedAt = now

	return events
}

// Resolve marks the issue resolved, recording who resolved it and when.
func (i *Issue) Resolve(resolverID string) ([]DomainEvent, error) {
	if i.Count < 1 {
		return nil, fmt.Errorf("resolve issue with no occurrences: %w", ErrInvalidState)
	}
	if i.Status == IssueStatusResolved {
		return nil, fmt.Errorf("issue already resolved: %w", ErrInvalidState)
	}

	now := time.Now().UTC()
	i.Status = IssueStatusResolved
	i.ResolvedBy = &resolverID
	i.ResolvedAt = &now
	i.UpdatedAt = now

	return []DomainEvent{{
		Kind:       EventIssueResolved,
		IssueID:    i.ID,
		TenantID:   i.TenantID,
		OccurredAt: now,
		Payload:    map[string]string{"resolved_by": resolverID},
	}}, nil
}

// Ignore mutes the issue. Further occurrences keep counting but never
// reopen it. Allowed from any status; no domain event is emitted.
func (i *Issue) Ignore() ([]DomainEvent, error) {
	if i.Count < 1 {
		return nil, fmt.Errorf("ignore issue with no occurrences: %w", ErrInvalidState)
	}

	i.Status = IssueStatusIgnored
	i.ResolvedBy = nil
	i.ResolvedAt = nil
	i.UpdatedAt = time.Now().UTC()

	return nil, nil
}

// pushSample prepends ev to the sample ring, newest first, bounded to SampleSize.
func (i *Issue) pushSample(ev ErrorEvent) {
	i.Sample = append([]ErrorEvent{ev}, i.Sample...)
	if len(i.Sample) > SampleSize {
		i.Sample = i.Sample[:SampleSize]
	}
}
