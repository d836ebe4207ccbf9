// Package ingest implements the aggregation service: it folds reported
// error events into issues and exposes the issue query and lifecycle
// operations consumed by the API layer.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/craterhq/crater/internal/bus"
	"github.com/craterhq/crater/internal/fingerprint"
	"github.com/craterhq/crater/internal/store"
	"github.com/craterhq/crater/pkg/models"
	"github.com/google/uuid"
)

// DefaultMaxRetries bounds the conflict-retry loop on concurrent saves.
const DefaultMaxRetries = 3

// ReportResult is the outcome of folding one event into an issue.
type ReportResult struct {
	IssueID uuid.UUID `json:"issue_id"`
	IsNew   bool      `json:"is_new"`
	Status  string    `json:"status"`
}

// Service orchestrates fingerprinting, issue aggregation and persistence.
// It holds no locks of its own; all blocking is confined to the store.
type Service struct {
	store      store.Store
	bus        *bus.Bus
	fp         *fingerprint.Engine
	maxRetries int
}

// NewService creates a Service. Non-positive maxRetries falls back to
// DefaultMaxRetries.
func NewService(s store.Store, b *bus.Bus, fp *fingerprint.Engine, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Service{store: s, bus: b, fp: fp, maxRetries: maxRetries}
}

// Report folds one error event into the issue matching its fingerprint,
// creating the issue on first occurrence. Two concurrent first occurrences
// of the same error never create two issues: the store signals the losing
// insert with ErrConflict and the loop reloads the winner and reapplies
// the occurrence. The same loop absorbs version conflicts on concurrent
// counter updates, so no increment is lost.
func (s *Service) Report(ctx context.Context, tenantID uuid.UUID, event models.ErrorEvent, fingerprintOverride string) (*ReportResult, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	fp, err := s.fp.Compute(event, fingerprintOverride)
	if err != nil {
		return nil, err
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.TenantID = tenantID
	event.CreatedAt = time.Now().UTC()

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		issue, isNew, domainEvents, err := s.applyOccurrence(ctx, tenantID, fp, event)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				slog.Debug("save conflict, retrying", "fingerprint", fp, "attempt", attempt+1)
				continue
			}
			return nil, err
		}

		event.IssueID = issue.ID
		if err := s.store.AppendEvent(ctx, &event); err != nil {
			return nil, fmt.Errorf("append event: %v: %w", err, ErrPersistence)
		}

		s.publish(domainEvents)
		return &ReportResult{IssueID: issue.ID, IsNew: isNew, Status: issue.Status}, nil
	}

	return nil, fmt.Errorf("report retries exhausted for fingerprint %s: %w", fp, ErrPersistence)
}

// applyOccurrence performs one load-or-create plus save attempt.
func (s *Service) applyOccurrence(ctx context.Context, tenantID uuid.UUID, fp string, event models.ErrorEvent) (*models.Issue, bool, []models.DomainEvent, error) {
	issue, err := s.store.FindIssueByFingerprint(ctx, tenantID, fp)
	switch {
	case errors.Is(err, store.ErrNotFound):
		newIssue, domainEvents := models.NewIssue(tenantID, fp, event)
		if err := s.store.SaveIssue(ctx, newIssue); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return nil, false, nil, err
			}
			return nil, false, nil, fmt.Errorf("save new issue: %v: %w", err, ErrPersistence)
		}
		return newIssue, true, domainEvents, nil

	case err != nil:
		return nil, false, nil, fmt.Errorf("find issue by fingerprint: %v: %w", err, ErrPersistence)
	}

	domainEvents := issue.RecordOccurrence(event)
	if err := s.store.SaveIssue(ctx, issue); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, false, nil, err
		}
		return nil, false, nil, fmt.Errorf("save issue: %v: %w", err, ErrPersistence)
	}
	return issue, false, domainEvents, nil
}

// GetIssue returns one issue by ID.
func (s *Service) GetIssue(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*models.Issue, error) {
	return s.store.FindIssueByID(ctx, tenantID, id)
}

// ListIssues returns issue summaries ordered last-seen descending,
// plus the total match count.
func (s *Service) ListIssues(ctx context.Context, filter store.IssueFilter) ([]*models.Issue, int, error) {
	return s.store.ListIssues(ctx, filter)
}

// Resolve marks an issue resolved, recording the resolver's identity.
func (s *Service) Resolve(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, resolverID string) (*models.Issue, error) {
	return s.mutateIssue(ctx, tenantID, id, func(issue *models.Issue) ([]models.DomainEvent, error) {
		return issue.Resolve(resolverID)
	})
}

// Ignore mutes an issue so further occurrences never reopen it.
func (s *Service) Ignore(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*models.Issue, error) {
	return s.mutateIssue(ctx, tenantID, id, func(issue *models.Issue) ([]models.DomainEvent, error) {
		return issue.Ignore()
	})
}

// mutateIssue runs a lifecycle transition under the same conflict-retry
// loop as Report.
func (s *Service) mutateIssue(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, apply func(*models.Issue) ([]models.DomainEvent, error)) (*models.Issue, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		issue, err := s.store.FindIssueByID(ctx, tenantID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("find issue by id: %v: %w", err, ErrPersistence)
		}

		domainEvents, err := apply(issue)
		if err != nil {
			return nil, err
		}

		if err := s.store.SaveIssue(ctx, issue); err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return nil, fmt.Errorf("save issue: %v: %w", err, ErrPersistence)
		}

		s.publish(domainEvents)
		return issue, nil
	}

	return nil, fmt.Errorf("issue update retries exhausted for %s: %w", id, ErrPersistence)
}

func (s *Service) publish(events []models.DomainEvent) {
	for _, ev := range events {
		s.bus.Publish(ev)
	}
}

// validateEvent rejects events the fingerprint engine and aggregate cannot
// meaningfully group.
func validateEvent(event models.ErrorEvent) error {
	if strings.TrimSpace(event.ErrorType) == "" {
		return fmt.Errorf("error_type is required: %w", models.ErrValidation)
	}
	if len(event.Frames) == 0 && strings.TrimSpace(event.Message) == "" {
		return fmt.Errorf("either frames or message is required: %w", models.ErrValidation)
	}
	if event.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required: %w", models.ErrValidation)
	}
	return nil
}
