// Package store holds the repository port and its adapters. The domain
// core depends only on the Store interface; concrete back-ends plug in
// underneath it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/craterhq/crater/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")

// ErrConflict signals that a save lost a race: either another issue with
// the same fingerprint was created concurrently, or the issue was updated
// since it was loaded (version mismatch). Callers reload and retry.
var ErrConflict = errors.New("concurrent modification conflict")

// Store is the data access interface. All database operations go through here.
//
// SaveIssue contract: an issue with Version 0 is inserted and must fail
// with ErrConflict when the (tenant, fingerprint) pair already exists; a
// persisted issue is updated compare-and-swap on Version, failing with
// ErrConflict on mismatch. Every successful save increments Version.
// Reads reflect the latest committed save within one adapter instance.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	FindIssueByFingerprint(ctx context.Context, tenantID uuid.UUID, fingerprint string) (*models.Issue, error)
	FindIssueByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*models.Issue, error)
	SaveIssue(ctx context.Context, issue *models.Issue) error
	AppendEvent(ctx context.Context, event *models.ErrorEvent) error
	ListIssues(ctx context.Context, filter IssueFilter) ([]*models.Issue, int, error)
}

// IssueFilter narrows and pages ListIssues. Results are ordered last-seen
// descending, ties broken by issue ID for a stable order.
type IssueFilter struct {
	TenantID uuid.UUID
	Status   string
	Since    time.Time
	Page     int
	Limit    int
}
