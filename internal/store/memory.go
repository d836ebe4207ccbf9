package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/craterhq/crater/pkg/models"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
// It honors the same conflict and read-your-writes contracts as the
// Postgres adapter: inserts fail with ErrConflict on a duplicate
// fingerprint, updates compare-and-swap on Version.
type MemoryStore struct {
	mu            sync.Mutex
	tenant        models.Tenant
	issues        map[uuid.UUID]*models.Issue
	byFingerprint map[string]uuid.UUID
	events        []*models.ErrorEvent
	keys          map[uuid.UUID]*models.APIKey
}

// NewMemoryStore creates a MemoryStore seeded with a default tenant.
func NewMemoryStore() *MemoryStore {
	now := time.Now().UTC()
	return &MemoryStore{
		tenant: models.Tenant{
			ID:        uuid.New(),
			Name:      "default",
			CreatedAt: now,
			UpdatedAt: now,
		},
		issues:        make(map[uuid.UUID]*models.Issue),
		byFingerprint: make(map[string]uuid.UUID),
		keys:          make(map[uuid.UUID]*models.APIKey),
	}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) GetDefaultTenant(_ context.Context) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant
	return &t, nil
}

// --- API Keys ---

func (s *MemoryStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			copied := *k
			keys = append(keys, &copied)
		}
	}
	return keys, nil
}

func (s *MemoryStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return nil
}

func (s *MemoryStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *key
	s.keys[key.ID] = &copied
	return nil
}

func (s *MemoryStore) ListAPIKeys(_ context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []*models.APIKey
	for _, k := range s.keys {
		if k.TenantID == tenantID && k.DeletedAt == nil {
			copied := *k
			keys = append(keys, &copied)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (s *MemoryStore) RevokeAPIKey(_ context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.TenantID != tenantID || k.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	return nil
}

// --- Issues ---

func (s *MemoryStore) FindIssueByFingerprint(_ context.Context, tenantID uuid.UUID, fingerprint string) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byFingerprint[fpKey(tenantID, fingerprint)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneIssue(s.issues[id]), nil
}

func (s *MemoryStore) FindIssueByID(_ context.Context, tenantID uuid.UUID, id uuid.UUID) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok || issue.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return cloneIssue(issue), nil
}

func (s *MemoryStore) SaveIssue(_ context.Context, issue *models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if issue.Version == 0 {
		key := fpKey(issue.TenantID, issue.Fingerprint)
		if _, exists := s.byFingerprint[key]; exists {
			return ErrConflict
		}
		issue.Version = 1
		s.issues[issue.ID] = cloneIssue(issue)
		s.byFingerprint[key] = issue.ID
		return nil
	}

	current, ok := s.issues[issue.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != issue.Version {
		return ErrConflict
	}
	issue.Version++
	s.issues[issue.ID] = cloneIssue(issue)
	return nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, event *models.ErrorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *event
	s.events = append(s.events, &copied)
	return nil
}

// EventCount reports how many events have been appended, for tests.
func (s *MemoryStore) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *MemoryStore) ListIssues(_ context.Context, filter IssueFilter) ([]*models.Issue, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.Issue
	for _, issue := range s.issues {
		if issue.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && issue.Status != filter.Status {
			continue
		}
		if !filter.Since.IsZero() && issue.LastSeenAt.Before(filter.Since) {
			continue
		}
		matched = append(matched, cloneIssue(issue))
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].LastSeenAt.Equal(matched[j].LastSeenAt) {
			return matched[i].LastSeenAt.After(matched[j].LastSeenAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	if offset >= len(matched) {
		return []*models.Issue{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func fpKey(tenantID uuid.UUID, fingerprint string) string {
	return tenantID.String() + "/" + fingerprint
}

func cloneIssue(issue *models.Issue) *models.Issue {
	copied := *issue
	copied.Sample = append([]models.ErrorEvent(nil), issue.Sample...)
	if issue.ResolvedBy != nil {
		by := *issue.ResolvedBy
		copied.ResolvedBy = &by
	}
	if issue.ResolvedAt != nil {
		at := *issue.ResolvedAt
		copied.ResolvedAt = &at
	}
	return &copied
}
