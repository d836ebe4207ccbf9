package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	mw "github.com/craterhq/crater/internal/api/middleware"
	"github.com/craterhq/crater/internal/api/response"
	"github.com/craterhq/crater/internal/cache"
	"github.com/craterhq/crater/internal/store"
	"github.com/craterhq/crater/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const issueCacheTTL = 30 * time.Second

// IssueService defines the interface the issue handlers depend on.
type IssueService interface {
	GetIssue(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*models.Issue, error)
	ListIssues(ctx context.Context, filter store.IssueFilter) ([]*models.Issue, int, error)
	Resolve(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, resolverID string) (*models.Issue, error)
	Ignore(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*models.Issue, error)
}

// NewListIssuesHandler returns an http.HandlerFunc for GET /api/v1/issues.
func NewListIssuesHandler(svc IssueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		q := r.URL.Query()

		status := q.Get("status")
		switch status {
		case "", models.IssueStatusOpen, models.IssueStatusResolved, models.IssueStatusIgnored:
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be one of open, resolved, ignored", nil)
			return
		}

		var since time.Time
		if raw := q.Get("since"); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"since must be a valid RFC3339 timestamp", nil)
				return
			}
			since = ts.UTC()
		}

		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		if page <= 0 {
			page = 1
		}
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		issues, total, err := svc.ListIssues(r.Context(), store.IssueFilter{
			TenantID: tenantID,
			Status:   status,
			Since:    since,
			Page:     page,
			Limit:    limit,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		if issues == nil {
			issues = []*models.Issue{}
		}
		response.Collection(w, issues, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// NewGetIssueHandler returns an http.HandlerFunc for GET /api/v1/issues/{issueID}.
// Responses are cached briefly; lifecycle handlers invalidate on change.
func NewGetIssueHandler(svc IssueService, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, issueID, ok := issueParams(w, r)
		if !ok {
			return
		}

		key := cache.IssueKey(tenantID, issueID)
		if raw, found, err := c.Get(r.Context(), key); err == nil && found {
			var issue models.Issue
			if json.Unmarshal(raw, &issue) == nil {
				response.JSON(w, &issue)
				return
			}
		}

		issue, err := svc.GetIssue(r.Context(), tenantID, issueID)
		if err != nil {
			writeIssueError(w, err)
			return
		}

		if raw, err := json.Marshal(issue); err == nil {
			// Best effort; a cold cache only costs a store read
			_ = c.Set(r.Context(), key, raw, issueCacheTTL)
		}
		response.JSON(w, issue)
	}
}

// NewResolveIssueHandler returns an http.HandlerFunc for POST /api/v1/issues/{issueID}/resolve.
func NewResolveIssueHandler(svc IssueService, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, issueID, ok := issueParams(w, r)
		if !ok {
			return
		}

		var req struct {
			ResolvedBy string `json:"resolved_by"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.ResolvedBy == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "resolved_by is required", nil)
			return
		}

		issue, err := svc.Resolve(r.Context(), tenantID, issueID, req.ResolvedBy)
		if err != nil {
			writeIssueError(w, err)
			return
		}

		_ = c.Delete(r.Context(), cache.IssueKey(tenantID, issueID))
		response.JSON(w, issue)
	}
}

// NewIgnoreIssueHandler returns an http.HandlerFunc for POST /api/v1/issues/{issueID}/ignore.
func NewIgnoreIssueHandler(svc IssueService, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, issueID, ok := issueParams(w, r)
		if !ok {
			return
		}

		issue, err := svc.Ignore(r.Context(), tenantID, issueID)
		if err != nil {
			writeIssueError(w, err)
			return
		}

		_ = c.Delete(r.Context(), cache.IssueKey(tenantID, issueID))
		response.JSON(w, issue)
	}
}

// issueParams extracts the tenant and the issueID path parameter, writing
// the error response itself when either is missing or malformed.
func issueParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
		return uuid.Nil, uuid.Nil, false
	}

	issueID, err := uuid.Parse(chi.URLParam(r, "issueID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "issueID must be a valid UUID", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, issueID, true
}

func writeIssueError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Issue not found", nil)
		return
	}
	writeServiceError(w, err)
}
