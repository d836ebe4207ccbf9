// Package handler contains the HTTP handlers for the Crater API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	mw "github.com/craterhq/crater/internal/api/middleware"
	"github.com/craterhq/crater/internal/api/response"
	"github.com/craterhq/crater/internal/ingest"
	"github.com/craterhq/crater/pkg/models"
	"github.com/google/uuid"
)

const maxFrames = 128

// Reporter defines the interface the report handler depends on.
type Reporter interface {
	Report(ctx context.Context, tenantID uuid.UUID, event models.ErrorEvent, fingerprintOverride string) (*ingest.ReportResult, error)
}

type reportRequest struct {
	ErrorType   string            `json:"error_type"`
	Message     string            `json:"message"`
	Frames      []frameBody       `json:"frames"`
	Environment string            `json:"environment"`
	Release     string            `json:"release"`
	Context     map[string]string `json:"context"`
	OccurredAt  string            `json:"occurred_at"`
	Fingerprint string            `json:"fingerprint"`
}

type frameBody struct {
	File     string `json:"file"`
	Function string `json:"function"`
	Line     int    `json:"line"`
}

// NewReportHandler returns an http.HandlerFunc for POST /api/v1/events.
func NewReportHandler(svc Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req reportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if len(req.Frames) > maxFrames {
			req.Frames = req.Frames[:maxFrames]
		}

		occurredAt := time.Now().UTC()
		if req.OccurredAt != "" {
			ts, err := time.Parse(time.RFC3339, req.OccurredAt)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"occurred_at must be a valid RFC3339 timestamp", nil)
				return
			}
			occurredAt = ts.UTC()
		}

		frames := make([]models.StackFrame, 0, len(req.Frames))
		for _, f := range req.Frames {
			frames = append(frames, models.StackFrame{File: f.File, Function: f.Function, Line: f.Line})
		}

		event := models.ErrorEvent{
			ErrorType:   req.ErrorType,
			Message:     req.Message,
			Frames:      frames,
			Environment: req.Environment,
			Release:     req.Release,
			Context:     req.Context,
			OccurredAt:  occurredAt,
		}

		result, err := svc.Report(r.Context(), tenantID, event, req.Fingerprint)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		if result.IsNew {
			response.Created(w, result)
			return
		}
		response.JSON(w, result)
	}
}

// writeServiceError maps domain error types to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, models.ErrInvalidState):
		response.Error(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, ingest.ErrPersistence):
		response.Error(w, http.StatusServiceUnavailable, "PERSISTENCE_ERROR",
			"The occurrence was not durably recorded; retry the request", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
