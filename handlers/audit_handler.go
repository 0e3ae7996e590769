package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/middleware"
	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/services"
	"github.com/upb/ai-integration-platform/utils"
)

const (
	defaultAuditLimit = 20
	maxAuditLimit     = 100
)

// AuditReader reads persisted route audits
type AuditReader interface {
	Get(ctx context.Context, requestID string) (*models.RouteAudit, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*models.RouteAudit, error)
}

// AuditHandler exposes the caller's route audits
type AuditHandler struct {
	audits AuditReader
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(audits AuditReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audits: audits,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/routes?limit=&offset=
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserIDFromContext(ctx)
	if userID == "" {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	limit, err := queryInt(r, "limit", defaultAuditLimit)
	if err != nil || limit <= 0 || limit > maxAuditLimit {
		_ = utils.WriteBadRequest(w, "limit must be between 1 and 100", nil)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		_ = utils.WriteBadRequest(w, "offset must not be negative", nil)
		return
	}

	audits, err := h.audits.List(ctx, userID, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"routes": audits,
		"limit":  limit,
		"offset": offset,
	})
}

// HandleGet handles GET /api/v1/routes/{requestID}. Audits of other users
// are reported as not found.
func (h *AuditHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserIDFromContext(ctx)
	if userID == "" {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	requestID := chi.URLParam(r, "requestID")
	audit, err := h.audits.Get(ctx, requestID)
	if err == nil && audit.UserID != userID {
		err = services.NewDomainError(services.ErrorTypeNotFound, "route audit not found", nil).
			WithDetail("request_id", requestID)
	}
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, audit)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
