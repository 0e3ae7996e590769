package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/middleware"
	"github.com/upb/ai-integration-platform/services/routing"
	"github.com/upb/ai-integration-platform/utils"
)

// maxRouteBody bounds the decoded request body
const maxRouteBody = 1 << 20

// RouteService routes requests through the fallback chain
type RouteService interface {
	Route(ctx context.Context, req *routing.Request) (*routing.Result, error)
	Plan(ctx context.Context, req *routing.Request) ([]routing.Candidate, error)
}

// RouteHandler handles routing HTTP requests
type RouteHandler struct {
	service        RouteService
	exposeAttempts bool
	logger         *zap.Logger
}

// NewRouteHandler creates a new RouteHandler. When exposeAttempts is false
// the attempt trail is only returned for ?debug=true.
func NewRouteHandler(service RouteService, exposeAttempts bool, logger *zap.Logger) *RouteHandler {
	return &RouteHandler{
		service:        service,
		exposeAttempts: exposeAttempts,
		logger:         logger,
	}
}

// HandleRoute handles POST /api/v1/route
func (h *RouteHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	result, err := h.service.Route(ctx, req)
	if err != nil {
		h.logger.Warn("route failed",
			zap.String("request_id", requestID),
			zap.String("user_id", req.UserID),
			zap.String("capability", req.Capability),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	if !h.exposeAttempts && !debugRequested(r) {
		result = result.WithoutAttempts()
	}

	if err := utils.WriteOK(w, result); err != nil {
		h.logger.Error("failed to write route response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// HandlePlan handles POST /api/v1/route/plan. It returns the chain a route
// call would walk without contacting any provider.
func (h *RouteHandler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	chain, err := h.service.Plan(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"capability": req.Capability,
		"candidates": chain,
	})
}

// decode reads the body and binds the caller identity. The user id resolved
// by the identity middleware always wins over the body.
func (h *RouteHandler) decode(w http.ResponseWriter, r *http.Request) (*routing.Request, bool) {
	var req routing.Request
	if err := utils.DecodeJSON(w, r, maxRouteBody, &req); err != nil {
		h.logger.Warn("failed to parse route request",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		if errors.Is(err, utils.ErrBodyTooLarge) {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "", nil)
		} else {
			_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		}
		return nil, false
	}

	if userID := middleware.GetUserIDFromContext(r.Context()); userID != "" {
		req.UserID = userID
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && req.IdempotencyKey == "" {
		req.IdempotencyKey = key
	}
	return &req, true
}

func debugRequested(r *http.Request) bool {
	debug, err := strconv.ParseBool(r.URL.Query().Get("debug"))
	return err == nil && debug
}
