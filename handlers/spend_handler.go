package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/middleware"
	"github.com/upb/ai-integration-platform/services/ledger"
	"github.com/upb/ai-integration-platform/utils"
)

// SpendReader answers spend questions for one ledger day
type SpendReader interface {
	Summary(ctx context.Context, userID string, day time.Time) (*ledger.SpendSummary, error)
	Today() time.Time
	Location() *time.Location
}

// SpendHandler exposes a user's daily spend
type SpendHandler struct {
	ledger SpendReader
	logger *zap.Logger
}

// NewSpendHandler creates a new SpendHandler
func NewSpendHandler(ledger SpendReader, logger *zap.Logger) *SpendHandler {
	return &SpendHandler{
		ledger: ledger,
		logger: logger,
	}
}

// HandleSpend handles GET /api/v1/spend?date=YYYY-MM-DD. The date defaults
// to today in the ledger timezone.
func (h *SpendHandler) HandleSpend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserIDFromContext(ctx)
	if userID == "" {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	day := h.ledger.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, h.ledger.Location())
		if err != nil {
			_ = utils.WriteBadRequest(w, "date must be formatted as YYYY-MM-DD", map[string]interface{}{
				"date": raw,
			})
			return
		}
		day = parsed
	}

	summary, err := h.ledger.Summary(ctx, userID, day)
	if err != nil {
		h.logger.Error("failed to load spend summary",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.String("user_id", userID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, summary)
}
