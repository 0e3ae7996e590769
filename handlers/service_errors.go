package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/services"
	"github.com/upb/ai-integration-platform/utils"
)

// StatusClientClosedRequest is the status for a caller that went away
const StatusClientClosedRequest = utils.StatusClientClosedRequest

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	var writeErr error

	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("caller cancelled request", zap.Error(err))
		writeErr = utils.WriteError(w, StatusClientClosedRequest, "", nil)

	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request deadline exceeded", zap.Error(err))
		writeErr = utils.WriteError(w, http.StatusGatewayTimeout, "", nil)

	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, err.Error())

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, err.Error(), details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, err.Error())

	case services.IsBudgetError(err):
		writeErr = utils.WriteJSON(w, http.StatusTooManyRequests, utils.ErrorResponse{
			Error:   "budget_exceeded",
			Message: err.Error(),
			Details: details,
		})

	case services.IsProviderAuthError(err):
		// The platform's own vendor credentials were rejected
		logger.Error("provider rejected credentials", zap.Error(err), zap.Any("details", details))
		writeErr = utils.WriteError(w, http.StatusFailedDependency, "", details)

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}
