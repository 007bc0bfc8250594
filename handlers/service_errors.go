package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/ticketing-shell/internal/shared"
	"github.com/upb/ticketing-shell/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	details := shared.GetErrorDetails(err)
	message := errorMessage(err)

	var writeErr error
	switch {
	case utils.IsValidationError(err):
		HandleValidationError(w, err, logger)
		return

	case shared.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case shared.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case shared.IsAuthError(err):
		// Provider failures stay generic for the client; the cause is logged.
		logger.Info("authentication failed", zap.Error(err))
		writeErr = utils.WriteUnauthorized(w, message)

	case shared.IsRateLimitError(err):
		writeErr = utils.WriteTooManyRequests(w, message, details)

	case shared.IsProviderUnavailableError(err):
		writeErr = utils.WriteServiceUnavailable(w, message, details)

	case shared.IsGuardMisconfigurationError(err):
		logger.Error("route guard misconfigured", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "Route configuration error")

	case shared.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(shared.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// errorMessage returns the client-facing message of a domain error
func errorMessage(err error) string {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ""
}
