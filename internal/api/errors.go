package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/httputil"
	"github.com/labweave/labweave/internal/metrics"
	"github.com/labweave/labweave/internal/models"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeInternalError   = "internal_error"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeValidationError = "validation_error"
	ErrCodeTooLarge        = "payload_too_large"
	ErrCodeIntegrity       = "integrity_error"
	ErrCodeUnavailable     = "storage_unavailable"
	ErrCodeTraversalLimit  = "traversal_limit"
)

// retryAfterSeconds is the hint sent with 503 responses.
const retryAfterSeconds = 5

// respondError writes a standardized JSON error response, pulling the request
// ID from the Gin context (set by the request ID middleware).
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// respondServiceError maps a service error onto an HTTP response. Unknown
// errors are logged with action and surface as 500.
func respondServiceError(c *gin.Context, log *logrus.Logger, err error, action string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
	case errors.Is(err, models.ErrDocumentNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "document not found")
	case errors.Is(err, models.ErrVersionNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "version not found")
	case errors.Is(err, models.ErrNodeNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "node not found")
	case errors.Is(err, models.ErrPathNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "no path within max_depth")
	case errors.Is(err, models.ErrTraversalLimit):
		respondError(c, http.StatusUnprocessableEntity, ErrCodeTraversalLimit, "query touches too many edges; narrow it with a relation or smaller depth")
	case errors.Is(err, models.ErrTooLarge), isBodyTooLarge(err):
		respondError(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "upload exceeds size limit")
	case errors.Is(err, models.ErrHashMismatch), errors.Is(err, models.ErrContentNotFound):
		log.WithError(err).WithField("action", action).Error("content integrity failure")
		respondError(c, http.StatusInternalServerError, ErrCodeIntegrity, "stored content failed verification")
	case errors.Is(err, models.ErrStorageUnavailable):
		log.WithError(err).WithField("action", action).Warn("storage unavailable")
		metrics.ErrorsTotal.WithLabelValues(ErrCodeUnavailable).Inc()
		httputil.RespondUnavailable(c, retryAfterSeconds, "storage temporarily unavailable")
	default:
		log.WithError(err).WithField("action", action).Error("request failed")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
	}
}

// isBodyTooLarge reports whether err came from the request body size limit.
func isBodyTooLarge(err error) bool {
	var tooBig *http.MaxBytesError

	return errors.As(err, &tooBig)
}
