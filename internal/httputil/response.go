// Package httputil provides shared HTTP response helpers.
package httputil

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// RespondError writes a standardized JSON error response and aborts the request.
func RespondError(c *gin.Context, status int, code, message string) {
	var requestID string
	if rid, exists := c.Get("request_id"); exists {
		if s, ok := rid.(string); ok {
			requestID = s
		}
	}

	resp := map[string]string{
		"code":    code,
		"message": message,
	}

	if requestID != "" {
		resp["request_id"] = requestID
	}

	c.AbortWithStatusJSON(status, resp)
}

// RespondUnavailable writes a 503 with a Retry-After hint in seconds.
func RespondUnavailable(c *gin.Context, retryAfterSeconds int, message string) {
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	RespondError(c, http.StatusServiceUnavailable, "storage_unavailable", message)
}
