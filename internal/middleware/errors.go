package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the failure shape every route shares, so a client needs
// one error handler: check success, then read error.
type ErrorBody struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Code       string `json:"code"`
	RequestID  string `json:"request_id,omitempty"`
	RetryAfter int    `json:"retry_after_ms,omitempty"`
}

// Common error codes
const (
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeModelUnavailable    = "MODEL_SERVER_UNAVAILABLE"
	ErrCodeModelTimeout        = "MODEL_SERVER_TIMEOUT"
	ErrCodeModelError          = "MODEL_SERVER_ERROR"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeCircuitOpen         = "CIRCUIT_OPEN"
	ErrCodeClientClosedRequest = "CLIENT_CLOSED_REQUEST"
)

// RespondError sends the uniform failure body and aborts the chain
func RespondError(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Success:   false,
		Error:     message,
		Code:      code,
		RequestID: GetRequestID(c),
	})
}

// RespondErrorWithRetry sends the uniform failure body with a retry hint
func RespondErrorWithRetry(c *gin.Context, status int, code string, message string, retryAfterMs int) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Success:    false,
		Error:      message,
		Code:       code,
		RequestID:  GetRequestID(c),
		RetryAfter: retryAfterMs,
	})
}

// BadRequest sends a 400 error
func BadRequest(c *gin.Context, message string) {
	RespondError(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 error
func Unauthorized(c *gin.Context, message string) {
	RespondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 error
func Forbidden(c *gin.Context, message string) {
	RespondError(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// NotFound sends a 404 error
func NotFound(c *gin.Context, message string) {
	RespondError(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// InternalError sends a 500 error
func InternalError(c *gin.Context, message string) {
	RespondError(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}
