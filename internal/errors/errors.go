// Package errors renders JSON error responses for the bridge's HTTP endpoints.
//
// Errors that happen once a stream has started are never rendered here: by then
// the status line is committed and failures travel in-band as Error frames.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Machine-readable error codes.
const (
	CodeBadRequest = "bad_request"
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeInternal   = "internal"
)

// APIError is the body of every non-streaming error response.
type APIError struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// NewAPIError creates a new APIError with the given message and optional details.
func NewAPIError(code, message string, details map[string]any) *APIError {
	return &APIError{
		Error:   message,
		Code:    code,
		Details: details,
	}
}

// AbortWithBadRequest sends a 400 Bad Request response and aborts the request.
func AbortWithBadRequest(c *gin.Context, message string, details map[string]any) {
	c.AbortWithStatusJSON(http.StatusBadRequest, NewAPIError(CodeBadRequest, message, details))
}

// AbortWithNotFound sends a 404 Not Found response and aborts the request.
func AbortWithNotFound(c *gin.Context, message string, details map[string]any) {
	c.AbortWithStatusJSON(http.StatusNotFound, NewAPIError(CodeNotFound, message, details))
}

// AbortWithConflict sends a 409 Conflict response and aborts the request.
func AbortWithConflict(c *gin.Context, message string, details map[string]any) {
	c.AbortWithStatusJSON(http.StatusConflict, NewAPIError(CodeConflict, message, details))
}

// AbortWithInternal sends a 500 Internal Server Error response and aborts the request.
func AbortWithInternal(c *gin.Context, message string, details map[string]any) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, NewAPIError(CodeInternal, message, details))
}
