// Package response standardizes the API's success and error envelopes.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Response represents a standardized API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
	ErrCodePnLUnavailable    = "PNL_UNAVAILABLE"
)

// Handle processes the error and sends the appropriate response.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	default:
		InternalError(c, err.Error())
	}
}

// Success sends a successful response.
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response.
func NotFound(c *gin.Context, message string) {
	sendError(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response.
func BadRequest(c *gin.Context, message string) {
	sendError(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 response.
func Unauthorized(c *gin.Context, message string) {
	sendError(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 response.
func Forbidden(c *gin.Context, message string) {
	sendError(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// Conflict sends a 409 response.
func Conflict(c *gin.Context, message string) {
	sendError(c, http.StatusConflict, ErrCodeDuplicateResource, message)
}

// UnprocessableEntity sends a 422 response. Used when P&L cannot be
// computed from the available data, e.g. an unclosed round trip.
func UnprocessableEntity(c *gin.Context, message string) {
	sendError(c, http.StatusUnprocessableEntity, ErrCodePnLUnavailable, message)
}

// InternalError sends a 500 response.
func InternalError(c *gin.Context, message string) {
	sendError(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

func sendError(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}
