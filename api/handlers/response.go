// Package handlers provides HTTP API request handlers.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/chatty-relay/backend/internal/model"
)

// Error codes used in ErrorResponse.
const (
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeValidationError = "VALIDATION_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
)

// APIResponse is the envelope of every successful chat response.
type APIResponse struct {
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	Token    string          `json:"token,omitempty"`
	Messages []model.Message `json:"messages"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func success(message string) APIResponse {
	return APIResponse{Status: "success", Message: message}
}
