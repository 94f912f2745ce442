package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`   // code from codes.go
	Message string `json:"message"` // human-readable, never contains store detail
}

// MessageResponse is the body of generic successful outcomes.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func RespondWithError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Success: false,
		Error:   errorCode,
		Message: message,
	})
}

func RespondWithMessage(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, MessageResponse{
		Success: true,
		Message: message,
	})
}

// StatusFor returns the HTTP status for a kind.
func StatusFor(kind Kind) int {
	switch kind {
	case KindOK:
		return http.StatusOK
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Respond classifies err and writes the matching status and body.
func Respond(c *gin.Context, err error) {
	code, message := Describe(err)
	RespondWithError(c, StatusFor(Classify(err)), code, message)
}

// Shorthand helpers

func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "login required"
	}
	RespondWithError(c, http.StatusUnauthorized, AuthUnauthorized, message)
}

func BadRequest(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusBadRequest, errorCode, message)
}

func TooManyRequests(c *gin.Context) {
	RespondWithError(c, http.StatusTooManyRequests, RateLimitExceeded, "too many requests, try again later")
}
