package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "lhtl/internal/errors"
	"lhtl/internal/logging"
)

const internalErrorMessage = "internal server error"

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

type responder struct {
	logger logging.Logger
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Client errors carry their cause; server errors are
// logged in full and answered with a fixed message.
func (r *responder) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	logger := logging.WithRequestID(r.logger, requestID(c))

	resp := errorResponse{}
	var validation *apperrors.ValidationError
	var maxBytes *http.MaxBytesError
	var tooLarge *apperrors.TooLargeError
	switch {
	case errors.As(err, &validation):
		resp.Error = validation.Error()
		resp.Fields = validation.Fields
	case errors.As(err, &maxBytes):
		resp.Error = tooLargeMessage(maxBytes.Limit)
	case errors.As(err, &tooLarge):
		resp.Error = tooLargeMessage(tooLarge.Limit)
	case status == http.StatusNotFound:
		resp.Error = "not found"
	case status == http.StatusServiceUnavailable:
		resp.Error = "AI service is not configured"
	case apperrors.KindOf(err) == apperrors.KindUpstream:
		resp.Error = "AI analysis failed"
	default:
		resp.Error = internalErrorMessage
	}

	if status >= http.StatusInternalServerError {
		logger.Error("HTTP %d - %s %s: %v", status, c.Request.Method, c.Request.URL.Path, err)
	} else {
		logger.Debug("HTTP %d - %s %s: %v", status, c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, resp)
}

func tooLargeMessage(limit int64) string {
	return fmt.Sprintf("request body exceeds %d bytes", limit)
}
