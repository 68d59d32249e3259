// internal/common/errors/handler.go
package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorHandler turns errors into JSON responses with standardized logging
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleHTTPError logs err and writes it to w with the mapped status code
func (h *ErrorHandler) HandleHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := Normalize(err)
	status := StatusOf(stdErr)

	h.logError(r, stdErr, status)

	resp := ErrorResponse{
		Error: stdErr.Message,
		Code:  string(stdErr.Code),
	}
	// A backend 401 or 404 must not read like a bad admin key or a missing application.
	if status != HTTPStatus(stdErr.Code) {
		resp.Error = "Dataset store error: " + stdErr.Message
		resp.Code = "BACKEND_" + string(stdErr.Code)
	}
	// Internal details stay in the logs.
	if status < http.StatusInternalServerError {
		resp.Details = stdErr.Details
	}
	WriteJSON(w, status, resp)
}

func (h *ErrorHandler) logError(r *http.Request, stdErr *StandardError, status int) {
	fields := map[string]interface{}{
		"method":        r.Method,
		"path":          r.URL.Path,
		"status":        status,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
		"source":        stdErr.Source,
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields)
		return
	}
	h.logger.Warn("request rejected", fields)
}

// WriteJSON writes payload as a JSON response
func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
