// Package errors maps domain errors to CLI and HTTP error responses.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/3leaps/hirelane/internal/observability"
	"github.com/3leaps/hirelane/pkg/ordering"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

// Error codes used in HTTP error envelopes.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeConflict           = "CONFLICT"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrExternalService marks failures of a dependency outside the process.
var ErrExternalService = stderrors.New("external service unavailable")

// ErrInternal marks unexpected failures.
var ErrInternal = stderrors.New("internal error")

// HTTPError is the body of an error envelope.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the JSON error envelope returned by every endpoint.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// Classify returns the HTTP status and error code for err.
func Classify(err error) (int, string) {
	switch {
	case stderrors.Is(err, ordering.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case stderrors.Is(err, ordering.ErrBadRequest):
		return http.StatusBadRequest, CodeBadRequest
	case stderrors.Is(err, pipeline.ErrConflict):
		return http.StatusConflict, CodeConflict
	case stderrors.Is(err, ordering.ErrTransient),
		stderrors.Is(err, context.DeadlineExceeded),
		stderrors.Is(err, ErrExternalService):
		return http.StatusServiceUnavailable, CodeServiceUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

// RespondWithError writes the envelope for err.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	WriteError(w, r, status, code, msg, nil)
}

// WriteError writes an error envelope with an explicit status and code.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	resp := HTTPErrorResponse{Error: HTTPError{
		Code:    code,
		Message: message,
		Details: details,
	}}
	if r != nil {
		resp.Error.RequestID = observability.RequestID(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// NotFoundHandler answers unknown routes.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusNotFound, CodeNotFound, fmt.Sprintf("no route for %s", r.URL.Path), nil)
}

// MethodNotAllowedHandler answers known routes hit with the wrong method.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed,
		fmt.Sprintf("method %s not allowed for %s", r.Method, r.URL.Path), nil)
}

// NewExternalServiceError reports an unavailable dependency.
func NewExternalServiceError(msg string) error {
	return fmt.Errorf("%w: %s", ErrExternalService, msg)
}

// WrapInternal annotates err as an internal failure. The request id in ctx,
// when present, is included in the message.
func WrapInternal(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}
	if ctx != nil {
		if id := observability.RequestID(ctx); id != "" {
			return fmt.Errorf("%w: %s [request %s]: %w", ErrInternal, msg, id, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrInternal, msg, err)
}
