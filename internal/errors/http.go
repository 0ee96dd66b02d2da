// Package errors maps failures to the JSON error envelope of the HTTP API.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/3leaps/twinpane/pkg/provider"
	"github.com/3leaps/twinpane/pkg/store"
	"github.com/3leaps/twinpane/pkg/transfer"
)

// Error codes carried in HTTPError.Code.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeAccessDenied        = "ACCESS_DENIED"
	CodeConflict            = "CONFLICT"
	CodeBadRequest          = "BAD_REQUEST"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeInternal            = "INTERNAL_ERROR"
)

// HTTPErrorResponse is the body of every non-2xx response.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// HTTPError describes one failure.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// BadRequestError marks a client mistake, such as a missing parameter.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

// NewBadRequest returns a *BadRequestError.
func NewBadRequest(message string) error {
	return &BadRequestError{Message: message}
}

// Classify returns the HTTP status and error code for err.
func Classify(err error) (int, string) {
	var badReq *BadRequestError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &badReq),
		errors.Is(err, transfer.ErrInvalidName),
		errors.Is(err, transfer.ErrFolderRename),
		errors.Is(err, transfer.ErrRootDelete),
		errors.Is(err, store.ErrEmptyKey):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, transfer.ErrDeclined):
		return http.StatusConflict, CodeConflict
	case provider.IsNotFound(err), provider.IsBucketNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		return http.StatusForbidden, CodeAccessDenied
	case provider.IsTransient(err), provider.IsProviderUnavailable(err), provider.IsThrottled(err):
		return http.StatusBadGateway, CodeUpstreamUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, status int, body HTTPError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: body})
}

// RespondWithError classifies err and writes the matching envelope.
// Internal errors do not leak their message.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Classify(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	WriteError(w, status, HTTPError{
		Code:      code,
		Message:   msg,
		RequestID: r.Header.Get("X-Request-ID"),
	})
}
