package verifications

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/warden/internal/verification"
	"github.com/JaimeStill/warden/pkg/storage"
)

// Domain errors for session and history operations.
var (
	ErrNotFound            = errors.New("verification not found")
	ErrDuplicate           = errors.New("verification already recorded")
	ErrSessionNotFound     = errors.New("session not found")
	ErrTooManySessions     = errors.New("too many active sessions")
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidArtifact     = errors.New("artifact kind must be original or redacted")
	ErrArtifactUnavailable = errors.New("artifact not available")
	ErrMissingFile         = errors.New("multipart field \"file\" is required")
	ErrRequestTooLarge     = errors.New("request body too large")
	ErrInvalidRequest      = errors.New("invalid request body")
)

// MapHTTPStatus maps domain and workflow errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	var verr *verification.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, verification.ErrPrecondition),
		errors.Is(err, verification.ErrClosed),
		errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrArtifactUnavailable),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidArtifact),
		errors.Is(err, ErrMissingFile),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrRequestTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrTooManySessions):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
