package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDocumentExists      = errors.New("document already exists")
	ErrShardUnavailable    = errors.New("shard unavailable")
	ErrInvalidInput        = errors.New("invalid input")
	ErrIdempotencyConflict = errors.New("idempotency key already used")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")

	// ErrInvalidArgument covers a bad weighting-scheme parameter, an
	// empty name passed to the registry, or a write attempted against
	// a read-only database handle.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSerialisation covers truncated or trailing-byte scheme
	// payloads.
	ErrSerialisation = errors.New("serialisation error")
	// ErrCorrupt covers unexpected EOF mid cursor-entry, an unknown
	// kvstore index type, or an impossible offset.
	ErrCorrupt = errors.New("database corrupt")
	// ErrCancelled covers a cooperative matcher abort.
	ErrCancelled = errors.New("operation cancelled")
	// ErrInvalidOperation covers a clone returning nil or an attempt
	// to register a prototype without a name.
	ErrInvalidOperation = errors.New("invalid operation")
)

// StatusClientClosedRequest mirrors nginx's 499 for a matcher aborted by
// client cancellation; net/http defines no constant for it.
const StatusClientClosedRequest = 499

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDocumentExists), errors.Is(err, ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrShardUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, ErrSerialisation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrCorrupt):
		return http.StatusInternalServerError
	case errors.Is(err, ErrCancelled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}

}
