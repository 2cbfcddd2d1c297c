package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	RelayErrorBadInput                   = "RELAY_BAD_INPUT"
	RelayErrorInvalidSignature           = "RELAY_INVALID_SIGNATURE"
	RelayErrorStaleTimestamp             = "RELAY_STALE_TIMESTAMP"
	RelayErrorConflictingReplay          = "RELAY_CONFLICTING_REPLAY"
	RelayErrorTransientForwardingFailure = "RELAY_TRANSIENT_FORWARDING_FAILURE"
	RelayErrorForwardingExhausted        = "RELAY_FORWARDING_EXHAUSTED"
	RelayErrorTransitionConflict         = "RELAY_TRANSITION_CONFLICT"
	RelayErrorNotFound                   = "RELAY_NOT_FOUND"
	RelayErrorInternal                   = "RELAY_INTERNAL_ERROR"
)

var (
	ErrNotFound           = errors.New("core: record not found")
	ErrTransitionConflict = errors.New("core: forwarding state changed concurrently")
)

func InvalidSignatureError(eventID string) *goerrors.Error {
	return relayError("webhook signature did not match any active secret", goerrors.CategoryAuth, RelayErrorInvalidSignature).
		WithMetadata(map[string]any{"event_id": eventID})
}

func StaleTimestampError(eventID string, timestamp string) *goerrors.Error {
	return relayError("webhook timestamp outside tolerance window", goerrors.CategoryAuth, RelayErrorStaleTimestamp).
		WithMetadata(map[string]any{"event_id": eventID, "timestamp": timestamp})
}

func ConflictingReplayError(eventID string) *goerrors.Error {
	return relayError("webhook id already recorded with a different payload", goerrors.CategoryConflict, RelayErrorConflictingReplay).
		WithMetadata(map[string]any{"event_id": eventID})
}

func TransientForwardingError(eventID string, attempt int, cause error) *goerrors.Error {
	err := goerrors.Wrap(cause, goerrors.CategoryOperation, "forwarding attempt failed").
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(RelayErrorTransientForwardingFailure)
	return err.WithMetadata(map[string]any{"event_id": eventID, "attempt": attempt})
}

func ForwardingExhaustedError(eventID string, attempts int, cause error) *goerrors.Error {
	message := "forwarding attempts exhausted"
	var err *goerrors.Error
	if cause != nil {
		err = goerrors.Wrap(cause, goerrors.CategoryOperation, message)
	} else {
		err = goerrors.New(message, goerrors.CategoryOperation)
	}
	err = err.WithCode(http.StatusInternalServerError).WithTextCode(RelayErrorForwardingExhausted)
	return err.WithMetadata(map[string]any{"event_id": eventID, "attempts": attempts})
}

func TransitionConflictError(eventID string, cause error) *goerrors.Error {
	if cause == nil {
		cause = ErrTransitionConflict
	}
	return goerrors.Wrap(cause, goerrors.CategoryConflict, "forwarding state changed concurrently").
		WithCode(http.StatusConflict).
		WithTextCode(RelayErrorTransitionConflict).
		WithMetadata(map[string]any{"event_id": eventID})
}

func NotFoundError(kind string, id string) *goerrors.Error {
	return goerrors.Wrap(ErrNotFound, goerrors.CategoryNotFound, kind+" not found").
		WithCode(http.StatusNotFound).
		WithTextCode(RelayErrorNotFound).
		WithMetadata(map[string]any{"kind": kind, "id": id})
}

func BadInputError(message string, metadata map[string]any) *goerrors.Error {
	err := relayError(message, goerrors.CategoryBadInput, RelayErrorBadInput)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// HasTextCode reports whether err carries the given relay text code.
func HasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || HasTextCode(err, RelayErrorNotFound)
}

func IsTransitionConflict(err error) bool {
	return errors.Is(err, ErrTransitionConflict) || HasTextCode(err, RelayErrorTransitionConflict)
}

// MapError normalises any error into a relay error envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureRelayErrorEnvelope(richErr)
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return NotFoundError("record", "")
	case errors.Is(err, ErrTransitionConflict):
		return TransitionConflictError("", err)
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureRelayErrorEnvelope(mapped)
}

func relayError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureRelayErrorEnvelope(goerrors.New(message, category).WithTextCode(textCode))
}

func ensureRelayErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = relayHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultRelayTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultRelayTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return RelayErrorBadInput
	case goerrors.CategoryNotFound:
		return RelayErrorNotFound
	case goerrors.CategoryAuth:
		return RelayErrorInvalidSignature
	case goerrors.CategoryConflict:
		return RelayErrorTransitionConflict
	default:
		return RelayErrorInternal
	}
}

func relayHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryOperation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
