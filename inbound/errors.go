package inbound

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-relay/core"
)

func inboundError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return inboundError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundBadInput(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.RelayErrorBadInput,
		metadata,
	)
}

func inboundInternal(source error, message string, metadata map[string]any) error {
	return inboundWrapError(
		source,
		goerrors.CategoryInternal,
		message,
		http.StatusInternalServerError,
		core.RelayErrorInternal,
		metadata,
	)
}

// rejectionError reports why a stored event was rejected.
func rejectionError(event core.WebhookEvent, timestamp string) error {
	switch event.Verification {
	case core.VerificationStaleTimestamp:
		return core.StaleTimestampError(event.EventID, timestamp)
	case core.VerificationInvalidSignature:
		return core.InvalidSignatureError(event.EventID)
	default:
		return nil
	}
}
