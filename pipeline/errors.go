package pipeline

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-relay/core"
)

func pipelineError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(pipelineTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func pipelineWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return pipelineError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(pipelineTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func pipelineTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.RelayErrorBadInput
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return core.RelayErrorTransientForwardingFailure
	default:
		return core.RelayErrorInternal
	}
}

func notConfigured(kind string) error {
	return pipelineError(
		"pipeline: "+kind+" pipeline is not configured",
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		map[string]any{"pipeline": kind},
	)
}
