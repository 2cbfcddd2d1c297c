package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/gorilla/mux"
)

const (
	RouteVarProvider = "provider"
	RouteVarUser     = "user"
	DefaultRoutePath = "/webhooks/{provider}/{user}"
)

type Ingester interface {
	Ingest(ctx context.Context, req core.IngestRequest) (core.IngestResult, error)
}

// Handler binds the controller to HTTP. The body is read as raw bytes and
// passed through untouched, since the signature covers the exact payload.
type Handler struct {
	Ingester     Ingester
	MaxBodyBytes int64
}

func NewHandler(ingester Ingester, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = core.DefaultConfig().Ingest.MaxBodyBytes
	}
	return &Handler{Ingester: ingester, MaxBodyBytes: maxBodyBytes}
}

// RegisterRoutes mounts the webhook endpoint on router. An empty path uses
// DefaultRoutePath; custom paths must declare the provider variable and may
// declare the user variable.
func RegisterRoutes(router *mux.Router, handler http.Handler, path string) *mux.Route {
	if strings.TrimSpace(path) == "" {
		path = DefaultRoutePath
	}
	return router.Handle(path, handler).Methods(http.MethodPost)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Ingester == nil {
		writeError(w, inboundInternal(nil, "inbound: handler is not configured", nil))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, inboundError(
				"inbound: request body too large",
				goerrors.CategoryBadInput,
				http.StatusRequestEntityTooLarge,
				core.RelayErrorBadInput,
				map[string]any{"limit": tooLarge.Limit},
			))
			return
		}
		writeError(w, inboundBadInput("inbound: read request body failed", nil))
		return
	}

	vars := mux.Vars(r)
	result, err := h.Ingester.Ingest(r.Context(), core.IngestRequest{
		ProviderID: vars[RouteVarProvider],
		UserID:     vars[RouteVarUser],
		Headers:    flattenHeaders(r.Header),
		Body:       body,
	})
	if result.Response.StatusCode != 0 {
		writeJSON(w, result.Response.StatusCode, result.Response)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result.Response)
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(key)] = strings.Join(values, " ")
	}
	return out
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	TextCode string `json:"text_code"`
	Message  string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	mapped := core.MapError(err)
	writeJSON(w, mapped.Code, errorBody{Error: errorDetail{
		TextCode: mapped.TextCode,
		Message:  mapped.Message,
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
