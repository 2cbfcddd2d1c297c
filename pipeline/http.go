package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/goliatone/go-webhook-relay/webhooks"
)

const (
	KindHTTP = "http"

	HeaderProviderID  = "X-Relay-Provider"
	HeaderUserID      = "X-Relay-User"
	HeaderScopeKey    = "X-Relay-Scope"
	HeaderAttempt     = "X-Relay-Attempt"
	HeaderPayloadHash = "X-Relay-Payload-Sha256"
)

const defaultHTTPClientTimeout = 30 * time.Second
const defaultResponseBodyLimit int64 = 64 << 10

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPPipeline posts the raw payload to a downstream endpoint. When a
// signing key is set the request carries webhook-id, webhook-timestamp and
// webhook-signature headers in the same format the relay verifies inbound.
type HTTPPipeline struct {
	Client               HTTPDoer
	URL                  string
	SigningKey           []byte
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
	Now                  func() time.Time
}

func NewHTTPPipeline(endpoint string, signingKey []byte, client HTTPDoer) (*HTTPPipeline, error) {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, pipelineError(
			"pipeline: http endpoint must be an absolute url",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"pipeline": KindHTTP, "url": endpoint},
		)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPClientTimeout}
	}
	return &HTTPPipeline{
		Client:               client,
		URL:                  parsed.String(),
		SigningKey:           append([]byte(nil), signingKey...),
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}, nil
}

// Deliver succeeds only on a 2xx answer. Transport failures and any other
// status are reported as transient.
func (p *HTTPPipeline) Deliver(ctx context.Context, event core.ForwardedEvent) error {
	if p == nil || p.Client == nil || strings.TrimSpace(p.URL) == "" {
		return notConfigured(KindHTTP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(event.Payload))
	if err != nil {
		return pipelineWrapError(
			err,
			goerrors.CategoryBadInput,
			"pipeline: create http request",
			http.StatusBadRequest,
			map[string]any{"pipeline": KindHTTP, "event_id": event.EventID},
		)
	}
	for key, value := range p.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		req.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderProviderID, event.ProviderID)
	req.Header.Set(HeaderUserID, event.UserID)
	req.Header.Set(HeaderScopeKey, event.ScopeKey)
	req.Header.Set(HeaderAttempt, strconv.Itoa(event.Attempt))
	req.Header.Set(HeaderPayloadHash, event.PayloadHash)
	if len(p.SigningKey) > 0 {
		signedAt := p.now()
		signature := webhooks.Sign(p.SigningKey, event.EventID, signedAt, event.Payload)
		for key, value := range webhooks.SignedHeaders(event.EventID, strconv.FormatInt(signedAt.Unix(), 10), signature) {
			req.Header.Set(key, value)
		}
	}

	res, err := p.Client.Do(req)
	if err != nil {
		return pipelineWrapError(
			err,
			goerrors.CategoryExternal,
			"pipeline: execute http request",
			http.StatusBadGateway,
			map[string]any{"pipeline": KindHTTP, "event_id": event.EventID},
		)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, p.responseLimit()))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return pipelineError(
			fmt.Sprintf("pipeline: downstream answered %d", res.StatusCode),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{
				"pipeline":    KindHTTP,
				"event_id":    event.EventID,
				"status_code": res.StatusCode,
				"body":        strings.TrimSpace(string(body)),
			},
		)
	}
	return nil
}

func (p *HTTPPipeline) responseLimit() int64 {
	if p.MaxResponseBodyBytes > 0 {
		return p.MaxResponseBodyBytes
	}
	return defaultResponseBodyLimit
}

func (p *HTTPPipeline) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

var _ core.DeliveryPipeline = (*HTTPPipeline)(nil)
