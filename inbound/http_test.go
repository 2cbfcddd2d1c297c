package inbound

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-webhook-relay/core"
	"github.com/gorilla/mux"
)

func newTestServer(t *testing.T, fixture *ingestFixture, maxBody int64) *mux.Router {
	t.Helper()
	router := mux.NewRouter()
	RegisterRoutes(router, NewHandler(fixture.controller, maxBody), "")
	return router
}

func postWebhook(router http.Handler, path string, req core.IngestRequest) *httptest.ResponseRecorder {
	httpReq := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(req.Body))
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httpReq)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) core.IngestResponse {
	t.Helper()
	var body core.IngestResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return body
}

func TestHandler_AcceptsSignedWebhook(t *testing.T) {
	fixture := newIngestFixture(t)
	router := newTestServer(t, fixture, 0)

	recorder := postWebhook(router, "/webhooks/Acme/usr_1", signedRequest("H1", `{"p":1}`, testNow))
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeResponse(t, recorder)
	if body.Status != ResponseReceived || body.EventID != "H1" || body.Outcome != core.OutcomeAccepted {
		t.Fatalf("unexpected body %#v", body)
	}
	if body.Verification != core.VerificationValid {
		t.Fatalf("expected valid verification, got %s", body.Verification)
	}
	if _, err := fixture.states.Get(context.Background(), "H1"); err != nil {
		t.Fatalf("expected forwarding row: %v", err)
	}
}

func TestHandler_RejectsInvalidSignatureWith401(t *testing.T) {
	fixture := newIngestFixture(t)
	router := newTestServer(t, fixture, 0)
	req := signedRequest("H2", `{"p":1}`, testNow)
	req.Body = []byte(`{"p":"tampered"}`)

	recorder := postWebhook(router, "/webhooks/acme/usr_1", req)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	body := decodeResponse(t, recorder)
	if body.Status != ResponseRejected || body.Verification != core.VerificationInvalidSignature {
		t.Fatalf("unexpected body %#v", body)
	}
}

func TestHandler_ConflictReturns409(t *testing.T) {
	fixture := newIngestFixture(t)
	router := newTestServer(t, fixture, 0)

	if recorder := postWebhook(router, "/webhooks/acme/usr_1", signedRequest("H3", `{"p":1}`, testNow)); recorder.Code != http.StatusAccepted {
		t.Fatalf("expected first delivery accepted, got %d", recorder.Code)
	}
	recorder := postWebhook(router, "/webhooks/acme/usr_1", signedRequest("H3", `{"p":2}`, testNow))
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
	if body := decodeResponse(t, recorder); body.Outcome != core.OutcomeConflict {
		t.Fatalf("unexpected body %#v", body)
	}
}

func TestHandler_MissingEventIDReturnsErrorEnvelope(t *testing.T) {
	fixture := newIngestFixture(t)
	router := newTestServer(t, fixture, 0)
	req := signedRequest("H4", `{}`, testNow)
	delete(req.Headers, "Webhook-Id")

	recorder := postWebhook(router, "/webhooks/acme/usr_1", req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	var body errorBody
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.TextCode != core.RelayErrorBadInput {
		t.Fatalf("expected bad input text code, got %#v", body)
	}
}

func TestHandler_RejectsOversizedBody(t *testing.T) {
	fixture := newIngestFixture(t)
	router := newTestServer(t, fixture, 8)
	req := signedRequest("H5", strings.Repeat("x", 64), testNow)

	recorder := postWebhook(router, "/webhooks/acme/usr_1", req)
	if recorder.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", recorder.Code)
	}
	if fixture.ledger.Len() != 0 {
		t.Fatalf("expected oversized body to skip the ledger")
	}
}

func TestHandler_OnlyAcceptsPost(t *testing.T) {
	fixture := newIngestFixture(t)
	router := newTestServer(t, fixture, 0)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/webhooks/acme/usr_1", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", recorder.Code)
	}
}

func TestFlattenHeadersJoinsRepeatedValues(t *testing.T) {
	header := http.Header{}
	header.Add("Webhook-Signature", "v1,a")
	header.Add("Webhook-Signature", "v1,b")
	flat := flattenHeaders(header)
	if flat["webhook-signature"] != "v1,a v1,b" {
		t.Fatalf("unexpected flattened header %q", flat["webhook-signature"])
	}
}
