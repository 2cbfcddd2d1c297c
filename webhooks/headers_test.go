package webhooks

import (
	"testing"
)

func TestEnvelopeFromHeaders_CaseInsensitiveWithSvixFallback(t *testing.T) {
	body := []byte("{}")
	env, err := EnvelopeFromHeaders(map[string]string{
		"Webhook-Id":        "evt_1",
		"WEBHOOK-TIMESTAMP": "1700000000",
		"webhook-signature": "v1,abc v1,def",
	}, body)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.MessageID != "evt_1" || env.Timestamp != "1700000000" {
		t.Fatalf("unexpected envelope %#v", env)
	}
	if len(env.Signatures) != 2 {
		t.Fatalf("expected 2 signature entries, got %#v", env.Signatures)
	}

	env, err = EnvelopeFromHeaders(map[string]string{
		"Svix-Id":        "msg_2",
		"Svix-Timestamp": "1700000001",
	}, body)
	if err != nil {
		t.Fatalf("svix envelope: %v", err)
	}
	if env.MessageID != "msg_2" || env.Timestamp != "1700000001" || len(env.Signatures) != 0 {
		t.Fatalf("unexpected svix envelope %#v", env)
	}
}

func TestEnvelopeFromHeaders_RequiresMessageID(t *testing.T) {
	if _, err := EnvelopeFromHeaders(map[string]string{"webhook-timestamp": "1"}, nil); err == nil {
		t.Fatalf("expected missing id error")
	}
}
