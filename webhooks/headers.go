package webhooks

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-webhook-relay/core"
)

const (
	HeaderMessageID = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"
)

var (
	messageIDHeaders = []string{HeaderMessageID, "svix-id"}
	timestampHeaders = []string{HeaderTimestamp, "svix-timestamp"}
	signatureHeaders = []string{HeaderSignature, "svix-signature"}
)

// EnvelopeFromHeaders extracts the signed envelope from request headers.
// Only a missing message id is an error: without it there is nothing to
// claim. Missing timestamps and signatures are left to the verifier.
func EnvelopeFromHeaders(headers map[string]string, body []byte) (core.SignedEnvelope, error) {
	messageID := firstHeader(headers, messageIDHeaders...)
	if messageID == "" {
		return core.SignedEnvelope{}, fmt.Errorf("webhooks: %s header is required", HeaderMessageID)
	}
	env := core.SignedEnvelope{
		MessageID: messageID,
		Timestamp: firstHeader(headers, timestampHeaders...),
		Payload:   body,
	}
	if signatures := firstHeader(headers, signatureHeaders...); signatures != "" {
		env.Signatures = strings.Fields(signatures)
	}
	return env, nil
}

// SignedHeaders builds the outbound header set for a signed message.
func SignedHeaders(messageID string, timestamp string, signatures ...string) map[string]string {
	return map[string]string{
		HeaderMessageID: messageID,
		HeaderTimestamp: timestamp,
		HeaderSignature: strings.Join(signatures, " "),
	}
}

func firstHeader(headers map[string]string, keys ...string) string {
	for _, key := range keys {
		if value := headerValue(headers, key); value != "" {
			return value
		}
	}
	return ""
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
