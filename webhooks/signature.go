package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
)

const (
	signatureVersion = "v1"
	DefaultTolerance = 300 * time.Second
)

type Verifier struct {
	Secrets       []SigningSecret
	Tolerance     time.Duration
	MaxSignatures int
	Now           func() time.Time
}

func NewVerifier(cfg core.SignatureConfig) (*Verifier, error) {
	secrets, err := SecretsFromConfig(cfg.Secrets)
	if err != nil {
		return nil, err
	}
	return &Verifier{
		Secrets:       secrets,
		Tolerance:     cfg.Tolerance(),
		MaxSignatures: cfg.MaxSignatures,
		Now:           now,
	}, nil
}

// Verify classifies an envelope. A timestamp outside the tolerance window
// is stale whether or not the signature matches; an unparseable timestamp is
// treated the same way.
func (v *Verifier) Verify(_ context.Context, env core.SignedEnvelope) (core.VerificationResult, error) {
	if v == nil {
		return "", fmt.Errorf("webhooks: verifier is required")
	}
	current := v.now()
	candidates := activeSecrets(v.Secrets, current)
	if len(candidates) == 0 {
		return "", fmt.Errorf("webhooks: no active signing secret configured")
	}

	signedAt, ok := parseTimestamp(env.Timestamp)
	if !ok || outsideTolerance(current, signedAt, v.tolerance()) {
		return core.VerificationStaleTimestamp, nil
	}

	provided := ParseSignatures(strings.Join(env.Signatures, " "), v.MaxSignatures)
	if len(provided) == 0 {
		return core.VerificationInvalidSignature, nil
	}
	content := signedContent(env.MessageID, strings.TrimSpace(env.Timestamp), env.Payload)
	for _, secret := range candidates {
		expected := computeSignature(secret.Key, content)
		for _, signature := range provided {
			if hmac.Equal(expected, signature) {
				return core.VerificationValid, nil
			}
		}
	}
	return core.VerificationInvalidSignature, nil
}

func (v *Verifier) tolerance() time.Duration {
	if v.Tolerance <= 0 {
		return DefaultTolerance
	}
	return v.Tolerance
}

func (v *Verifier) now() time.Time {
	if v.Now == nil {
		return now()
	}
	return v.Now().UTC()
}

// Sign returns the versioned signature header entry for a message.
func Sign(key []byte, messageID string, timestamp time.Time, payload []byte) string {
	content := signedContent(messageID, strconv.FormatInt(timestamp.Unix(), 10), payload)
	return signatureVersion + "," + base64.StdEncoding.EncodeToString(computeSignature(key, content))
}

// ParseSignatures decodes the v1 entries of a signature header. Entries with
// other versions or invalid encodings are skipped.
func ParseSignatures(header string, limit int) [][]byte {
	fields := strings.Fields(header)
	out := make([][]byte, 0, len(fields))
	for _, field := range fields {
		if limit > 0 && len(out) >= limit {
			break
		}
		version, encoded, found := strings.Cut(field, ",")
		if !found || version != signatureVersion {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(decoded) == 0 {
			continue
		}
		out = append(out, decoded)
	}
	return out
}

func signedContent(messageID string, timestamp string, payload []byte) []byte {
	prefix := strings.TrimSpace(messageID) + "." + timestamp + "."
	content := make([]byte, 0, len(prefix)+len(payload))
	content = append(content, prefix...)
	return append(content, payload...)
}

func computeSignature(key []byte, content []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(content)
	return mac.Sum(nil)
}

func parseTimestamp(value string) (time.Time, bool) {
	seconds, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || seconds <= 0 {
		return time.Time{}, false
	}
	return time.Unix(seconds, 0).UTC(), true
}

func outsideTolerance(current time.Time, signedAt time.Time, tolerance time.Duration) bool {
	delta := current.Sub(signedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta > tolerance
}

func now() time.Time {
	return time.Now().UTC()
}

var _ core.SignatureVerifier = (*Verifier)(nil)
