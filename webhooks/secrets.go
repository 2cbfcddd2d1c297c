package webhooks

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
)

const secretPrefix = "whsec_"

// RotationWindow gates when a signing secret is a verification candidate.
type RotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w RotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}

type SigningSecret struct {
	ID     string
	Key    []byte
	Window RotationWindow
}

// DecodeSecret returns the HMAC key for a configured secret. Values with the
// whsec_ prefix carry a base64 key; anything else is used as raw bytes.
func DecodeSecret(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("webhooks: secret is required")
	}
	if !strings.HasPrefix(value, secretPrefix) {
		return []byte(value), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("webhooks: decode whsec secret: %w", err)
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("webhooks: decoded secret is empty")
	}
	return decoded, nil
}

func SecretsFromConfig(entries []core.SecretConfig) ([]SigningSecret, error) {
	secrets := make([]SigningSecret, 0, len(entries))
	for index, entry := range entries {
		key, err := DecodeSecret(entry.Secret)
		if err != nil {
			return nil, fmt.Errorf("webhooks: secret %d: %w", index, err)
		}
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			id = fmt.Sprintf("secret_%d", index)
		}
		secret := SigningSecret{ID: id, Key: key}
		if entry.NotBefore != nil {
			secret.Window.NotBefore = entry.NotBefore.UTC()
		}
		if entry.NotAfter != nil {
			secret.Window.NotAfter = entry.NotAfter.UTC()
		}
		secrets = append(secrets, secret)
	}
	return secrets, nil
}

func activeSecrets(secrets []SigningSecret, at time.Time) []SigningSecret {
	active := make([]SigningSecret, 0, len(secrets))
	for _, secret := range secrets {
		if len(secret.Key) == 0 || !secret.Window.Allows(at) {
			continue
		}
		active = append(active, secret)
	}
	return active
}
