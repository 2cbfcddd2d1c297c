package core

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate: %v", err)
	}
	if cfg.Signature.ToleranceSeconds != 300 {
		t.Fatalf("expected 300s tolerance, got %d", cfg.Signature.ToleranceSeconds)
	}
	if cfg.Forwarding.MaxAttempts <= 0 || cfg.Forwarding.MaxBackoff() < cfg.Forwarding.InitialBackoff() {
		t.Fatalf("unexpected forwarding defaults %#v", cfg.Forwarding)
	}
}

func TestConfigValidate_ReportsFieldErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Forwarding.MaxAttempts = 0
	cfg.Forwarding.Jitter = 2
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors validation error, got %T", err)
	}
	if richErr.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", richErr.Category)
	}
}

func TestCfgxConfigProvider_LoadsRawValues(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "relay-test",
		"signature": map[string]any{
			"tolerance_seconds": 60,
		},
		"forwarding": map[string]any{
			"max_attempts": 3,
		},
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "relay-test" {
		t.Fatalf("expected service name override, got %q", cfg.ServiceName)
	}
	if cfg.Signature.ToleranceSeconds != 60 {
		t.Fatalf("expected tolerance 60, got %d", cfg.Signature.ToleranceSeconds)
	}
	if cfg.Forwarding.MaxAttempts != 3 {
		t.Fatalf("expected max attempts 3, got %d", cfg.Forwarding.MaxAttempts)
	}
	if cfg.Forwarding.Workers != DefaultConfig().Forwarding.Workers {
		t.Fatalf("expected default workers to survive, got %d", cfg.Forwarding.Workers)
	}
}

func TestGoOptionsResolver_RuntimeOverridesLoaded(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{
		ServiceName: "from-file",
		Forwarding:  ForwardingConfig{MaxAttempts: 5, Workers: 2},
	}
	runtime := Config{
		Forwarding: ForwardingConfig{MaxAttempts: 2},
		Signature: SignatureConfig{
			Secrets: []SecretConfig{{ID: "k1", Secret: "whsec_c2VjcmV0"}},
		},
	}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ServiceName != "from-file" {
		t.Fatalf("expected loaded service name, got %q", resolved.ServiceName)
	}
	if resolved.Forwarding.MaxAttempts != 2 {
		t.Fatalf("expected runtime max attempts, got %d", resolved.Forwarding.MaxAttempts)
	}
	if resolved.Forwarding.Workers != 2 {
		t.Fatalf("expected loaded workers, got %d", resolved.Forwarding.Workers)
	}
	if resolved.Signature.ToleranceSeconds != 300 {
		t.Fatalf("expected default tolerance, got %d", resolved.Signature.ToleranceSeconds)
	}
	if len(resolved.Signature.Secrets) != 1 || resolved.Signature.Secrets[0].ID != "k1" {
		t.Fatalf("expected runtime secrets, got %#v", resolved.Signature.Secrets)
	}
}
