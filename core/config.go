package core

import (
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type SecretConfig struct {
	ID        string     `koanf:"id" mapstructure:"id"`
	Secret    string     `koanf:"secret" mapstructure:"secret"`
	NotBefore *time.Time `koanf:"not_before" mapstructure:"not_before"`
	NotAfter  *time.Time `koanf:"not_after" mapstructure:"not_after"`
}

type SignatureConfig struct {
	ToleranceSeconds int            `koanf:"tolerance_seconds" mapstructure:"tolerance_seconds"`
	MaxSignatures    int            `koanf:"max_signatures" mapstructure:"max_signatures"`
	Secrets          []SecretConfig `koanf:"secrets" mapstructure:"secrets"`
}

func (c SignatureConfig) Tolerance() time.Duration {
	return time.Duration(c.ToleranceSeconds) * time.Second
}

type ForwardingConfig struct {
	MaxAttempts      int     `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `koanf:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int     `koanf:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `koanf:"multiplier" mapstructure:"multiplier"`
	Jitter           float64 `koanf:"jitter" mapstructure:"jitter"`
	AttemptTimeoutMS int     `koanf:"attempt_timeout_ms" mapstructure:"attempt_timeout_ms"`
	LeaseMS          int     `koanf:"lease_ms" mapstructure:"lease_ms"`
	Workers          int     `koanf:"workers" mapstructure:"workers"`
	QueueSize        int     `koanf:"queue_size" mapstructure:"queue_size"`
	SweepIntervalMS  int     `koanf:"sweep_interval_ms" mapstructure:"sweep_interval_ms"`
	SweepBatchSize   int     `koanf:"sweep_batch_size" mapstructure:"sweep_batch_size"`
}

func (c ForwardingConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

func (c ForwardingConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}

func (c ForwardingConfig) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutMS) * time.Millisecond
}

func (c ForwardingConfig) Lease() time.Duration {
	return time.Duration(c.LeaseMS) * time.Millisecond
}

func (c ForwardingConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

type IngestConfig struct {
	MaxBodyBytes      int64  `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
	AuditAction       string `koanf:"audit_action" mapstructure:"audit_action"`
	RejectAuditAction string `koanf:"reject_audit_action" mapstructure:"reject_audit_action"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	Signature   SignatureConfig  `koanf:"signature" mapstructure:"signature"`
	Forwarding  ForwardingConfig `koanf:"forwarding" mapstructure:"forwarding"`
	Ingest      IngestConfig     `koanf:"ingest" mapstructure:"ingest"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "relay",
		Signature: SignatureConfig{
			ToleranceSeconds: 300,
			MaxSignatures:    8,
		},
		Forwarding: ForwardingConfig{
			MaxAttempts:      8,
			InitialBackoffMS: 1000,
			MaxBackoffMS:     300000,
			Multiplier:       2,
			Jitter:           0.2,
			AttemptTimeoutMS: 10000,
			LeaseMS:          60000,
			Workers:          4,
			QueueSize:        256,
			SweepIntervalMS:  15000,
			SweepBatchSize:   100,
		},
		Ingest: IngestConfig{
			MaxBodyBytes:      1 << 20,
			AuditAction:       "upsert",
			RejectAuditAction: "reject",
		},
	}
}

func (c Config) Validate() error {
	var fields []goerrors.FieldError
	add := func(field, message string) {
		fields = append(fields, goerrors.FieldError{Field: field, Message: message})
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		add("service_name", "is required")
	}
	if c.Signature.ToleranceSeconds <= 0 {
		add("signature.tolerance_seconds", "must be positive")
	}
	if c.Signature.MaxSignatures <= 0 {
		add("signature.max_signatures", "must be positive")
	}
	for _, secret := range c.Signature.Secrets {
		if strings.TrimSpace(secret.Secret) == "" {
			add("signature.secrets", "secret value is required")
			break
		}
		if secret.NotBefore != nil && secret.NotAfter != nil && secret.NotAfter.Before(*secret.NotBefore) {
			add("signature.secrets", "not_after must not precede not_before")
			break
		}
	}
	if c.Forwarding.MaxAttempts <= 0 {
		add("forwarding.max_attempts", "must be positive")
	}
	if c.Forwarding.InitialBackoffMS <= 0 {
		add("forwarding.initial_backoff_ms", "must be positive")
	}
	if c.Forwarding.MaxBackoffMS < c.Forwarding.InitialBackoffMS {
		add("forwarding.max_backoff_ms", "must be at least initial_backoff_ms")
	}
	if c.Forwarding.Multiplier < 1 {
		add("forwarding.multiplier", "must be at least 1")
	}
	if c.Forwarding.Jitter < 0 || c.Forwarding.Jitter > 1 {
		add("forwarding.jitter", "must be between 0 and 1")
	}
	if c.Forwarding.AttemptTimeoutMS <= 0 {
		add("forwarding.attempt_timeout_ms", "must be positive")
	}
	if c.Forwarding.LeaseMS <= c.Forwarding.AttemptTimeoutMS {
		add("forwarding.lease_ms", "must exceed attempt_timeout_ms")
	}
	if c.Forwarding.Workers <= 0 {
		add("forwarding.workers", "must be positive")
	}
	if c.Ingest.MaxBodyBytes <= 0 {
		add("ingest.max_body_bytes", "must be positive")
	}
	if len(fields) > 0 {
		return goerrors.NewValidation("invalid relay configuration", fields...)
	}
	return nil
}
