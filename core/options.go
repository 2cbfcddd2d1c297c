package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges defaults, loaded config and runtime overrides in
// that order of precedence.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	signature := map[string]any{}
	putInt(signature, "tolerance_seconds", cfg.Signature.ToleranceSeconds, includeZero)
	putInt(signature, "max_signatures", cfg.Signature.MaxSignatures, includeZero)
	if includeZero || len(cfg.Signature.Secrets) > 0 {
		secrets := make([]map[string]any, 0, len(cfg.Signature.Secrets))
		for _, secret := range cfg.Signature.Secrets {
			entry := map[string]any{
				"id":     secret.ID,
				"secret": secret.Secret,
			}
			if secret.NotBefore != nil {
				entry["not_before"] = *secret.NotBefore
			}
			if secret.NotAfter != nil {
				entry["not_after"] = *secret.NotAfter
			}
			secrets = append(secrets, entry)
		}
		signature["secrets"] = secrets
	}
	if len(signature) > 0 {
		layer["signature"] = signature
	}

	forwarding := map[string]any{}
	putInt(forwarding, "max_attempts", cfg.Forwarding.MaxAttempts, includeZero)
	putInt(forwarding, "initial_backoff_ms", cfg.Forwarding.InitialBackoffMS, includeZero)
	putInt(forwarding, "max_backoff_ms", cfg.Forwarding.MaxBackoffMS, includeZero)
	putInt(forwarding, "attempt_timeout_ms", cfg.Forwarding.AttemptTimeoutMS, includeZero)
	putInt(forwarding, "lease_ms", cfg.Forwarding.LeaseMS, includeZero)
	putInt(forwarding, "workers", cfg.Forwarding.Workers, includeZero)
	putInt(forwarding, "queue_size", cfg.Forwarding.QueueSize, includeZero)
	putInt(forwarding, "sweep_interval_ms", cfg.Forwarding.SweepIntervalMS, includeZero)
	putInt(forwarding, "sweep_batch_size", cfg.Forwarding.SweepBatchSize, includeZero)
	if includeZero || cfg.Forwarding.Multiplier != 0 {
		forwarding["multiplier"] = cfg.Forwarding.Multiplier
	}
	if includeZero || cfg.Forwarding.Jitter != 0 {
		forwarding["jitter"] = cfg.Forwarding.Jitter
	}
	if len(forwarding) > 0 {
		layer["forwarding"] = forwarding
	}

	ingest := map[string]any{}
	if includeZero || cfg.Ingest.MaxBodyBytes != 0 {
		ingest["max_body_bytes"] = cfg.Ingest.MaxBodyBytes
	}
	if includeZero || strings.TrimSpace(cfg.Ingest.AuditAction) != "" {
		ingest["audit_action"] = cfg.Ingest.AuditAction
	}
	if includeZero || strings.TrimSpace(cfg.Ingest.RejectAuditAction) != "" {
		ingest["reject_audit_action"] = cfg.Ingest.RejectAuditAction
	}
	if len(ingest) > 0 {
		layer["ingest"] = ingest
	}
	return layer
}

func putInt(target map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		target[key] = value
	}
}
