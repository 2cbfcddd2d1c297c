package webhooks

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
)

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialRetryPolicy grows the delay by Multiplier per attempt up to Max.
// Jitter removes up to that fraction of the computed delay so concurrent
// retries spread out without ever exceeding Max.
type ExponentialRetryPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
	Rand       func() float64
}

func RetryPolicyFromConfig(cfg core.ForwardingConfig) ExponentialRetryPolicy {
	return ExponentialRetryPolicy{
		Initial:    cfg.InitialBackoff(),
		Max:        cfg.MaxBackoff(),
		Multiplier: cfg.Multiplier,
		Jitter:     cfg.Jitter,
	}
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 5 * time.Minute
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(maximum) || math.IsInf(delay, 0) {
		delay = float64(maximum)
	}

	jitter := p.Jitter
	if jitter > 0 {
		if jitter > 1 {
			jitter = 1
		}
		random := p.Rand
		if random == nil {
			random = rand.Float64
		}
		delay -= delay * jitter * random()
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
