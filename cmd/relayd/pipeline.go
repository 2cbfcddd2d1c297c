package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
	"github.com/goliatone/go-webhook-relay/pipeline"
	"github.com/goliatone/go-webhook-relay/webhooks"
)

// buildPipeline returns the configured delivery pipeline and a closer for
// any connection it holds.
func buildPipeline(cfg pipelineConfig) (core.DeliveryPipeline, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case pipeline.KindHTTP:
		var key []byte
		if strings.TrimSpace(cfg.SigningSecret) != "" {
			decoded, err := webhooks.DecodeSecret(cfg.SigningSecret)
			if err != nil {
				return nil, nil, fmt.Errorf("relayd: pipeline.signing_secret: %w", err)
			}
			key = decoded
		}
		timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpPipeline, err := pipeline.NewHTTPPipeline(cfg.URL, key, &http.Client{Timeout: timeout})
		if err != nil {
			return nil, nil, err
		}
		return httpPipeline, noop, nil
	case pipeline.KindKafka:
		writer := pipeline.NewKafkaWriter(cfg.Brokers, cfg.Topic)
		kafkaPipeline, err := pipeline.NewKafkaPipeline(writer)
		if err != nil {
			return nil, nil, err
		}
		return kafkaPipeline, kafkaPipeline.Close, nil
	default:
		return nil, nil, fmt.Errorf("relayd: unsupported pipeline kind %q", cfg.Kind)
	}
}
