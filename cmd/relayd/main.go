// Command relayd runs the webhook relay as an HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	relay "github.com/goliatone/go-webhook-relay"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/gorilla/mux"
)

func main() {
	configPath := flag.String("config", os.Getenv("RELAYD_CONFIG"), "path to the relayd YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "relayd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadFileConfig(configPath)
	if err != nil {
		return err
	}
	logger := newConsoleLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Warn("relayd: closing stores failed", "error", err.Error())
		}
	}()

	deliveryPipeline, closePipeline, err := buildPipeline(cfg.Pipeline)
	if err != nil {
		return err
	}
	defer func() {
		if err := closePipeline(); err != nil {
			logger.Warn("relayd: closing pipeline failed", "error", err.Error())
		}
	}()

	svc, err := relay.New(relay.Config{},
		relay.WithLogger(logger),
		relay.WithConfigProvider(core.NewCfgxConfigProvider(relayConfigLoader{values: cfg.Relay})),
		relay.WithLedger(stores.stores.Ledger),
		relay.WithAuditStore(stores.stores.Audit),
		relay.WithForwardingStore(stores.stores.Forwarding),
		relay.WithProjectionReader(stores.stores.Projections),
		relay.WithPipeline(deliveryPipeline),
	)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	svc.RegisterRoutes(router, cfg.RoutePath)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- svc.Run(ctx)
	}()

	serverDone := make(chan error, 1)
	go func() {
		logger.Info("relayd listening", "addr", cfg.Listen, "driver", cfg.driver(), "pipeline", cfg.Pipeline.Kind)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
			return
		}
		serverDone <- nil
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serverDone:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("relayd: http shutdown failed", "error", err.Error())
	}
	if err := <-engineDone; err != nil {
		logger.Warn("relayd: forwarding engine stopped with error", "error", err.Error())
	}
	logger.Info("relayd stopped")
	return serveErr
}
