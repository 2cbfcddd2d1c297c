package relay

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-relay/audit"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/goliatone/go-webhook-relay/forwarding"
	"github.com/goliatone/go-webhook-relay/inbound"
	"github.com/goliatone/go-webhook-relay/store/memory"
	"github.com/goliatone/go-webhook-relay/webhooks"
	"github.com/gorilla/mux"
)

type Config = core.Config

type IngestRequest = core.IngestRequest
type IngestResult = core.IngestResult

func DefaultConfig() Config {
	return core.DefaultConfig()
}

type builder struct {
	runtimeConfig     Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metricsRecorder   core.MetricsRecorder
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	persistenceClient any
	repositoryFactory core.StoreProvider
	stores            core.StoreSet
	pipeline          core.DeliveryPipeline
	scopeResolver     core.ScopeResolver
	clock             func() time.Time
}

type Option func(*builder)

func WithLogger(logger core.Logger) Option {
	return func(b *builder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *builder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *builder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *builder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *builder) {
		b.optionsResolver = resolver
	}
}

// WithPersistenceClient is handed to a RepositoryStoreFactory's BuildStores.
func WithPersistenceClient(client any) Option {
	return func(b *builder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory core.StoreProvider) Option {
	return func(b *builder) {
		b.repositoryFactory = factory
	}
}

func WithLedger(ledger core.IdempotencyLedger) Option {
	return func(b *builder) {
		b.stores.Ledger = ledger
	}
}

func WithAuditStore(store core.AuditStore) Option {
	return func(b *builder) {
		b.stores.Audit = store
	}
}

func WithForwardingStore(store core.ForwardingStore) Option {
	return func(b *builder) {
		b.stores.Forwarding = store
	}
}

func WithProjectionReader(reader core.ProjectionReader) Option {
	return func(b *builder) {
		b.stores.Projections = reader
	}
}

func WithPipeline(pipeline core.DeliveryPipeline) Option {
	return func(b *builder) {
		b.pipeline = pipeline
	}
}

func WithScopeResolver(resolver core.ScopeResolver) Option {
	return func(b *builder) {
		b.scopeResolver = resolver
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *builder) {
		b.clock = now
	}
}

// Service is an assembled relay: verifier, idempotency ledger, audit
// recorder, forwarding engine and ingestion controller over one store set.
type Service struct {
	config     Config
	logger     core.Logger
	observer   *core.Observer
	stores     core.StoreSet
	verifier   *webhooks.Verifier
	recorder   *audit.Recorder
	engine     *forwarding.Engine
	controller *inbound.Controller
	handler    *inbound.Handler
	facade     *Facade
}

func New(cfg Config, opts ...Option) (*Service, error) {
	b := builder{
		runtimeConfig:   cfg,
		metricsRecorder: core.NopMetricsRecorder{},
		configProvider:  core.NewCfgxConfigProvider(nil),
		optionsResolver: core.GoOptionsResolver{},
		scopeResolver:   core.DefaultScopeKey,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&b)
	}

	provider, logger := glog.Resolve("relay", b.loggerProvider, b.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("relay"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if b.metricsRecorder == nil {
		b.metricsRecorder = core.NopMetricsRecorder{}
	}
	if b.configProvider == nil {
		b.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if b.optionsResolver == nil {
		b.optionsResolver = core.GoOptionsResolver{}
	}
	if b.scopeResolver == nil {
		b.scopeResolver = core.DefaultScopeKey
	}
	if b.pipeline == nil {
		return nil, core.BadInputError("relay: delivery pipeline is required", nil)
	}

	defaults := core.DefaultConfig()
	loaded, err := b.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, core.MapError(err)
	}
	finalConfig, err := b.optionsResolver.Resolve(defaults, loaded, b.runtimeConfig)
	if err != nil {
		return nil, core.MapError(err)
	}

	stores, err := b.resolveStores()
	if err != nil {
		return nil, core.MapError(err)
	}

	observer := core.NewObserver(logger, b.metricsRecorder)
	if finalConfig.ServiceName != "" {
		observer.Prefix = finalConfig.ServiceName
	}

	verifier, err := webhooks.NewVerifier(finalConfig.Signature)
	if err != nil {
		return nil, core.MapError(err)
	}
	recorder := audit.NewRecorder(stores.Audit)

	engineOpts := []forwarding.Option{forwarding.WithObserver(observer)}
	if b.clock != nil {
		verifier.Now = b.clock
		recorder.Now = b.clock
		engineOpts = append(engineOpts, forwarding.WithClock(b.clock))
	}
	engine, err := forwarding.NewEngine(stores.Forwarding, stores.Ledger, b.pipeline, finalConfig.Forwarding, engineOpts...)
	if err != nil {
		return nil, core.MapError(err)
	}

	controller := inbound.NewController(verifier, stores.Ledger, recorder, engine)
	controller.ScopeKey = b.scopeResolver
	controller.AuditAction = finalConfig.Ingest.AuditAction
	controller.RejectAuditAction = finalConfig.Ingest.RejectAuditAction
	controller.Observer = observer
	if b.clock != nil {
		controller.Now = b.clock
	}

	svc := &Service{
		config:     finalConfig,
		logger:     logger,
		observer:   observer,
		stores:     stores,
		verifier:   verifier,
		recorder:   recorder,
		engine:     engine,
		controller: controller,
		handler:    inbound.NewHandler(controller, finalConfig.Ingest.MaxBodyBytes),
	}
	svc.facade, err = NewFacade(engine, stores)
	if err != nil {
		return nil, core.MapError(err)
	}
	return svc, nil
}

// resolveStores fills the store set from explicit options first, then from
// the repository factory, then from in-memory stores for anything left.
func (b *builder) resolveStores() (core.StoreSet, error) {
	stores := b.stores
	if !stores.Complete() && b.repositoryFactory != nil {
		if factory, ok := b.repositoryFactory.(core.RepositoryStoreFactory); ok && b.persistenceClient != nil {
			if err := factory.BuildStores(b.persistenceClient); err != nil {
				return core.StoreSet{}, err
			}
		}
		built := b.repositoryFactory.Stores()
		if stores.Ledger == nil {
			stores.Ledger = built.Ledger
		}
		if stores.Audit == nil {
			stores.Audit = built.Audit
		}
		if stores.Forwarding == nil {
			stores.Forwarding = built.Forwarding
		}
		if stores.Projections == nil {
			stores.Projections = built.Projections
		}
	}
	if !stores.Complete() {
		fallback := memory.NewStores()
		if stores.Ledger == nil {
			stores.Ledger = fallback.Ledger
		}
		if stores.Audit == nil {
			stores.Audit = fallback.Audit
		}
		if stores.Forwarding == nil {
			stores.Forwarding = fallback.Forwarding
			if stores.Projections == nil {
				stores.Projections = fallback.Projections
			}
		}
		if stores.Projections == nil {
			reader, ok := stores.Forwarding.(core.ProjectionReader)
			if !ok {
				return core.StoreSet{}, core.BadInputError("relay: projection reader is required for a custom forwarding store", nil)
			}
			stores.Projections = reader
		}
	}
	return stores, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() core.Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) Stores() core.StoreSet {
	if s == nil {
		return core.StoreSet{}
	}
	return s.stores
}

func (s *Service) Engine() *forwarding.Engine {
	if s == nil {
		return nil
	}
	return s.engine
}

// Ingest runs one inbound webhook through verification, claim, audit and
// forwarding scheduling.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if s == nil || s.controller == nil {
		return IngestResult{}, core.MapError(errServiceNotConfigured)
	}
	return s.controller.Ingest(ctx, req)
}

func (s *Service) Handler() http.Handler {
	if s == nil {
		return nil
	}
	return s.handler
}

// RegisterRoutes mounts the webhook endpoint at path, or at
// inbound.DefaultRoutePath when path is empty.
func (s *Service) RegisterRoutes(router *mux.Router, path string) *mux.Route {
	return inbound.RegisterRoutes(router, s.Handler(), path)
}

// Run drives the forwarding workers and recovery sweep until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if s == nil || s.engine == nil {
		return core.MapError(errServiceNotConfigured)
	}
	s.observer.Info(ctx, "relay forwarding started", map[string]any{
		"workers": s.config.Forwarding.Workers,
	})
	err := s.engine.Run(ctx)
	s.observer.Info(ctx, "relay forwarding stopped", nil)
	return err
}

func (s *Service) Commands() Commands {
	return s.Facade().Commands()
}

func (s *Service) Queries() Queries {
	return s.Facade().Queries()
}

func (s *Service) Facade() *Facade {
	if s == nil {
		return nil
	}
	return s.facade
}
