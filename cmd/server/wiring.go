package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"sovren/internal/audit"
	opshandler "sovren/internal/ops/handler"
	"sovren/internal/ops/status"
	"sovren/internal/platform/config"
	"sovren/internal/platform/metrics"
	"sovren/internal/platform/mongo"
	"sovren/internal/platform/postgres"
	"sovren/internal/platform/redis"
	telhandler "sovren/internal/telephony/handler"
	"sovren/internal/telephony/service"
	"sovren/internal/telephony/store/cache"
	"sovren/internal/telephony/store/mapping"
	"sovren/internal/telephony/token"
	"sovren/pkg/platform/circuit"
)

const auditBufferSize = 256

// app holds the route groups and everything that needs closing on shutdown.
type app struct {
	ops       *opshandler.Handler
	telephony *telhandler.Handler
	closers   []func(ctx context.Context) error
	log       *slog.Logger
}

func (a *app) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
}

func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Metrics) (_ *app, err error) {
	a := &app{log: log}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	checker := status.NewChecker(
		status.WithTimeout(cfg.Status.ProbeTimeout),
		status.WithLogger(log),
		status.WithMetrics(m),
	)

	store, uow, err := buildMappingStore(ctx, a, cfg, checker)
	if err != nil {
		return nil, err
	}

	store, err = withCache(ctx, a, cfg, log, m, store, checker)
	if err != nil {
		return nil, err
	}

	mongoClient, err := mongo.New(ctx, cfg.Mongo)
	if err != nil {
		return nil, err
	}
	if mongoClient != nil {
		a.onClose(mongoClient.Close)
		checker.Register("mongo", mongoClient.Health)
	}

	probeClient := &http.Client{Timeout: cfg.Status.ProbeTimeout}
	for name, url := range cfg.Status.HTTPProbes {
		checker.Register(name, status.HTTPCheck(probeClient, url))
	}

	publisher, err := buildPublisher(ctx, a, cfg, log, m, checker)
	if err != nil {
		return nil, err
	}

	signer := token.NewSigner(cfg.Token.Secret, cfg.Token.Algorithm, cfg.Token.TTL(), cfg.Token.Issuer)
	if err := signer.Err(); err != nil {
		// Resolve reports this per request as a signing failure.
		log.Warn("token signer misconfigured", "algorithm", cfg.Token.Algorithm, "error", err)
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithAuditPublisher(publisher),
	}
	if uow != nil {
		opts = append(opts, service.WithUnitOfWork(uow))
	}

	resolver, err := service.NewResolver(store, signer, opts...)
	if err != nil {
		return nil, err
	}
	admin, err := service.NewAdmin(store, opts...)
	if err != nil {
		return nil, err
	}
	if !cfg.Admin.Enabled() {
		log.Info("admin endpoints disabled: ADMIN_TOKEN not set")
	}

	a.ops = opshandler.New(m, checker)
	a.telephony = telhandler.New(resolver, admin, cfg.Admin.Token, log)
	log.Info("dependencies ready", "status_probes", checker.Names())
	return a, nil
}

// buildMappingStore returns the repository and, for Postgres, the unit of work
// that scopes mutations to one transaction.
func buildMappingStore(ctx context.Context, a *app, cfg config.Config, checker *status.Checker) (service.MappingStore, service.UnitOfWork, error) {
	if cfg.Database.Store == "memory" {
		a.log.Warn("using in-memory mapping store; changes are lost on restart")
		return mapping.NewInMemoryWith(mapping.FounderSeed()...), nil, nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	a.onClose(func(context.Context) error { return db.Close() })
	checker.Register("postgres", func(ctx context.Context) error {
		return postgres.Health(ctx, db)
	})
	return mapping.NewPostgres(db), postgres.NewUnitOfWork(db), nil
}

// withCache wraps store in the Redis read-through cache when MAPPING_CACHE_TTL
// is set. Redis backing only /status is dialled lazily so an outage shows up
// there instead of blocking startup.
func withCache(ctx context.Context, a *app, cfg config.Config, log *slog.Logger, m *metrics.Metrics, store service.MappingStore, checker *status.Checker) (service.MappingStore, error) {
	var (
		client *redis.Client
		err    error
	)
	if cfg.Redis.MappingCacheTTL > 0 {
		client, err = redis.New(ctx, cfg.Redis)
	} else {
		client, err = redis.Dial(cfg.Redis)
	}
	if err != nil {
		return nil, err
	}
	if client == nil {
		return store, nil
	}
	a.onClose(func(context.Context) error { return client.Close() })
	checker.Register("redis", client.Health)

	if cfg.Redis.MappingCacheTTL <= 0 {
		return store, nil
	}
	log.Info("mapping cache enabled", "ttl", cfg.Redis.MappingCacheTTL)
	return cache.New(store, client, cfg.Redis.MappingCacheTTL,
		cache.WithLogger(log),
		cache.WithMetrics(m),
		cache.WithBreaker(circuit.New("mapping-cache")),
	), nil
}

// buildPublisher sends mapping change events to Kafka when brokers are
// configured and to the log otherwise. Delivery is asynchronous either way.
func buildPublisher(ctx context.Context, a *app, cfg config.Config, log *slog.Logger, m *metrics.Metrics, checker *status.Checker) (*audit.Publisher, error) {
	var sink audit.Store = audit.NewLogStore(log)
	if cfg.Kafka.Enabled() {
		ks, err := audit.NewKafkaStore(ctx, cfg.Kafka.Brokers, cfg.Kafka.MappingTopic)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		a.onClose(func(context.Context) error { ks.Close(); return nil })
		checker.Register("kafka", ks.Ping)
		sink = ks
	}

	publisher := audit.NewPublisher(sink,
		audit.WithAsyncBuffer(auditBufferSize),
		audit.WithPublisherLogger(log),
		audit.WithPublisherMetrics(m),
	)
	a.onClose(publisher.Close)
	return publisher, nil
}
