package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	auditmetrics "crm/internal/audit/metrics"
	"crm/internal/audit/outbox"
	auditservice "crm/internal/audit/service"
	auditmemory "crm/internal/audit/store/memory"
	auditpostgres "crm/internal/audit/store/postgres"
	dossiermetrics "crm/internal/dossier/metrics"
	dossierservice "crm/internal/dossier/service"
	dossierstore "crm/internal/dossier/store"
	"crm/internal/platform/config"
	"crm/internal/platform/postgres"
	"crm/internal/platform/redis"
	ratelimitmetrics "crm/internal/ratelimit/metrics"
	ratelimitmw "crm/internal/ratelimit/middleware"
	ratelimitservice "crm/internal/ratelimit/service"
	"crm/internal/ratelimit/store/window"
	httptransport "crm/internal/transport/http"
	"crm/pkg/platform/memtx"
	txcontext "crm/pkg/platform/tx"
)

type app struct {
	backend   string
	dossiers  *dossierservice.Service
	audit     *auditservice.Recorder
	relay     *outbox.Relay
	rateLimit func(http.Handler) http.Handler
	health    map[string]httptransport.HealthCheck
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp selects the storage backend: PostgreSQL when DATABASE_URL is set,
// otherwise the in-memory stores sharing one unit-of-work lock.
func buildApp(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{health: map[string]httptransport.HealthCheck{}}

	var (
		dossiers   dossierservice.Store
		auditStore auditservice.Store
		transactor txcontext.Transactor
	)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
		a.backend = "postgres"
		a.health["database"] = db.PingContext

		var auditOpts []auditpostgres.Option
		if len(cfg.Kafka.Brokers) > 0 {
			auditOpts = append(auditOpts, auditpostgres.WithOutbox())
			if err := a.buildRelay(ctx, cfg.Kafka, db, log, reg); err != nil {
				a.Close()
				return nil, err
			}
		}
		dossiers = dossierstore.NewPostgres(db)
		auditStore = auditpostgres.New(db, auditOpts...)
		transactor = txcontext.NewPostgres(db, cfg.TxTimeout)
	} else {
		if len(cfg.Kafka.Brokers) > 0 {
			log.Warn("KAFKA_BROKERS ignored: the audit outbox needs DATABASE_URL")
		}
		lock := memtx.NewLock()
		a.backend = "memory"
		dossiers = dossierstore.NewInMemory(lock)
		auditStore = auditmemory.NewInMemoryStore(lock)
		transactor = memtx.NewTransactor(lock, cfg.TxTimeout)
	}

	a.audit = auditservice.New(auditStore,
		auditservice.WithLogger(log),
		auditservice.WithMetrics(auditmetrics.New(reg)),
	)
	a.dossiers = dossierservice.New(dossiers, a.audit, transactor,
		dossierservice.WithLogger(log),
		dossierservice.WithMetrics(dossiermetrics.New(reg)),
	)

	if err := a.buildRateLimit(ctx, cfg, log, reg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildRelay(ctx context.Context, cfg config.KafkaConfig, db *sql.DB, log *slog.Logger, reg prometheus.Registerer) error {
	client, err := outbox.NewClient(cfg.Brokers, cfg.AuditTopic)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)
	if err := outbox.EnsureTopic(ctx, client, cfg.AuditTopic, 3, 1); err != nil {
		return err
	}
	a.health["kafka"] = func(ctx context.Context) error { return pingKafka(ctx, client) }
	a.relay = outbox.New(db, client, cfg.AuditTopic,
		outbox.WithLogger(log),
		outbox.WithMetrics(outbox.NewMetrics(reg)),
		outbox.WithBatchSize(cfg.RelayBatch),
		outbox.WithInterval(cfg.RelayInterval),
	)
	return nil
}

func pingKafka(ctx context.Context, client *kgo.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(ctx)
}

// buildRateLimit uses Redis when REDIS_URL is set, with an in-memory fallback
// behind a circuit breaker. A zero quota disables limiting.
func (a *app) buildRateLimit(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer) error {
	m := ratelimitmetrics.New(reg)
	local := window.NewInMemoryStore()

	var limiter *ratelimitservice.Limiter
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("rate limit store: %w", err)
	}
	if client != nil {
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.health["redis"] = client.Health
		limiter = ratelimitservice.New(window.NewRedisStore(client.Client), cfg.RateLimit.PerMinute,
			ratelimitservice.WithFallback(local),
			ratelimitservice.WithLogger(log),
			ratelimitservice.WithMetrics(m),
		)
	} else {
		limiter = ratelimitservice.New(local, cfg.RateLimit.PerMinute,
			ratelimitservice.WithLogger(log),
			ratelimitservice.WithMetrics(m),
		)
	}

	mw := ratelimitmw.New(limiter, log, ratelimitmw.WithDisabled(cfg.RateLimit.PerMinute == 0))
	a.rateLimit = mw.RateLimitOrg
	return nil
}
