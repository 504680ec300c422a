package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pseudonym-gateway/internal/exchange"
	"pseudonym-gateway/internal/platform/config"
	"pseudonym-gateway/internal/platform/httpserver"
	"pseudonym-gateway/internal/platform/logger"
	"pseudonym-gateway/internal/platform/metrics"
	"pseudonym-gateway/internal/platform/middleware"
	redisclient "pseudonym-gateway/internal/platform/redis"
	"pseudonym-gateway/internal/resolution"
	"pseudonym-gateway/internal/store/postgres"
	studyservice "pseudonym-gateway/internal/study/service"
	studymemory "pseudonym-gateway/internal/study/store/memory"
	subjectservice "pseudonym-gateway/internal/subject/service"
	"pseudonym-gateway/internal/subject/store/index"
	subjectmemory "pseudonym-gateway/internal/subject/store/memory"
	httptransport "pseudonym-gateway/internal/transport/http"
	"pseudonym-gateway/pkg/platform/audit"
	"pseudonym-gateway/pkg/platform/audit/publisher"
	"pseudonym-gateway/pkg/platform/audit/publishers/kafka"
	auditpostgres "pseudonym-gateway/pkg/platform/audit/store/postgres"
	"pseudonym-gateway/pkg/platform/circuit"
)

const (
	shutdownTimeout  = 10 * time.Second
	auditBufferSize  = 1024
	auditTopicShards = 3
)

// main wires dependencies and owns the server lifecycle. Business logic lives
// in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	patients subjectservice.Store
	studies  studyservice.Store
	index    subjectservice.EnrollmentIndex
	db       *sql.DB
	redis    *redisclient.Client
	kafka    *kafka.Store
}

func (i *infra) close(log *slog.Logger) {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("database close failed", "error", err)
		}
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.DefaultRegisterer

	deps, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close(log)

	auditPublisher := publisher.NewPublisher(auditSink(deps, log),
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	defer auditPublisher.Close()

	exchangeOpts := []exchange.Option{
		exchange.WithLogger(log),
		exchange.WithMetrics(exchange.NewMetrics(reg)),
	}
	if cfg.Exchange.BreakerThreshold > 0 {
		exchangeOpts = append(exchangeOpts, exchange.WithBreaker(circuit.New("pseudonym-exchange",
			circuit.WithFailureThreshold(cfg.Exchange.BreakerThreshold),
			circuit.WithCooldown(cfg.Exchange.BreakerCooldown),
		)))
	}
	exchangeClient, err := exchange.New(cfg.Exchange, exchangeOpts...)
	if err != nil {
		return fmt.Errorf("exchange client: %w", err)
	}

	subjectMetrics := subjectservice.NewMetrics(reg)
	resolver, err := subjectservice.NewResolver(deps.patients,
		subjectservice.WithIndex(deps.index),
		subjectservice.WithResolverLogger(log),
		subjectservice.WithResolverMetrics(subjectMetrics),
	)
	if err != nil {
		return err
	}
	enroller, err := subjectservice.NewEnroller(deps.patients,
		subjectservice.WithEnrollmentIndex(deps.index),
		subjectservice.WithEnrollerLogger(log),
		subjectservice.WithEnrollerMetrics(subjectMetrics),
	)
	if err != nil {
		return err
	}
	aggregator, err := studyservice.NewAggregator(deps.studies,
		studyservice.WithConcurrency(cfg.Aggregate.Concurrency),
		studyservice.WithLogger(log),
		studyservice.WithMetrics(studyservice.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}
	registrar, err := studyservice.NewRegistrar(deps.studies, deps.patients)
	if err != nil {
		return err
	}

	pipeline, err := resolution.New(exchangeClient, resolver, aggregator,
		resolution.WithLogger(log),
		resolution.WithAuditPublisher(auditPublisher),
		resolution.WithMetrics(resolution.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}

	handlerOpts := []httptransport.Option{
		httptransport.WithMetrics(metrics.NewWithRegisterer(reg), metrics.Handler()),
		httptransport.WithRequestTimeout(cfg.Server.RequestTimeout),
		httptransport.WithCreateRoutes(cfg.Server.EnableCreateRoutes),
	}
	if cfg.Server.JWTSigningKey != "" {
		handlerOpts = append(handlerOpts, httptransport.WithJWTValidator(middleware.NewHS256Validator(cfg.Server.JWTSigningKey)))
	} else {
		log.Warn("JWT_SIGNING_KEY not set, FHIR routes are unauthenticated")
	}
	if deps.db != nil {
		handlerOpts = append(handlerOpts, httptransport.WithHealthCheck("postgres", sqlHealth{deps.db}))
	}
	if deps.redis != nil {
		handlerOpts = append(handlerOpts, httptransport.WithHealthCheck("redis", deps.redis))
	}
	if deps.kafka != nil {
		handlerOpts = append(handlerOpts, httptransport.WithHealthCheck("audit_kafka", deps.kafka))
	}

	handler, err := httptransport.New(httptransport.Services{
		Resolver:  pipeline,
		Patients:  resolver,
		Enroller:  enroller,
		Registrar: registrar,
	}, log, handlerOpts...)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(handler), log)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting pseudonym-gateway", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// connect selects the backing stores. Without DATABASE_URL everything is in
// memory. ENROLLMENT_INDEX opts in to an enrollment index.
func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	deps := &infra{}

	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		deps.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			deps.close(log)
			return nil, err
		}
		deps.patients = postgres.NewPatientStore(db, postgres.WithLogger(log))
		deps.studies = postgres.NewStudyStore(db, postgres.WithLogger(log))
		log.Info("using postgres stores")
	} else {
		deps.patients = subjectmemory.New()
		deps.studies = studymemory.New()
		log.Info("using in-memory stores")
	}

	switch cfg.Index.Mode {
	case config.IndexRedis:
		rc, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			deps.close(log)
			return nil, err
		}
		deps.redis = rc
		deps.index = index.NewRedis(rc.UniversalClient, index.WithReadyTTL(cfg.Index.TTL))
		log.Info("using redis enrollment index", "ttl", cfg.Index.TTL)
	case config.IndexMemory:
		deps.index = index.NewInMemory(index.WithTTL(cfg.Index.TTL))
		log.Warn("using in-memory enrollment index; run a single instance and no other store writers",
			"ttl", cfg.Index.TTL)
	default:
		if cfg.Redis.URL != "" {
			log.Warn("REDIS_URL is set but ENROLLMENT_INDEX is off; redis is not used")
		}
	}

	if len(cfg.Audit.KafkaBrokers) > 0 {
		ks, err := kafka.New(ctx, cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic,
			kafka.WithTopicBootstrap(auditTopicShards, 1))
		if err != nil {
			deps.close(log)
			return nil, fmt.Errorf("audit kafka: %w", err)
		}
		deps.kafka = ks
		log.Info("publishing audit events to kafka", "topic", cfg.Audit.KafkaTopic)
	}
	return deps, nil
}

func auditSink(deps *infra, log *slog.Logger) audit.Store {
	sinks := audit.Fanout{audit.NewLogStore(log)}
	if deps.db != nil {
		sinks = append(sinks, auditpostgres.New(deps.db))
	}
	if deps.kafka != nil {
		sinks = append(sinks, deps.kafka)
	}
	return sinks
}

type sqlHealth struct {
	db *sql.DB
}

func (h sqlHealth) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}
