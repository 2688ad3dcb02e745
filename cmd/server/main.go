// Command server runs the stakeholder notification delivery engine: HTTP and
// Kafka intake, the delivery dispatcher, action callbacks, and the operator
// audit surface in one process.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"beacon/internal/action"
	actionhandler "beacon/internal/action/handler"
	"beacon/internal/audit"
	audithandler "beacon/internal/audit/handler"
	auditmetrics "beacon/internal/audit/metrics"
	auditmemory "beacon/internal/audit/store/memory"
	auditpostgres "beacon/internal/audit/store/postgres"
	"beacon/internal/card"
	"beacon/internal/dispatch"
	dispatchmetrics "beacon/internal/dispatch/metrics"
	"beacon/internal/intake"
	intakehandler "beacon/internal/intake/handler"
	intakemetrics "beacon/internal/intake/metrics"
	"beacon/internal/jwttoken"
	"beacon/internal/platform/config"
	"beacon/internal/platform/httpserver"
	"beacon/internal/platform/kafka"
	"beacon/internal/platform/logger"
	platformredis "beacon/internal/platform/redis"
	"beacon/internal/ratelimit"
	"beacon/internal/routing"
	routingmetrics "beacon/internal/routing/metrics"
	httptransport "beacon/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("engine stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver, err := routing.LoadStatic(cfg.RoutingFile, cfg.RateLimit.RatePerMinute, cfg.RateLimit.Burst)
	if err != nil {
		return err
	}
	log.Info("routing table loaded", "file", cfg.RoutingFile, "groups", len(resolver.Groups()))

	// Audit store: postgres when configured, in-memory otherwise.
	var store audit.Store
	var db *sql.DB
	if cfg.Postgres.URL != "" {
		db, err = sql.Open("pgx", cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)

		pingCtx, cancel := context.WithTimeout(ctx, cfg.Postgres.ConnTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, auditpostgres.Schema); err != nil {
			return err
		}
		store = auditpostgres.New(db)
		log.Info("audit store ready", "backend", "postgres")
	} else {
		store = auditmemory.New()
		log.Warn("audit store ready", "backend", "memory", "detail", "records do not survive restarts")
	}

	records := audit.NewService(store,
		audit.WithLogger(log),
		audit.WithMetrics(auditmetrics.New()),
	)

	// Rate limiter: shared state in redis when configured.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var limiter ratelimit.Limiter
	if redisClient != nil {
		defer redisClient.Close()
		limiter = ratelimit.NewRedis(redisClient)
		log.Info("rate limiter ready", "backend", "redis")
	} else {
		limiter = ratelimit.NewMemory(cfg.RateLimit.AcquireTimeout)
		log.Info("rate limiter ready", "backend", "memory")
	}

	dispatcher := dispatch.New(cfg.Dispatch,
		dispatch.NewSender(cfg.Dispatch),
		resolver,
		limiter,
		records,
		dispatch.WithLogger(log),
		dispatch.WithMetrics(dispatchmetrics.New()),
	)
	if err := dispatcher.Start(ctx); err != nil {
		return err
	}
	defer dispatcher.Stop()

	renderer := card.NewRenderer(cfg.Dispatch.MaxRetries)
	router := routing.New(resolver,
		routing.WithLogger(log),
		routing.WithMetrics(routingmetrics.New()),
	)
	intakeService := intake.NewService(router, renderer, records, dispatcher,
		intake.WithLogger(log),
		intake.WithMetrics(intakemetrics.New()),
	)

	actionOpts := []action.Option{action.WithLogger(log)}
	if cfg.Action.PagerURL != "" {
		actionOpts = append(actionOpts, action.WithEscalator(action.NewHTTPEscalator(cfg.Action.PagerURL, cfg.Action.Timeout)))
	}
	if cfg.Action.JobQueue != "" {
		actionOpts = append(actionOpts, action.WithJobQueue(action.NewHTTPJobQueue(cfg.Action.JobQueue, cfg.Action.Timeout)))
	}
	if cfg.Action.ArchiveURL != "" {
		actionOpts = append(actionOpts, action.WithArchiver(action.NewHTTPArchiver(cfg.Action.ArchiveURL, cfg.Action.Timeout)))
	}
	actionService := action.NewService(records, resolver, renderer, actionOpts...)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "beacon", "beacon-operators")

	health := map[string]httptransport.HealthChecker{}
	if redisClient != nil {
		health["redis"] = redisClient
	}
	if db != nil {
		health["postgres"] = dbHealth{db}
	}

	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Intake:    intakehandler.New(intakeService, log),
		Action:    actionhandler.New(actionService, log),
		Audit:     audithandler.New(records, log),
		Validator: jwttoken.NewValidator(jwtService),
		Health:    health,
	}))

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Kafka.Enabled() {
		consumerClient, err := kafka.NewConsumer(cfg.Kafka)
		if err != nil {
			return err
		}
		defer consumerClient.Close()
		if err := kafka.EnsureTopic(ctx, consumerClient, cfg.Kafka.Topic); err != nil {
			return err
		}
		consumer := intake.NewConsumer(consumerClient, intakeService, log)
		group.Go(func() error {
			log.Info("kafka intake consuming", "topic", cfg.Kafka.Topic, "group", cfg.Kafka.Group)
			return consumer.Run(groupCtx)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	log.Info("engine shut down")
	return err
}

// dbHealth adapts *sql.DB to the health checker interface.
type dbHealth struct {
	db *sql.DB
}

func (h dbHealth) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}
