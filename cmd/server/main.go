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

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"linkage/internal/events"
	identityhandler "linkage/internal/identity/handler"
	identitymetrics "linkage/internal/identity/metrics"
	"linkage/internal/identity/service"
	contactstore "linkage/internal/identity/store/contact"
	"linkage/internal/platform/config"
	"linkage/internal/platform/httpserver"
	"linkage/internal/platform/logger"
	"linkage/internal/platform/metrics"
	redisplatform "linkage/internal/platform/redis"
	"linkage/internal/ratelimit"
	httptransport "linkage/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in internal/identity.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		storeTx   service.StoreTx
		recorder  events.Recorder
		outbox    events.Outbox
		readiness func(ctx context.Context) error
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		if err := contactstore.EnsureSchema(ctx, db); err != nil {
			return err
		}

		storeTx = contactstore.NewPostgresTxRunner(db, log)
		pgOutbox := events.NewPostgresOutbox(db)
		recorder, outbox = pgOutbox, pgOutbox
		readiness = db.PingContext
		log.Info("using postgres contact store")
	} else {
		// Demo mode: single process, nothing persisted across restarts.
		memStore := contactstore.NewMemory()
		storeTx = service.NewMemoryTx(memStore)
		memOutbox := events.NewMemoryOutbox()
		recorder, outbox = memOutbox, memOutbox
		log.Warn("DATABASE_URL not set, using in-memory contact store")
	}

	var limitStore ratelimit.Store
	redisClient, err := redisplatform.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		limitStore = ratelimit.NewRedisStore(redisClient.Client)
		log.Info("using redis rate limit store")
	} else {
		limitStore = ratelimit.NewMemoryStore()
	}

	httpMetrics := metrics.New()
	reconcileMetrics := identitymetrics.New()

	svc := service.New(storeTx, recorder, reconcileMetrics, log)
	limiter := ratelimit.New(limitStore, cfg.RateLimit.Requests, cfg.RateLimit.Window, log,
		ratelimit.WithDisabled(!cfg.RateLimit.Enabled),
	)

	router := httptransport.NewRouter(httptransport.Options{
		Identity:           identityhandler.New(svc, log, limiter.Limit),
		Logger:             log,
		Metrics:            httpMetrics,
		Readiness:          readiness,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting linkage server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := events.NewPublisher(gctx, cfg.KafkaBrokers, cfg.KafkaTopic, outbox, log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			log.Info("starting contact event publisher", "topic", cfg.KafkaTopic)
			if err := publisher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
