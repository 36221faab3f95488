// main wires stores, services, workers, and the HTTP server. Business logic
// lives in the internal service packages; this file only selects
// implementations from configuration and manages the process lifecycle.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"lastmile/internal/audit"
	deliveryhandler "lastmile/internal/delivery/handler"
	deliverymetrics "lastmile/internal/delivery/metrics"
	deliveryservice "lastmile/internal/delivery/service"
	deliverystore "lastmile/internal/delivery/store"
	"lastmile/internal/notify"
	"lastmile/internal/platform/config"
	"lastmile/internal/platform/httpserver"
	"lastmile/internal/platform/logger"
	platformredis "lastmile/internal/platform/redis"
	"lastmile/internal/platform/token"
	privacyhandler "lastmile/internal/privacy/handler"
	privacymetrics "lastmile/internal/privacy/metrics"
	privacyservice "lastmile/internal/privacy/service"
	privacystore "lastmile/internal/privacy/store"
	"lastmile/internal/privacy/sweep"
	routehandler "lastmile/internal/route/handler"
	routemetrics "lastmile/internal/route/metrics"
	routeservice "lastmile/internal/route/service"
	routestore "lastmile/internal/route/store"
	trackingcache "lastmile/internal/tracking/cache"
	trackinghandler "lastmile/internal/tracking/handler"
	trackingmetrics "lastmile/internal/tracking/metrics"
	trackingservice "lastmile/internal/tracking/service"
	trackingstore "lastmile/internal/tracking/store"
	httptransport "lastmile/internal/transport/http"
	"lastmile/pkg/platform/tx"
)

func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence: Postgres when a DSN is configured, memory stores otherwise.
	var (
		db     *sql.DB
		runner tx.Runner = tx.NopRunner{}

		routeSt    routestore.Store
		deliverySt deliverystore.Store
		trackingSt trackingstore.Store
		requestSt  privacystore.DataRequestStore
		consentSt  privacystore.ConsentStore
		auditSt    audit.Store
	)
	if cfg.Database.DSN != "" {
		db, err = sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping database", "error", err)
			os.Exit(1)
		}
		runner = tx.SQLRunner{DB: db}
		routeSt = routestore.NewPostgresStore(db)
		deliverySt = deliverystore.NewPostgresStore(db)
		trackingSt = trackingstore.NewPostgresStore(db)
		requestSt = privacystore.NewPostgresDataRequestStore(db)
		consentSt = privacystore.NewPostgresConsentStore(db)
		auditSt = audit.NewPostgresStore(db)
		log.Info("using postgres stores")
	} else {
		routeSt = routestore.NewInMemoryStore()
		deliverySt = deliverystore.NewInMemoryStore()
		trackingSt = trackingstore.NewInMemoryStore()
		requestSt = privacystore.NewInMemoryDataRequestStore()
		consentSt = privacystore.NewInMemoryConsentStore()
		auditSt = audit.NewInMemoryStore()
		log.Warn("no DATABASE_URL set, using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var positions trackingcache.Positions
	if redisClient != nil {
		positions = trackingcache.NewRedisPositions(redisClient)
	} else {
		positions = trackingcache.NewMemoryPositions()
		log.Warn("no REDIS_URL set, using in-memory position cache")
	}

	recorder := audit.NewRecorder(auditSt, audit.WithLogger(log))
	notifier := notify.NewLogNotifier(log)

	routeSvc := routeservice.NewService(routeSt, runner, recorder,
		routeservice.WithLogger(log),
		routeservice.WithNotifier(notifier),
		routeservice.WithMetrics(routemetrics.New()),
	)
	deliverySvc := deliveryservice.NewService(deliverySt, runner, recorder,
		deliveryservice.WithLogger(log),
		deliveryservice.WithNotifier(notifier),
		deliveryservice.WithMetrics(deliverymetrics.New()),
	)
	trackingSvc := trackingservice.NewService(trackingSt, positions, recorder,
		trackingservice.WithLogger(log),
		trackingservice.WithMetrics(trackingmetrics.New()),
	)
	privacyMetrics := privacymetrics.New()
	privacySvc := privacyservice.NewService(requestSt, consentSt, runner, recorder,
		privacyservice.WithLogger(log),
		privacyservice.WithNotifier(notifier),
		privacyservice.WithMetrics(privacyMetrics),
	)

	jwtService := token.NewJWTService(cfg.Server.JWTSigningKey, "lastmile")

	health := map[string]httptransport.HealthCheck{}
	if db != nil {
		health["database"] = db.PingContext
	}
	if redisClient != nil {
		health["redis"] = redisClient.Health
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger: log,
		Token:  jwtService,
		Handlers: []httptransport.Registrar{
			routehandler.New(routeSvc, recorder, log),
			deliveryhandler.New(deliverySvc, recorder, log),
			trackinghandler.New(trackingSvc, log),
			privacyhandler.New(privacySvc, recorder, log),
		},
		Health: health,
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	sweeper := sweep.NewSweeper(privacySvc, rawRedis(redisClient),
		sweep.WithInterval(cfg.Sweep.Interval),
		sweep.WithBatchSize(cfg.Sweep.BatchSize),
		sweep.WithMetrics(privacyMetrics),
		sweep.WithLogger(log),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting lastmile server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := sweeper.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if db != nil && len(cfg.Kafka.Brokers) > 0 {
		publisher, err := audit.NewPublisher(db, cfg.Kafka.Brokers, log)
		if err != nil {
			log.Error("create audit publisher", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			err := publisher.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// rawRedis unwraps the platform client for packages that take the go-redis
// client directly. Nil-safe: a nil platform client yields a nil raw client.
func rawRedis(c *platformredis.Client) *goredis.Client {
	if c == nil {
		return nil
	}
	return c.Client
}
