// Command server wires storage, engines, services, and the HTTP router, then
// runs the process lifecycle. Business logic lives in the internal packages;
// main only chooses implementations from configuration.
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

	"golang.org/x/sync/errgroup"

	"realhub/internal/authz"
	billinghandler "realhub/internal/billing/handler"
	billingservice "realhub/internal/billing/service"
	billingstore "realhub/internal/billing/store"
	compliancehandler "realhub/internal/compliance/handler"
	complianceservice "realhub/internal/compliance/service"
	compliancestore "realhub/internal/compliance/store"
	"realhub/internal/events"
	favoritehandler "realhub/internal/favorite/handler"
	favoriteservice "realhub/internal/favorite/service"
	favoritestore "realhub/internal/favorite/store"
	httpapi "realhub/internal/http"
	"realhub/internal/identity"
	identityhandler "realhub/internal/identity/handler"
	identityservice "realhub/internal/identity/service"
	kychandler "realhub/internal/kyc/handler"
	kycservice "realhub/internal/kyc/service"
	kycstore "realhub/internal/kyc/store"
	leadhandler "realhub/internal/lead/handler"
	leadservice "realhub/internal/lead/service"
	leadstore "realhub/internal/lead/store"
	"realhub/internal/platform/config"
	"realhub/internal/platform/httpserver"
	"realhub/internal/platform/logger"
	"realhub/internal/platform/metrics"
	"realhub/internal/platform/postgres"
	"realhub/internal/platform/redis"
	propertyhandler "realhub/internal/property/handler"
	propertyservice "realhub/internal/property/service"
	propertystore "realhub/internal/property/store"
	"realhub/internal/statemachine"
	"realhub/internal/token"
	"realhub/pkg/platform/tx"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Storage: Postgres when configured, in-memory otherwise. The in-memory
	// wiring keeps local development and the test suite free of containers.
	var (
		db       *sql.DB
		txRunner *tx.Runner

		users         identity.Store
		properties    propertystore.Store
		verifications kycstore.Store
		leads         leadstore.Store
		payments      billingstore.Payments
		invoices      billingstore.Invoices
		plans         billingstore.Plans
		subscriptions billingstore.Subscriptions
		requirements  compliancestore.Requirements
		records       compliancestore.Records
		reports       compliancestore.Reports
		favorites     favoritestore.Store
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		if err := applySchemas(ctx, db); err != nil {
			return fmt.Errorf("applying schemas: %w", err)
		}
		txRunner = tx.NewRunner(db)

		users = identity.NewPostgresStore(db)
		properties = propertystore.NewPostgres(db)
		verifications = kycstore.NewPostgres(db)
		leads = leadstore.NewPostgres(db)
		payments = billingstore.NewPaymentsPostgres(db)
		invoices = billingstore.NewInvoicesPostgres(db)
		plans = billingstore.NewPlansPostgres(db)
		subscriptions = billingstore.NewSubscriptionsPostgres(db)
		requirements = compliancestore.NewRequirementsPostgres(db)
		records = compliancestore.NewRecordsPostgres(db)
		reports = compliancestore.NewReportsPostgres(db)
		favorites = favoritestore.NewPostgres(db)
		log.Info("storage backend: postgres")
	} else {
		propertyMem := propertystore.NewInMemory()
		users = identity.NewInMemoryStore()
		properties = propertyMem
		verifications = kycstore.NewInMemory()
		leads = leadstore.NewInMemory()
		payments = billingstore.NewPaymentsMemory()
		invoices = billingstore.NewInvoicesMemory()
		plans = billingstore.NewPlansMemory()
		subscriptions = billingstore.NewSubscriptionsMemory()
		requirements = compliancestore.NewRequirementsMemory()
		records = compliancestore.NewRecordsMemory(propertyMem)
		reports = compliancestore.NewReportsMemory()
		favorites = favoritestore.NewInMemory()
		log.Warn("storage backend: in-memory, data will not survive restarts")
	}

	// Transition locking: Redis when configured so multiple replicas contend
	// correctly, a process-local locker otherwise.
	var (
		locker      statemachine.Locker
		redisClient *redis.Client
	)
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redis.New(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisClient.Close()
		locker = redis.NewLocker(redisClient)
		log.Info("transition locking: redis")
	} else {
		locker = statemachine.NewInProcessLocker()
	}

	g, ctx := errgroup.WithContext(ctx)

	// Events: Kafka when brokers are configured; otherwise a buffered channel
	// drained by a background worker into an in-memory sink.
	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.EventTopic, log)
		if err != nil {
			return fmt.Errorf("connecting to kafka: %w", err)
		}
		defer kafka.Close()
		publisher = kafka
		log.Info("event delivery: kafka", "topic", cfg.EventTopic)
	} else {
		channel := events.NewChannelPublisher(256, log)
		worker := events.NewWorker(events.NewMemorySink(), channel.Inbox(), events.WithWorkerLogger(log))
		g.Go(func() error {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("event worker: %w", err)
			}
			return nil
		})
		publisher = channel
	}

	authzEngine := authz.NewEngine()
	transitions := statemachine.NewEngine(authzEngine, locker,
		statemachine.WithLogger(log),
		statemachine.WithMetrics(statemachine.NewMetrics()),
		statemachine.WithLockWait(cfg.LockWait),
	)

	tokens := token.NewService(cfg.JWTSigningKey, "realhub")
	resolver := identity.NewResolver(users)

	leadSvc := leadservice.New(leads, properties, authzEngine, transitions, publisher,
		leadservice.WithLogger(log), leadservice.WithMetrics(m))
	favoriteSvc := favoriteservice.New(favorites, properties, authzEngine, publisher,
		favoriteservice.WithLogger(log), favoriteservice.WithMetrics(m))
	complianceSvc := complianceservice.New(requirements, records, reports, properties, authzEngine, transitions, publisher, txRunner,
		complianceservice.WithLogger(log), complianceservice.WithMetrics(m))
	propertySvc := propertyservice.New(properties, authzEngine, transitions, publisher,
		propertyservice.WithLogger(log), propertyservice.WithMetrics(m),
		propertyservice.WithCascades(leadSvc, favoriteSvc, complianceSvc))
	kycSvc := kycservice.New(verifications, users, authzEngine, transitions, publisher, txRunner,
		kycservice.WithLogger(log), kycservice.WithMetrics(m))
	billingSvc := billingservice.New(payments, invoices, plans, subscriptions, properties, authzEngine, transitions, publisher, txRunner,
		billingservice.WithLogger(log), billingservice.WithMetrics(m))
	identitySvc := identityservice.New(users, authzEngine, tokens, cfg.AccessTokenTTL, publisher,
		identityservice.WithLogger(log), identityservice.WithMetrics(m))

	if err := identitySvc.SeedAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		return fmt.Errorf("seeding bootstrap admin: %w", err)
	}

	var readyChecks []httpapi.ReadyCheck
	if db != nil {
		readyChecks = append(readyChecks, httpapi.ReadyCheck{Name: "postgres", Check: db.PingContext})
	}
	if redisClient != nil {
		readyChecks = append(readyChecks, httpapi.ReadyCheck{Name: "redis", Check: redisClient.Health})
	}

	router := httpapi.NewRouter(token.NewMiddlewareAdapter(tokens), log, readyChecks,
		identityhandler.New(identitySvc, resolver, log),
		propertyhandler.New(propertySvc, resolver, log),
		kychandler.New(kycSvc, resolver, log),
		leadhandler.New(leadSvc, resolver, log),
		billinghandler.New(billingSvc, resolver, log),
		compliancehandler.New(complianceSvc, resolver, log),
		favoritehandler.New(favoriteSvc, resolver, log),
	)

	srv := httpserver.New(cfg.Addr, router)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// applySchemas creates any missing tables. The DDL is idempotent, so running
// it at every startup keeps fresh environments working without a separate
// migration step.
func applySchemas(ctx context.Context, db *sql.DB) error {
	schemas := []string{
		identity.Schema(),
		propertystore.Schema(),
		kycstore.Schema(),
		leadstore.Schema(),
		billingstore.Schema(),
		compliancestore.Schema(),
		favoritestore.Schema(),
	}
	for _, ddl := range schemas {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}
