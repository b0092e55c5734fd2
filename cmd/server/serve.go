package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	audithandler "taskhub/internal/audit/handler"
	auditmetrics "taskhub/internal/audit/metrics"
	auditservice "taskhub/internal/audit/service"
	auditpostgres "taskhub/internal/audit/store/postgres"
	"taskhub/internal/audit/stream"
	"taskhub/internal/identity"
	"taskhub/internal/identity/keys"
	identitymetrics "taskhub/internal/identity/metrics"
	"taskhub/internal/identity/token"
	memberhandler "taskhub/internal/members/handler"
	memberservice "taskhub/internal/members/service"
	"taskhub/internal/partition"
	"taskhub/internal/platform/config"
	"taskhub/internal/platform/database"
	"taskhub/internal/platform/health"
	"taskhub/internal/platform/kafka/producer"
	"taskhub/internal/platform/logger"
	platformredis "taskhub/internal/platform/redis"
	"taskhub/internal/provisioning"
	"taskhub/internal/provisioning/keycloak"
	"taskhub/internal/provisioning/lock"
	"taskhub/internal/provisioning/saga"
	tenanthandler "taskhub/internal/tenant/handler"
	tenantmetrics "taskhub/internal/tenant/metrics"
	tenantservice "taskhub/internal/tenant/service"
	tenantcache "taskhub/internal/tenant/store/cache"
	tenantstore "taskhub/internal/tenant/store/tenant"
	httptransport "taskhub/internal/transport/http"
	"taskhub/pkg/platform/circuit"
	"taskhub/pkg/platform/middleware/request"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Log.Level, cfg.Log.Service)
	log.Info("initializing taskhub", "addr", cfg.Server.Addr)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(ctx, cfg.Database.DSN); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	pool, err := database.NewPool(ctx, cfg.Database, partition.ConfigurePool(log))
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	checks := health.New(2 * time.Second)
	checks.RegisterCheck("database", database.HealthCheck(pool))

	var locker provisioning.Locker = lock.NewLocal()
	if cfg.Redis.URL != "" {
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		locker = lock.NewRedis(client, cfg.Tenant.LockTTL)
		checks.RegisterCheck("redis", platformredis.HealthCheck(client))
	}

	auditOpts := []auditservice.Option{
		auditservice.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
		auditservice.WithMetrics(auditmetrics.New(reg)),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		prod, err := producer.New(producer.Config{Brokers: cfg.Kafka.Brokers, ClientID: cfg.Kafka.ClientID}, log)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer prod.Close(5 * time.Second)
		auditOpts = append(auditOpts, auditservice.WithForwarder(stream.NewForwarder(prod, cfg.Kafka.Topic)))
		checks.RegisterCheck("kafka", prod.Ping)
	}
	recorder := auditservice.New(auditpostgres.New(pool), log, auditOpts...)
	defer recorder.Close()

	tenants, err := tenantcache.New(tenantstore.NewPostgres(pool), cfg.Tenant.RealmCacheTTL, 0)
	if err != nil {
		return fmt.Errorf("tenant cache: %w", err)
	}
	defer tenants.Close()

	idMetrics := identitymetrics.New(reg)
	resolver := keys.NewResolver(cfg.Keycloak.BaseURL, keys.WithObserver(idMetrics))
	defer resolver.Close()
	verifier := token.NewVerifier(token.Config{
		IssuerBaseURL: cfg.Keycloak.IssuerBaseURL,
		Audience:      cfg.Keycloak.Audience,
	}, resolver)
	authn := identity.NewAuthenticator(verifier, tenants, recorder, log, identity.WithMetrics(idMetrics))

	breaker := circuit.New("keycloak", circuit.WithStateChange(func(name string, from, to circuit.State) {
		log.Warn("circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
	}))
	idp := keycloak.New(cfg.Keycloak, log, keycloak.WithBreaker(breaker))
	checks.RegisterCheck("keycloak", func(context.Context) error {
		if breaker.State() == circuit.StateOpen {
			return circuit.ErrOpen
		}
		return nil
	})

	partitions := partition.NewRouter(pool, log)
	members := memberservice.New(partitions, idp, recorder, log)

	tMetrics := tenantmetrics.New(reg)
	directory := tenantservice.New(tenants, members, recorder,
		tenantservice.WithLogger(log),
		tenantservice.WithMetrics(tMetrics),
		tenantservice.WithPublicSettings(cfg.Tenant.PublicSettings),
	)

	provisioner := provisioning.New(tenants, partitions, idp, members, locker, recorder, log,
		provisioning.WithRunner(saga.NewRunner(saga.WithStepTimeout(cfg.Tenant.StepTimeout), saga.WithLogger(log))),
		provisioning.WithKeyForgetter(resolver),
		provisioning.WithMetrics(tMetrics),
	)

	router, err := httptransport.NewRouter(httptransport.Deps{
		Server:         cfg.Server,
		Logger:         log,
		Gatherer:       reg,
		RequestMetrics: request.NewMetrics(reg),
		Authenticator:  authn,
		Audit:          recorder,
		Denials:        idMetrics,
		Health:         checks,
		Tenants:        tenanthandler.New(directory, provisioner, log),
		Members:        memberhandler.New(members, log),
		AuditLog:       audithandler.New(recorder, log),
	})
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
