// README: Entry point; loads config, wires services, starts HTTP server and the optional reconciler.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"opsconsole/internal/config"
	httptransport "opsconsole/internal/http"
	"opsconsole/internal/http/handlers"
	"opsconsole/internal/infra"
	"opsconsole/internal/maps"
	"opsconsole/internal/metrics"
	"opsconsole/internal/modules/events"
	"opsconsole/internal/modules/lifecycle"
	"opsconsole/internal/modules/notify"
	"opsconsole/internal/modules/pricing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("opsconsole-api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg, metrics.Config{ServiceName: "opsconsole-api", Environment: cfg.Environment})

	deps := lifecycle.Deps{
		Pricing: pricing.NewService(),
		Metrics: recorder,
		Logger:  logger,
		Timeout: cfg.Lifecycle.StoreTimeout,
	}

	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return err
		}
		defer fb.Close()
		deps.Store = lifecycle.NewFirestoreStore(fb.Firestore)
		verifier = fb.Verifier
	} else {
		logger.Warn("no firebase project configured; using the in-memory record store")
		deps.Store = lifecycle.NewMemoryStore()
	}
	if cfg.Auth.Disabled {
		if cfg.IsProduction() {
			return errors.New("OPS_AUTH_DISABLED is not allowed in production")
		}
		logger.Warn("token verification disabled; every caller is a local admin")
		verifier = nil
	}

	var eventReader handlers.EventReader
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		store := events.NewStore(pool)
		deps.Events = store
		eventReader = store
	}

	if cfg.Redis.Addr != "" {
		client, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			return err
		}
		defer client.Close()
		deps.Guard = lifecycle.NewRedisGuard(client, cfg.Redis.GuardTTL)
	}

	notifier := notify.NewClient(notify.Config{
		BaseURL: cfg.Notify.BaseURL,
		APIKey:  cfg.Notify.APIKey,
		Timeout: cfg.Notify.Timeout,
	}, logger, recorder)
	deps.Notifier = notifier

	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Language, cfg.Maps.Region)
		if err != nil {
			return err
		}
		deps.Routes = routes
	}

	svc := lifecycle.NewService(deps)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Lifecycle:  svc,
		Events:     eventReader,
		Thumbnails: notifier,
		Verifier:   verifier,
		Metrics:    recorder.Handler(),
		Logger:     logger,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go svc.RunReconciler(ctx, cfg.Reconcile.Interval, cfg.Reconcile.Apply)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}
