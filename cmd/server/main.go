package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	audithandler "crm/internal/audit/handler"
	dossierhandler "crm/internal/dossier/handler"
	jwttoken "crm/internal/jwt_token"
	"crm/internal/platform/config"
	"crm/internal/platform/httpserver"
	"crm/internal/platform/logger"
	"crm/internal/platform/metrics"
	httptransport "crm/internal/transport/http"
	"crm/pkg/platform/middleware/tenant"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	config.LoadDotEnv()
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := buildApp(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer app.Close()

	resolverOpts := []tenant.Option{}
	if cfg.JWTSigningKey != "" {
		resolverOpts = append(resolverOpts, tenant.WithTokenValidator(
			jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)))
	} else {
		log.Warn("JWT_SIGNING_KEY not set, trusting the X-Org-Id gateway header")
	}

	router := httptransport.NewRouter(httptransport.Config{
		Logger:    log,
		Tenant:    tenant.New(log, resolverOpts...),
		RateLimit: app.rateLimit,
		Latency:   metrics.NewWithRegistry(reg),
		Gatherer:  reg,
		Health:    app.health,
		Routes: []httptransport.RouteRegistrar{
			dossierhandler.New(app.dossiers, log),
			audithandler.New(app.audit, log),
		},
	})
	srv := httpserver.New(cfg.Addr, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting crm dossier service", "addr", cfg.Addr, "backend", app.backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if app.relay != nil {
		g.Go(func() error {
			return app.relay.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
