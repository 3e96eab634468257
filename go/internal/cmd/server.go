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
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
	"github.com/NicolaBuomp/fantabid/go/internal/auction/listener"
	"github.com/NicolaBuomp/fantabid/go/internal/auction/metrics"
	"github.com/NicolaBuomp/fantabid/go/internal/auction/store"
	"github.com/NicolaBuomp/fantabid/go/internal/auction/stream"
	"github.com/NicolaBuomp/fantabid/go/internal/catalog"
	"github.com/NicolaBuomp/fantabid/go/internal/config"
	"github.com/NicolaBuomp/fantabid/go/internal/gateway"
)

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the auction server",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	pool, err := setupDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := metrics.NewPrometheusMetrics(registry)

	repo := store.NewRepository(pool, nil)

	connCfg := gateway.DefaultConnectionConfig()
	connCfg.MessageRate = rate.Limit(cfg.Gateway.MessageRate)
	connCfg.MessageBurst = cfg.Gateway.MessageBurst
	connCfg.MaxMessageSize = cfg.Gateway.MaxMessageSize
	connCfg.SendBufferSize = cfg.Gateway.SendBufferSize
	connections := gateway.NewConnectionManager(connCfg, nil)

	g, ctx := errgroup.WithContext(ctx)

	notifiers := auction.Notifiers{connections}
	var broker gateway.BrokerStatus
	if cfg.NATS.Enabled {
		publisher, err := stream.NewJetStreamPublisher(ctx, cfg.NATS.JetStream())
		if err != nil {
			return err
		}
		defer publisher.Close()
		broker = publisher

		forwarder := stream.NewForwarder(publisher, stream.DefaultConfig(), promMetrics, nil)
		notifiers = append(notifiers, forwarder)
		g.Go(func() error { return forwarder.Run(ctx) })
	}

	engine := auction.NewEngine(cfg.Auction.Engine(), auction.NewRegistry(), repo, notifiers, promMetrics, nil)
	supervisor := auction.NewSupervisor(engine)

	auth := gateway.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.ClockSkew)
	importer := catalog.NewImporter(repo, repo, catalog.NewPreviewCache(cfg.Import.PreviewTTL, nil))

	handler := gateway.NewRouter(gateway.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WebSocket:      gateway.NewWebSocketHandler(connections, gateway.NewDispatcher(ctx, engine, auth), auth),
		Import:         gateway.NewImportHandler(importer, auth),
		Rooms:          engine,
		Gatherer:       registry,
		Health:         gateway.NewHealthChecker(pool, broker, engine, connections),
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g.Go(func() error {
		connections.Start(ctx)
		return nil
	})
	g.Go(func() error { return supervisor.Run(ctx) })

	if cfg.Listener.Enabled {
		members, err := listener.NewListener(engine, cfg.Listener.Listener(cfg.Database.DSN()))
		if err != nil {
			return err
		}
		g.Go(func() error { return members.Start(ctx) })
	}

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
