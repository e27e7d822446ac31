package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/angeloszaimis/api-proxy/config"
	"github.com/angeloszaimis/api-proxy/internal/backend"
	"github.com/angeloszaimis/api-proxy/internal/forwarder"
	"github.com/angeloszaimis/api-proxy/internal/handler"
	"github.com/angeloszaimis/api-proxy/internal/healthcheck"
	"github.com/angeloszaimis/api-proxy/internal/httpserver"
	"github.com/angeloszaimis/api-proxy/internal/metrics"
	"github.com/angeloszaimis/api-proxy/internal/registry"
	"github.com/angeloszaimis/api-proxy/internal/resolver"
	"github.com/angeloszaimis/api-proxy/internal/tlsidentity"
	"github.com/angeloszaimis/api-proxy/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	identity, err := loadIdentity(cfg, log)
	if err != nil {
		log.Error("Failed to load client TLS identity", slog.Any("err", err))
		os.Exit(1)
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		log.Error("Failed to build connection registry", slog.Any("err", err))
		os.Exit(1)
	}

	client, err := backend.NewClient(identity)
	if err != nil {
		log.Error("Failed to create upstream client", slog.Any("err", err))
		os.Exit(1)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.BufferSize, log)
		collector.Start(ctx)
	}

	if interval := cfg.HealthCheckInterval(); interval > 0 && reg.Len() > 0 {
		checker := healthcheck.New(client, cfg.HealthCheck.Path, interval, collector, log)
		checker.Start(ctx, reg.All())
	}

	gatewayHandler := handler.NewGatewayHandler(
		log,
		resolver.New(reg),
		backend.NewBuilder(cfg.Server.MaxBodyBytes),
		forwarder.New(client, log),
		collector,
		cfg.Server.MountPath,
	)

	routes := setupRouter(gatewayHandler, collector, cfg.Server.MountPath)

	srv, err := httpserver.New(cfg.Server.Address, routes, cfg.ShutdownTimeout())
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Proxy listening",
		slog.String("address", cfg.Server.Address),
		slog.String("mount_path", cfg.Server.MountPath),
		slog.Int("connections", reg.Len()),
		slog.Bool("mtls", identity.Complete()))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting proxy", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// loadIdentity reads the client certificate set. A partially configured set
// is reported and ignored.
func loadIdentity(cfg *config.Config, log *slog.Logger) (*tlsidentity.Identity, error) {
	paths := tlsidentity.Paths{
		CA:   cfg.TLS.CAPath,
		Cert: cfg.TLS.CertPath,
		Key:  cfg.TLS.KeyPath,
	}

	if !paths.Complete() {
		if !paths.Empty() {
			log.Warn("Incomplete client TLS configuration, connecting without a client certificate",
				slog.Bool("ca", paths.CA != ""),
				slog.Bool("cert", paths.Cert != ""),
				slog.Bool("key", paths.Key != ""))
		}
		return nil, nil
	}

	identity, err := tlsidentity.Load(paths)
	if err != nil {
		return nil, fmt.Errorf("load tls identity: %w", err)
	}

	return identity, nil
}

func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	connections := make([]registry.Connection, 0, len(cfg.Connections))
	for _, c := range cfg.Connections {
		connections = append(connections, registry.Connection{
			Name:         c.Name,
			URL:          c.URL,
			FctWorkerURL: c.FctWorkerURL,
			Token:        c.Token,
		})
	}

	return registry.New(connections)
}
