package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/refund-approval/internal/config"
	"github.com/garyjia/refund-approval/internal/container"
	httpapi "github.com/garyjia/refund-approval/internal/interfaces/http"
	"github.com/garyjia/refund-approval/internal/interfaces/websocket"
	"github.com/garyjia/refund-approval/pkg/utils"
)

const version = "1.0.0"

func main() {
	configPath := os.Getenv("REFUND_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath, ".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "refund-approval",
		Sampled:    cfg.Logger.Sampled,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting refund approval service",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("event_mode", cfg.Lark.EventMode))

	if err := run(cfg, logger); err != nil {
		logger.Error("Service exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Service exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container close failed", zap.Error(err))
		}
	}()

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		ActionTimeout:   cfg.Lark.ActionTimeout,
	}, httpapi.Deps{
		Workflow:   c.WorkflowEngine(),
		Identities: c.Services().Identity,
		Journal:    c.Services().Journal,
		Exporter:   c.Exporter(),
		Cards:      c.Lark().Cards,
		Health:     c.HealthSummary,
	}, container.NewLogAdapter(logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})

	if cfg.Lark.EventMode == config.EventModeWebSocket {
		adapter := websocket.NewLarkAdapter(websocket.LarkAdapterConfig{
			AppID:         cfg.Lark.AppID,
			AppSecret:     cfg.Lark.AppSecret,
			ActionTimeout: cfg.Lark.ActionTimeout,
		}, c.Lark().Cards, c.WorkflowEngine(), logger)

		g.Go(func() error {
			return adapter.Start(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			return adapter.Stop()
		})
	}

	return g.Wait()
}
