package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/garyjia/invoice-reimbursement/internal/config"
	"github.com/garyjia/invoice-reimbursement/internal/container"
	"github.com/garyjia/invoice-reimbursement/pkg/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "invoice-reimbursement: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting invoice reimbursement service",
		zap.String("config", configPath),
		zap.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Container shutdown error", zap.Error(err))
		}
	}()

	health := app.Health(ctx)
	for name, component := range health.Components {
		if !component.Healthy {
			logger.Warn("Component not healthy at startup",
				zap.String("component", name),
				zap.String("message", component.Message))
		}
	}

	// Blocks until SIGINT/SIGTERM, then drains in-flight batches
	if err := app.Server().Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Server exited successfully")
	return nil
}
