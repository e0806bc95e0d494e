package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/market-bridge/internal/config"
	"github.com/cuongbtq/market-bridge/internal/imagestore"
	"github.com/cuongbtq/market-bridge/shared/logger"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("CLEANUP_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/cleanup-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	once := flag.Bool("once", false, "Run a single cleanup and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateCleanupConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting cleanup service",
		slog.String("app", cfg.App.Name),
		slog.String("dir", cfg.Images.Dir),
		slog.Duration("retention", cfg.Images.Retention),
		slog.Int("hour", cfg.Images.CleanupHour),
	)

	store := imagestore.New(&imagestore.Config{
		Dir:    cfg.Images.Dir,
		Logger: appLogger.Component("imagestore"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		if _, err := store.Cleanup(ctx, cfg.Images.Retention); err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		return nil
	}

	if err := store.RunDaily(ctx, cfg.Images.CleanupHour, cfg.Images.Retention); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	appLogger.Info("Cleanup service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}
