package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/market-bridge/internal/api/handler"
	"github.com/cuongbtq/market-bridge/internal/api/router"
	"github.com/cuongbtq/market-bridge/internal/api/storage"
	"github.com/cuongbtq/market-bridge/internal/completion"
	"github.com/cuongbtq/market-bridge/internal/config"
	"github.com/cuongbtq/market-bridge/internal/dispatcher"
	"github.com/cuongbtq/market-bridge/internal/imagestore"
	"github.com/cuongbtq/market-bridge/internal/notify"
	"github.com/cuongbtq/market-bridge/internal/search"
	"github.com/cuongbtq/market-bridge/internal/workerclient"
	"github.com/cuongbtq/market-bridge/shared/logger"
	"github.com/cuongbtq/market-bridge/shared/postgresql"
	"github.com/cuongbtq/market-bridge/shared/rabbitmq"
	"github.com/gin-gonic/gin"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, cfg.App.Name, appLogger.Component("postgresql"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	journal := storage.NewStorage(dbClient)
	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = journal.EnsureSchema(schemaCtx)
	schemaCancel()
	if err != nil {
		return err
	}

	appLogger.Info("Database connection established")

	tracker := completion.NewTracker(appLogger.Component("completion"))
	registry := notify.NewRegistry(appLogger.Component("notify"))

	worker := workerclient.New(&workerclient.Config{
		BaseURL:           cfg.Worker.BaseURL,
		ParsePath:         cfg.Worker.ParsePath,
		CallbackURL:       cfg.Worker.CallbackURL,
		AcceptTimeout:     cfg.Worker.AcceptTimeout,
		CompletionTimeout: cfg.Worker.CompletionTimeout,
		Tracker:           tracker,
		Logger:            appLogger.Component("workerclient"),
	})

	jobs := dispatcher.New(&dispatcher.Config{
		Logger:         appLogger.Component("dispatcher"),
		Processor:      worker,
		Notifier:       registry,
		Journal:        journal,
		JournalTimeout: cfg.Dispatcher.JournalTimeout,
	})

	images := imagestore.New(&imagestore.Config{
		Dir:          cfg.Images.Dir,
		ImageTimeout: cfg.Images.DownloadTimeout,
		Concurrency:  cfg.Images.DownloadConcurrency,
		Logger:       appLogger.Component("imagestore"),
	})

	searchService := search.NewService(&search.Config{
		Enqueuer:            jobs,
		Notifier:            registry,
		Materializer:        images,
		Logger:              appLogger.Component("search"),
		DefaultMarketplaces: cfg.Search.Marketplaces,
		DefaultPage:         cfg.Search.DefaultPage,
	})

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		appLogger.Info("RabbitMQ connection established")

		consumer := completion.NewConsumer(&completion.ConsumerConfig{
			Source:        rabbitClient,
			Tracker:       tracker,
			Logger:        appLogger.Component("completion"),
			ConsumerTag:   cfg.RabbitMQ.Consumer.Tag,
			PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		})
		go func() {
			if err := consumer.Run(consumerCtx); err != nil {
				appLogger.Error("Completion consumer stopped",
					slog.Any("error", err),
				)
			}
		}()
	}

	r, err := initRouter(cfg, &handler.Dependencies{
		Logger:         appLogger.Component("api"),
		HealthCheck:    dbClient.HealthCheck,
		Search:         searchService,
		Completions:    tracker,
		Queues:         jobs,
		Channels:       registry,
		Jobs:           journal,
		Images:         images,
		ImageRetention: cfg.Images.Retention,
		WebSocket: handler.WebSocketSettings{
			WriteWait:      cfg.WebSocket.WriteWait,
			PongWait:       cfg.WebSocket.PongWait,
			PingInterval:   cfg.WebSocket.PingInterval,
			AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		},
	})
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.String("worker", cfg.Worker.BaseURL),
		slog.Bool("rabbitmq", cfg.RabbitMQ.Enabled),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
	}

	// In-flight jobs end as timeouts and their events still reach open channels
	dispatchCtx, dispatchCancel := context.WithTimeout(context.Background(), cfg.Dispatcher.ShutdownTimeout)
	defer dispatchCancel()

	if err := jobs.Shutdown(dispatchCtx); err != nil {
		appLogger.Warn("Dispatcher shutdown timeout exceeded",
			slog.Any("error", err),
		)
	}

	stopConsumer()
	registry.CloseAll()

	appLogger.Info("API service shutdown complete")
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

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, appName string, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectTimeout:  cfg.ConnectTimeout,
		RetryAttempts:   cfg.RetryAttempts,
		RetryInterval:   cfg.RetryInterval,
		ApplicationName: appName,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the completion queue client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		VHost:    cfg.VHost,
		Exchange: rabbitmq.Exchange{
			Name:       cfg.Exchange.Name,
			Kind:       cfg.Exchange.Type,
			Durable:    cfg.Exchange.Durable,
			AutoDelete: cfg.Exchange.AutoDelete,
		},
		Queue: rabbitmq.Queue{
			Name:       cfg.Queue.Name,
			Durable:    cfg.Queue.Durable,
			AutoDelete: cfg.Queue.AutoDelete,
			Exclusive:  cfg.Queue.Exclusive,
		},
		RoutingKey:        cfg.RoutingKey,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies) (*gin.Engine, error) {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(deps)

	if len(cfg.Server.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			return nil, fmt.Errorf("invalid trusted proxies: %w", err)
		}
	}

	return r, nil
}
