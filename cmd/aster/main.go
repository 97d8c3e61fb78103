package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/aster/config"
	orderrepo "github.com/Ramsey-B/aster/internal/repositories/order"
	remotecallrepo "github.com/Ramsey-B/aster/internal/repositories/remotecall"
	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/erp"
	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/middleware"
	"github.com/Ramsey-B/aster/pkg/planner"
	"github.com/Ramsey-B/aster/pkg/redis"
	"github.com/Ramsey-B/aster/pkg/routes/health"
	orderroutes "github.com/Ramsey-B/aster/pkg/routes/order"
	"github.com/Ramsey-B/aster/pkg/saga"
	"github.com/Ramsey-B/aster/pkg/tracing"
	"github.com/Ramsey-B/aster/pkg/tracing/exporters"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		exporter, err := newExporter(ctx, cfg)
		if err != nil {
			fatal(logger, err, "Failed to create trace exporter")
		}
		shutdown, err := tracing.Init(ctx, cfg.AppName, exporter)
		if err != nil {
			fatal(logger, err, "Failed to initialize tracing")
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	db, err := database.Connect(ctx, database.ConnectionConfig{
		Driver:          cfg.DatabaseDriver,
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		UserName:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		fatal(logger, err, "Failed to connect to database")
	}
	defer db.Close()

	if err := runMigrations(cfg, db, logger); err != nil {
		fatal(logger, err, "Failed to run migrations")
	}

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		fatal(logger, err, "Failed to connect to Redis")
	}
	defer redisClient.Close()

	locker := redis.NewOrderLocker(redisClient, time.Duration(cfg.OrderLockTTLSeconds)*time.Second)

	var producer *kafka.Producer
	if cfg.KafkaEventsEnable {
		producer = kafka.NewProducer(kafka.Config{
			Brokers:     cfg.KafkaBrokers,
			ChangeTopic: cfg.KafkaOrderTopic,
			ErrorTopic:  cfg.KafkaErrorTopic,
		}, logger)
		defer producer.Close()
	}

	plannerClient := planner.NewHTTPClient(planner.HTTPConfig{
		BaseURL: cfg.PlannerBaseURL,
		APIKey:  cfg.PlannerAPIKey,
		Timeout: time.Duration(cfg.PlannerTimeoutSeconds) * time.Second,
	}, logger)
	erpClient := erp.NewHTTPClient(erp.HTTPConfig{
		BaseURL:  cfg.ErpBaseURL,
		Username: cfg.ErpUsername,
		Password: cfg.ErpPassword,
		Timeout:  time.Duration(cfg.ErpTimeoutSeconds) * time.Second,
	}, logger)

	orders := orderrepo.NewRepository(db, logger)
	remoteCalls := remotecallrepo.NewRepository(db, logger)
	coordinator := saga.NewCoordinator(db, orders, remoteCalls, plannerClient, erpClient, producer, logger)

	container, err := buildContainer(orders, remoteCalls, coordinator, locker)
	if err != nil {
		fatal(logger, err, "Failed to build dependency container")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.AppName))
	}
	e.Use(middleware.Context())
	e.Use(containerMiddleware(container))
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	checker := health.NewChecker(db, redisClient, version)
	checker.RegisterRoutes(e)

	orderroutes.Register(e.Group("/api/v1/orders"))

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	go func() {
		checker.SetReady(true)
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Infof("Starting %s on %s", cfg.AppName, addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			fatal(logger, err, "Server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	checker.SetReady(false)
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down cleanly")
	}
}

func fatal(logger ectologger.Logger, err error, msg string) {
	logger.WithError(err).Error(msg)
	os.Exit(1)
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	var zapCfg zap.Config
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = level
	}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func newExporter(ctx context.Context, cfg *config.Config) (sdktrace.SpanExporter, error) {
	otlpCfg := exporters.DefaultOTLPConfig()
	otlpCfg.Endpoint = cfg.TracingOTLPEndpoint
	otlpCfg.Protocol = cfg.TracingOTLPProtocol
	otlpCfg.Insecure = cfg.TracingInsecure
	return exporters.NewOTLPExporter(ctx, otlpCfg)
}

func runMigrations(cfg *config.Config, db database.DB, logger ectologger.Logger) error {
	instance, ok := db.(*database.DatabaseInstance)
	if !ok {
		return fmt.Errorf("database does not support migrations")
	}

	driver, err := postgres.WithInstance(instance.DB.DB, &postgres.Config{})
	if err != nil {
		return err
	}

	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return ms.Migrate(cfg.DatabaseName, driver)
}

func buildContainer(
	orders *orderrepo.Repository,
	remoteCalls *remotecallrepo.Repository,
	coordinator *saga.Coordinator,
	locker *redis.OrderLocker,
) (ectocontainer.DIContainer, error) {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return nil, err
	}

	if err := ectoinject.RegisterInstance[*orderrepo.Repository](container, orders); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*remotecallrepo.Repository](container, remoteCalls); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*saga.Coordinator](container, coordinator); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*redis.OrderLocker](container, locker); err != nil {
		return nil, err
	}

	return container, nil
}

// containerMiddleware attaches the dependency container to each request
// context so handlers can resolve their dependencies.
func containerMiddleware(container ectocontainer.DIContainer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, err := ectoinject.SetActiveContainer(c.Request().Context(), container.GetContainerID())
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
