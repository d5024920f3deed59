package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"instructapi/docs"
	"instructapi/internal/cache"
	"instructapi/internal/config"
	"instructapi/internal/database"
	"instructapi/internal/database/migration"
	handlers "instructapi/internal/http/handler"
	"instructapi/internal/http/middleware"
	"instructapi/internal/logging"
	"instructapi/internal/metrics"
	"instructapi/internal/model"
	tracing "instructapi/internal/otel"
	"instructapi/internal/repository/postgres"
	"instructapi/internal/service"
	"instructapi/internal/storage"
	"instructapi/internal/workflow"
)

const (
	bodyLimit       = 32 << 20
	shutdownTimeout = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	log := logging.Init(cfg.Log)

	shutdownTracing, err := tracing.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.WithError(err).Warn("tracing_shutdown_failed")
		}
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
		return err
	}

	store, err := storage.NewMinIO(ctx, cfg.MinIO)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = cache.NewRedisClient(cfg.Redis)
		defer rdb.Close()
	}

	wfMetrics, err := metrics.NewWorkflow(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("failed to register workflow metrics: %w", err)
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}

	deps := serviceDeps{
		cfg:   cfg,
		db:    db,
		store: store,
		redis: rdb,
		engine: workflow.NewEngine(workflow.WithPolicy(workflow.Policy{
			AllowRevisionDuringReview: cfg.Workflow.AllowRevisionDuringReview,
			CreatorVisibility:         cfg.Workflow.CreatorVisibility,
		})),
		metrics: wfMetrics,
		log:     log,
	}
	instructions := newDocumentService[model.InstructionContent](deps, postgres.InstructionsTable)
	activities := newDocumentService[model.ActivityContent](deps, postgres.EquipmentActivitiesTable)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    bodyLimit,
	})

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(httpMetrics.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	handlers.RegisterRoutes(app, db, instructions, activities)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + cfg.Port)
	}()
	log.WithField("addr", ":"+cfg.Port).Info("server_started")

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Info("server_stopping")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

type serviceDeps struct {
	cfg     *config.AppConfig
	db      *sql.DB
	store   storage.Storage
	redis   *redis.Client
	engine  *workflow.Engine
	metrics *metrics.Workflow
	log     logrus.FieldLogger
}

// newDocumentService wires the repository, cache and service of one document kind.
func newDocumentService[C model.Content](d serviceDeps, table postgres.Table) service.DocumentService[C] {
	var docCache cache.DocumentCache[C] = cache.Noop[C]{}
	if d.redis != nil {
		docCache = cache.NewRedisDocumentCache[C](d.redis, string(table), d.cfg.Redis.TTL)
	}

	return service.NewDocumentService[C](
		postgres.NewDocumentPostgres[C](d.db, table),
		d.store,
		d.engine,
		service.Options[C]{
			Kind:          string(table),
			MaxRetries:    d.cfg.Service.MaxRetries,
			PresignExpiry: d.cfg.MinIO.PresignExpiry,
			Logger:        d.log,
			Metrics:       d.metrics,
			Cache:         docCache,
		},
	)
}
