package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/salesdesk/crm-api/internal/application/opportunity"
	infrapdf "github.com/salesdesk/crm-api/internal/infrastructure/pdf"
	"github.com/salesdesk/crm-api/internal/infrastructure/postgres"
	"github.com/salesdesk/crm-api/internal/infrastructure/session"
	"github.com/salesdesk/crm-api/internal/infrastructure/storage"
	httpRouter "github.com/salesdesk/crm-api/internal/interfaces/http"
	"github.com/salesdesk/crm-api/pkg/config"
	"github.com/salesdesk/crm-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("load configuration: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("starting application")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("PostgreSQL connection")
	}
	defer pool.Close()

	oppRepo := postgres.NewOpportunityRepository(pool)
	quotationRepo := postgres.NewQuotationRepository(pool)
	contactRepo := postgres.NewContactRepository(pool)
	txRunner := postgres.NewTxRunner(pool)
	auditSink := postgres.NewAuditSink(pool)

	var blobs opportunity.BlobStore
	if cfg.Blob.Backend == "s3" {
		blobs, err = storage.NewS3Store(ctx, cfg.Blob.Bucket, cfg.Blob.Region)
		if err != nil {
			log.Fatal().Err(err).Msg("S3 blob store")
		}
	} else {
		blobs, err = storage.NewFSStore(cfg.Blob.BaseDir)
		if err != nil {
			log.Fatal().Err(err).Msg("filesystem blob store")
		}
	}

	pdfGenerator := infrapdf.NewMarotoQuotationGenerator()
	sessions := session.NewJWTStore(cfg.JWT.Secret, cfg.App.TestMode)
	if cfg.App.TestMode {
		log.Warn().Msg("test mode enabled: synthetic test_ tokens are accepted")
	}

	oppService := opportunity.NewService(txRunner, oppRepo, contactRepo, auditSink, blobs, log)
	quotationService := opportunity.NewQuotationService(
		txRunner, oppRepo, quotationRepo, pdfGenerator, blobs, auditSink, log,
	)
	analyticsService := opportunity.NewAnalyticsService(oppRepo)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI in local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "CRM API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Opportunities: oppService,
		Quotations:    quotationService,
		Analytics:     analyticsService,
		Sessions:      sessions,
		Validate:      validator.New(),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received, stopping server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}

	log.Info().Msg("application stopped")
}
