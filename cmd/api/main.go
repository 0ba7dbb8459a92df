package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/certify-go-api/internal/config"
	"github.com/noah-isme/certify-go-api/internal/database"
	"github.com/noah-isme/certify-go-api/internal/handler"
	"github.com/noah-isme/certify-go-api/internal/middleware"
	"github.com/noah-isme/certify-go-api/internal/models"
	"github.com/noah-isme/certify-go-api/internal/repository"
	"github.com/noah-isme/certify-go-api/internal/router"
	"github.com/noah-isme/certify-go-api/internal/service"
	cloud "github.com/noah-isme/certify-go-api/pkg/cloudinary"
	"github.com/noah-isme/certify-go-api/pkg/mailer"
	"github.com/noah-isme/certify-go-api/pkg/signnow"
	"github.com/noah-isme/certify-go-api/pkg/stripe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.CourseSection{},
		&models.CourseSubsection{},
		&models.SubsectionCompletion{},
		&models.CertificationWorkflow{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not configured, catalog caching and webhook dedupe disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats url not configured, workflow events stay node-local")
	}

	signingClient, err := signnow.New(signnow.Config{
		BaseURL:     cfg.SignNowBaseURL,
		APIKey:      cfg.SignNowAPIKey,
		TemplateID:  cfg.SignNowTemplateID,
		RedirectURL: cfg.SignNowRedirectURL,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create signnow client: %v", err)
	}

	checkoutClient, err := stripe.New(stripe.Config{
		BaseURL:    cfg.StripeBaseURL,
		SecretKey:  cfg.StripeSecretKey,
		PriceID:    cfg.StripePriceID,
		SuccessURL: cfg.StripeSuccessURL,
		CancelURL:  cfg.StripeCancelURL,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create stripe client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	courseRepo := repository.NewCourseRepository(db)
	completionRepo := repository.NewCompletionRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	userRepo := repository.NewUserRepository(db)

	var archiver service.ContractArchiver
	if cfg.CloudinaryCloudName != "" {
		cloudService, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		archiver = cloudService
	} else {
		logger.Warn().Msg("cloudinary not configured, signed contracts will not be archived")
	}

	var notifier service.DecisionNotifier
	if cfg.SendGridAPIKey != "" {
		mailService, err := mailer.New(mailer.Config{
			APIKey:    cfg.SendGridAPIKey,
			FromName:  cfg.SendGridFromName,
			FromEmail: cfg.SendGridFromEmail,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create sendgrid mailer: %v", err)
		}
		notifier = service.NewEmailDecisionNotifier(userRepo, mailService, logger)
	} else {
		notifier = service.NewLogDecisionNotifier(logger)
	}

	eventService := service.NewWorkflowEventService(redisClient, cfg.EventChannelBase, natsConn, logger)

	eventCtx, stopEvents := context.WithCancel(context.Background())
	defer stopEvents()
	eventService.Start(eventCtx)

	workflowService := service.NewWorkflowService(
		workflowRepo,
		courseRepo,
		completionRepo,
		signingClient,
		checkoutClient,
		archiver,
		notifier,
		eventService,
		validate,
		logger,
	)
	courseService := service.NewCourseService(courseRepo, completionRepo, workflowRepo, redisClient, cfg.CatalogCacheTTL, validate, logger)
	deduper := service.NewWebhookDeduper(redisClient, logger)

	courseHandler := handler.NewCourseHandler(courseService, logger)
	workflowHandler := handler.NewWorkflowHandler(workflowService, logger)
	adminHandler := handler.NewAdminReviewHandler(workflowService, eventService, logger, cfg.SSEKeepAlive)
	webhookHandler := handler.NewWebhookHandler(workflowService, deduper, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		CourseHandler:      courseHandler,
		WorkflowHandler:    workflowHandler,
		AdminReviewHandler: adminHandler,
		WebhookHandler:     webhookHandler,
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
