package router

import (
	"app/internal/api/v1/handler"
	"app/internal/clock"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/pubsub"
	"app/internal/queue"
	"app/internal/repository"
	"app/internal/service"
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *sql.DB, error) {
	logger.Info().Msg("Router initialized")
	logger.Info().Str("environment", cfg.Environment).Msg("App environment loaded")

	// Open DB connection (connection pooling)
	dsn := cfg.DBConnectionString
	// In a development environment, we want to ensure that SSL is disabled for
	// local testing. In production, the connection string should be provided
	// with the correct SSL settings.
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := " "
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			if strings.Contains(dsn, "?") {
				separator = "&"
			} else {
				separator = "?"
			}
		}
		dsn += separator + "sslmode=disable"
	}
	// For non-development environments that use a transaction pooler like pgbouncer,
	// we must use the simple query protocol to avoid issues with server-side prepared statements.
	if cfg.Environment != "development" {
		if !strings.Contains(dsn, "prefer_simple_protocol") {
			separator := "&"
			if !strings.Contains(dsn, "?") {
				separator = "?"
			}
			dsn += separator + "prefer_simple_protocol=true"
		}
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Fatal().Msgf("Failed to open DB connection: %v", err)
		return nil, nil, err
	}

	if err := db.Ping(); err != nil {
		logger.Fatal().Msgf("Failed to ping DB: %v", err)
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	// Initialize S3 client
	s3Config, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		logger.Fatal().Msgf("Failed to load S3 config: %v", err)
	}
	s3Client := s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3URL)
		o.UsePathStyle = true
	})

	// Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Initialize Pub/Sub publisher
	pubSubPublisher, err := pubsub.NewPublisher(context.Background(), cfg)
	if err != nil {
		logger.Fatal().Msgf("Failed to create Pub/Sub publisher: %v", err)
		return nil, nil, err
	}

	// Initialize Secret Manager for platform tokens
	secretSvc, err := service.NewSecretManagerService(context.Background(), cfg)
	if err != nil {
		logger.Fatal().Msgf("Failed to create Secret Manager service: %v", err)
		return nil, nil, err
	}

	sysClock := clock.System()
	queueClient := queue.New(db)

	// Initialize repositories & services & handlers
	userRepo := repository.NewUserRepo(db)
	usageRepo := repository.NewUsageRepo(db)
	scheduleRepo := repository.NewScheduleRepo(db)
	eventRepo := repository.NewWebhookEventRepo(db)

	userSvc := service.NewUserService(userRepo)
	subSvc := service.NewSubscriptionService(userRepo, sysClock, logger)
	entSvc := service.NewEntitlementService(userRepo, subSvc, logger)
	usageSvc := service.NewUsageService(usageRepo, sysClock, logger)
	stripeSvc := service.NewStripeService(cfg, userRepo, subSvc, eventRepo, pubSubPublisher, logger)
	mediaSvc := service.NewMediaService(s3Client, cfg.S3Bucket, logger)
	scheduleSvc := service.NewScheduleService(cfg, scheduleRepo, queueClient, sysClock, logger)

	tokenSource := service.NewChainTokenSource(
		service.NewSecretTokenSource(secretSvc),
		service.NewStaticTokenSource(cfg),
	)
	publishers := service.NewPublisherRegistry(
		service.NewLinkedInPublisher(tokenSource, logger),
	)
	emailSender := service.NewSMTPSender(cfg)
	deliverySvc := service.NewDeliveryService(scheduleRepo, publishers, emailSender, logger)

	userHandler := handler.NewUserHandler(userSvc, validate)
	entHandler := handler.NewEntitlementHandler(entSvc, validate, logger)
	usageHandler := handler.NewUsageHandler(usageSvc, subSvc, validate, logger)
	subHandler := handler.NewSubscriptionHandler(stripeSvc, subSvc, logger)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc, mediaSvc, secretSvc, validate, logger)
	dispatchHandler := handler.NewDispatchHandler(deliverySvc, validate, logger)

	// Initialize middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)
	isLocalDev := cfg.Environment == "development"
	dispatchAuthMiddleware := middleware.DispatchAuthMiddleware(isLocalDev, cfg.DispatchSigningSecret, logger)

	// Create ServeMux router
	mux := http.NewServeMux()

	// Create a subrouter for API v1 with the /api/v1 prefix
	apiV1Mux := http.NewServeMux()
	userHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	entHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	usageHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	subHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	scheduleHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	dispatchHandler.RegisterRoutes(apiV1Mux, dispatchAuthMiddleware)

	// Mount the API v1 routes under /v1
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	// Stripe webhook lives at the root: its URL is registered with the
	// provider and verified by signature, not bearer auth.
	subHandler.RegisterWebhookRoutes(mux)

	// Redirect all other root-level requests to /v1/{path}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || strings.HasPrefix(r.URL.Path, "/webhooks/") {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/v1"+r.URL.Path, http.StatusMovedPermanently)
	})

	// Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Allow all origins for development
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	})

	return middleware.LoggerMiddleware(logger, c.Handler(mux)), db, nil
}

// removeDisableGzip is a workaround for S3 signature errors with some S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		// Only remove the middleware if it exists.
		// This makes the client more robust, especially for operations like presigned URLs
		// that might inspect the middleware stack.
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
