package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lessonbook-api/api/swagger"
	"github.com/noah-isme/lessonbook-api/internal/handler"
	"github.com/noah-isme/lessonbook-api/internal/middleware"
	"github.com/noah-isme/lessonbook-api/internal/repository"
	"github.com/noah-isme/lessonbook-api/internal/service"
	"github.com/noah-isme/lessonbook-api/pkg/cache"
	"github.com/noah-isme/lessonbook-api/pkg/config"
	"github.com/noah-isme/lessonbook-api/pkg/database"
	"github.com/noah-isme/lessonbook-api/pkg/jobs"
	"github.com/noah-isme/lessonbook-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lessonbook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lessonbook-api/pkg/middleware/requestid"
	"github.com/noah-isme/lessonbook-api/pkg/storage"
)

// @title Lessonbook API
// @version 1.0.0
// @description Lesson booking with enrollment and credit ledger
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		if err := database.MigrateUp(cfg.Database, logr); err != nil {
			logr.Fatal("migrations failed", zap.Error(err))
		}
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, lesson cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Lessons.CacheTTL, logr, cfg.Lessons.CacheEnabled)

	store := repository.NewBookingStore(repository.NewTransactor(db, cfg.Database.LockTimeout))
	lessonRepo := repository.NewLessonRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	statementRepo := repository.NewStatementRepository(db)

	retrier := service.NewRetrier(cfg.Booking.RetryDelay, logr)

	authSvc := service.NewAuthService(studentRepo, teacherRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	lessonSvc := service.NewLessonService(store, lessonRepo, cacheSvc, retrier, metrics, cfg.Lessons.CacheTTL, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(store, enrollmentRepo, lessonRepo, studentRepo, cacheSvc, retrier, metrics, nil, logr)
	ledgerSvc := service.NewLedgerService(ledgerRepo, studentRepo, logr)
	paymentSvc := service.NewPaymentService(store, retrier, metrics, nil, logr)
	webhookSvc := service.NewStripeWebhookService(paymentSvc, cfg.Payments.StripeWebhookSecret, logr)

	files, err := storage.NewLocalStorage(cfg.Statements.StorageDir)
	if err != nil {
		logr.Fatal("statement storage unavailable", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Statements.SignedURLSecret, cfg.Statements.SignedURLTTL)
	exporter := service.NewStatementExporter(ledgerRepo, studentRepo, files, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Statements.SignedURLTTL,
	}, logr)
	worker := service.NewStatementWorker(statementRepo, exporter, logr)
	queue := jobs.NewQueue("statements", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Statements.WorkerConcurrency,
		MaxRetries: cfg.Statements.WorkerRetries,
		Logger:     logr,
		OnFailure:  worker.MarkFailed,
	})
	statementSvc := service.NewStatementService(statementRepo, studentRepo, queue, exporter, nil, logr, service.StatementServiceConfig{
		Enabled:         cfg.Statements.Enabled,
		ResultTTL:       cfg.Statements.SignedURLTTL,
		CleanupInterval: cfg.Statements.CleanupInterval,
	})
	if cfg.Statements.Enabled {
		queue.Start(ctx)
		defer queue.Stop()
		statementSvc.RecoverPendingJobs(ctx)
		statementSvc.StartCleanup(ctx)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/metrics"))
	r.Use(middleware.ResponseMeta())

	ops := handler.NewMetricsHandler(metrics, db)
	r.GET("/metrics", ops.Prometheus)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), handlers{
		auth:        handler.NewAuthHandler(authSvc),
		lessons:     handler.NewLessonHandler(lessonSvc),
		enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		ledger:      handler.NewLedgerHandler(ledgerSvc),
		payments:    handler.NewPaymentHandler(paymentSvc, webhookSvc),
		statements:  handler.NewStatementHandler(statementSvc),
	}, routeGuards{
		tokens:        authSvc,
		internalToken: cfg.Payments.InternalToken,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
		os.Exit(1)
	}
}
