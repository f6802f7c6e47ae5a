package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/trialportal/portal/internal/config"
	"github.com/trialportal/portal/internal/domain/audit"
	"github.com/trialportal/portal/internal/domain/trial"
	"github.com/trialportal/portal/internal/platform/auth"
	"github.com/trialportal/portal/internal/platform/blobstore"
	"github.com/trialportal/portal/internal/platform/db"
	"github.com/trialportal/portal/internal/platform/fhir"
	"github.com/trialportal/portal/internal/platform/middleware"
	"github.com/trialportal/portal/internal/platform/telemetry"
	"github.com/trialportal/portal/pkg/validation"
)

// newLogger builds the process logger: JSON in deployed environments, a
// console writer in development.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// openArchive returns the export archive store. Without MINIO_ENDPOINT the
// archive lives in process memory.
func openArchive(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (blobstore.BlobStore, error) {
	if !cfg.ArchiveEnabled() {
		logger.Warn().Msg("MINIO_ENDPOINT not set, export archive kept in memory")
		return blobstore.NewInMemoryBlobStore(), nil
	}
	client, err := blobstore.NewMinioClient(blobstore.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Bucket:    cfg.ExportBucket,
	})
	if err != nil {
		return nil, err
	}
	store, err := blobstore.NewMinioBlobStore(ctx, client, cfg.ExportBucket)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("endpoint", cfg.MinioEndpoint).Str("bucket", cfg.ExportBucket).Msg("export archive ready")
	return store, nil
}

func runServer(cfg *config.Config) error {
	logger := newLogger(cfg, os.Stdout)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Hour,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	archive, err := openArchive(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open export archive: %w", err)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewCollector("portal", reg)

	// Services
	validator := fhir.NewValidator()
	importer := fhir.NewImporter(validator, fhir.ImportOptions{StrictValidation: cfg.StrictValidation})

	auditSvc := audit.NewService(audit.NewRepoPG(pool))
	auditSvc.SetMetrics(metrics)
	auditSvc.SetArchive(archive)

	trialSvc := trial.NewService(trial.NewRepositoriesPG(pool), validator)
	trialSvc.SetMetrics(metrics)
	trialSvc.SetArchive(archive)
	trialSvc.SetTxRunner(db.ReadOnlySnapshot(pool))

	mfaSvc := auth.NewMFAService(auth.NewPGFactorStore(pool), cfg.MFAIssuer)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.ImportBodyLimit))
	if cfg.MetricsEnabled {
		e.Use(metrics.MetricsMiddleware())
	}

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthJWTSecret),
	}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	}

	rateLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})

	// Unauthenticated endpoints
	e.GET("/health", db.HealthHandler(pool))
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	// The validation functions are public and carry their own CORS policy.
	fnGroup := e.Group("/functions/v1", rateLimit)

	apiV1 := e.Group("/api/v1",
		echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:  cfg.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposeHeaders: []string{"Content-Disposition", "X-Mapping-Warnings", "X-Request-ID"},
		}),
		authMW,
		middleware.Audit(auditSvc),
		rateLimit,
	)

	fhirCORS := fhir.DefaultFHIRCORSConfig()
	fhirCORS.AllowOrigins = cfg.CORSOrigins
	fhirGroup := e.Group("/fhir",
		fhir.CORSMiddleware(fhirCORS),
		authMW,
		middleware.Audit(auditSvc),
		rateLimit,
	)

	// Exports carry identifiable data; outside development they need a
	// second factor.
	var exportMW []echo.MiddlewareFunc
	if !cfg.IsDev() {
		exportMW = append(exportMW, auth.RequireAAL2())
	}

	fhir.NewHandler(validator, importer, metrics).RegisterRoutes(fnGroup, fhirGroup)
	trial.NewHandler(trialSvc).RegisterRoutes(apiV1, fhirGroup, exportMW...)
	audit.NewHandler(auditSvc).RegisterRoutes(apiV1)
	auth.NewMFAHandler(mfaSvc, metrics).RegisterRoutes(apiV1)

	archiveGroup := apiV1.Group("", auth.RequireRole(auth.StaffRoles...))
	archiveGroup.Use(exportMW...)
	blobstore.NewBlobHandler(archive).RegisterRoutes(archiveGroup)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
