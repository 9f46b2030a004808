package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/school-attendance-api/api/swagger"
	"github.com/noah-isme/school-attendance-api/internal/handler"
	"github.com/noah-isme/school-attendance-api/internal/mlclient"
	"github.com/noah-isme/school-attendance-api/internal/nfc"
	"github.com/noah-isme/school-attendance-api/internal/repository"
	"github.com/noah-isme/school-attendance-api/internal/service"
	"github.com/noah-isme/school-attendance-api/pkg/cache"
	"github.com/noah-isme/school-attendance-api/pkg/config"
	"github.com/noah-isme/school-attendance-api/pkg/database"
	"github.com/noah-isme/school-attendance-api/pkg/export"
	"github.com/noah-isme/school-attendance-api/pkg/jobs"
	"github.com/noah-isme/school-attendance-api/pkg/logger"
	"github.com/noah-isme/school-attendance-api/pkg/storage"
)

// @title School Attendance API
// @version 1.0.0
// @description Attendance tracking, reporting and NFC check-in for schools
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const (
	shutdownTimeout = 15 * time.Second
	exportCleanup   = 30 * time.Minute
)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	cutoff, err := cfg.Attendance.Cutoff()
	if err != nil {
		return err
	}
	location, err := cfg.Attendance.Location()
	if err != nil {
		return err
	}
	settings := service.AttendanceSettings{Location: location, LateCutoff: cutoff}
	validate := validator.New()
	metrics := service.NewMetricsService()

	attendanceRepo := repository.NewAttendanceRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	predictionRepo := repository.NewPredictionRepository(db)
	seatingRepo := repository.NewSeatingRepository(db)
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, cfg.Attendance.StatsCacheTTL, logr, redisClient != nil)

	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("init export storage: %w", err)
	}
	exportSvc := service.NewExportService(
		store,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL},
		logr,
		export.NewCSVExporter().WithBOM(),
		export.NewPDFExporter(),
	)
	exportSvc.StartCleanup(ctx, exportCleanup)

	reader := nfc.NewHTTPReader(cfg.NFC.BridgeURL, cfg.NFC.Timeout, logr, metrics)
	predictionClient := mlclient.NewClient("prediction", cfg.Prediction.URL, cfg.Prediction.Timeout, logr, metrics,
		mlclient.WithHealthFunc(mlclient.RequireHealthyStatus))
	seatingClient := mlclient.NewClient("seating", cfg.Seating.URL, cfg.Seating.Timeout, logr, metrics)

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, db, settings, validate, logr,
		service.WithTagReader(reader),
		service.WithAttendanceAudit(auditRepo),
		service.WithAttendanceCache(cacheSvc),
		service.WithAttendanceMetrics(metrics),
	)
	reportSvc := service.NewAttendanceReportService(attendanceRepo, studentRepo, cacheSvc, exportSvc, settings, cfg.Attendance.StatsCacheTTL, validate, logr)
	predictionSvc := service.NewPredictionService(predictionRepo, studentRepo, reportSvc, predictionClient, cacheSvc, cfg.Prediction.CacheTTL, validate, logr)
	seatingSvc := service.NewSeatingService(seatingRepo, studentRepo, seatingClient, db, auditRepo, validate, logr)
	deviceSvc := service.NewDeviceService(reader, studentRepo, auditRepo, validate, logr)

	worker := service.NewPredictionWorker(predictionSvc, metrics, logr)
	queue := jobs.NewQueue("predictions", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Prediction.Workers,
		MaxRetries: cfg.Prediction.Retries,
		RetryDelay: 2 * time.Second,
		JobTimeout: cfg.Prediction.Timeout + 5*time.Second,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()
	predictionSvc.UseQueue(queue)

	router := newRouter(cfg, logr, routes{
		auth:       handler.NewAuthHandler(authSvc),
		attendance: handler.NewAttendanceHandler(attendanceSvc),
		reports:    handler.NewAttendanceReportHandler(reportSvc, exportSvc),
		devices:    handler.NewDeviceHandler(deviceSvc),
		prediction: handler.NewPredictionHandler(predictionSvc),
		seating:    handler.NewSeatingHandler(seatingSvc),
		metrics: handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
			"database": database.ReadinessCheck(db),
			"redis":    cache.ReadinessCheck(redisClient),
		}),
	}, guards{
		tokens:     authSvc,
		audit:      auditRepo,
		metrics:    metrics,
		deviceKeys: cfg.NFC.DeviceKeys,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
