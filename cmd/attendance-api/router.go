package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/school-attendance-api/internal/handler"
	"github.com/noah-isme/school-attendance-api/internal/middleware"
	"github.com/noah-isme/school-attendance-api/internal/models"
	"github.com/noah-isme/school-attendance-api/internal/service"
	"github.com/noah-isme/school-attendance-api/pkg/config"
	corsmiddleware "github.com/noah-isme/school-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-attendance-api/pkg/middleware/requestid"
)

type routes struct {
	auth       *handler.AuthHandler
	attendance *handler.AttendanceHandler
	reports    *handler.AttendanceReportHandler
	devices    *handler.DeviceHandler
	prediction *handler.PredictionHandler
	seating    *handler.SeatingHandler
	metrics    *handler.MetricsHandler
}

type guards struct {
	tokens     middleware.TokenValidator
	audit      middleware.AuditWriter
	metrics    *service.MetricsService
	deviceKeys []string
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes, g guards) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(reqidmiddleware.Logging(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(g.metrics, "/health", "/ready", "/metrics"))
	r.Use(middleware.RequestTimer())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	jwt := middleware.JWT(g.tokens)
	can := middleware.RequirePermission

	auth := api.Group("/auth")
	auth.POST("/login", h.auth.Login)
	auth.GET("/me", jwt, h.auth.Me)

	attendance := api.Group("/attendance")
	attendance.POST("/nfc-scan", middleware.DeviceKey(g.deviceKeys), h.attendance.TagScan)
	attendance.GET("/exports/:token", h.reports.Download)

	secured := attendance.Group("", jwt)
	secured.POST("/checkin", can(models.PermissionRecordGate), h.attendance.CheckIn)
	secured.POST("/checkout", can(models.PermissionRecordGate), h.attendance.CheckOut)
	secured.POST("/absent", can(models.PermissionRecordAbsence), h.attendance.MarkAbsent)
	secured.POST("/excused", can(models.PermissionRecordAbsence), h.attendance.MarkExcused)
	secured.GET("/search-student", h.attendance.SearchStudent)
	secured.GET("/today", h.attendance.Today)
	secured.GET("/statistics", h.reports.Statistics)
	secured.GET("/report", h.reports.Report)
	secured.POST("/report/export", can(models.PermissionExportReports),
		middleware.Audit(g.audit, models.AuditActionAttendanceExport, "attendance_report"), h.reports.Export)
	secured.GET("/student/:id/percentage", h.reports.StudentPercentage)

	devices := api.Group("/devices/nfc", jwt, can(models.PermissionManageDevices))
	devices.GET("/status", h.devices.Status)
	devices.POST("/write", h.devices.WriteTag)

	predictions := api.Group("/predictions", jwt)
	predictions.GET("/health", h.prediction.Health)
	predictions.GET("/students/:id", h.prediction.Latest)
	predictions.POST("/students/:id", can(models.PermissionRunPredictions), h.prediction.Predict)
	predictions.POST("/classes/:id/batch", can(models.PermissionBatchPredictions),
		middleware.Audit(g.audit, models.AuditActionPredictionBatch, "class"), h.prediction.ClassBatch)

	seating := api.Group("/seating", jwt)
	seating.GET("/health", h.seating.Health)
	seating.POST("", can(models.PermissionGenerateSeating), h.seating.Generate)
	seating.GET("/active", h.seating.Active)
	seating.GET("/students/:id", h.seating.StudentSeat)

	return r
}
