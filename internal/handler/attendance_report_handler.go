package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-attendance-api/internal/middleware"
	"github.com/noah-isme/school-attendance-api/internal/models"
	"github.com/noah-isme/school-attendance-api/internal/service"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
	"github.com/noah-isme/school-attendance-api/pkg/response"
)

type attendanceReportService interface {
	DailyStatistics(ctx context.Context, date time.Time, classID string) (*models.DailyStatistics, bool, error)
	RangeReport(ctx context.Context, req service.AttendanceReportRequest) ([]models.AttendanceReportRow, *models.Pagination, error)
	ExportRangeReport(ctx context.Context, req service.ExportReportRequest) (*service.ExportResult, error)
	StudentAttendancePercentage(ctx context.Context, studentID, startDate, endDate string) (*models.StudentAttendancePercentage, error)
	Today() time.Time
}

type exportResolver interface {
	Resolve(token string) (*os.File, string, error)
}

// AttendanceReportHandler exposes statistics, range reports and exports.
type AttendanceReportHandler struct {
	reports attendanceReportService
	exports exportResolver
}

// NewAttendanceReportHandler constructs the handler.
func NewAttendanceReportHandler(reports attendanceReportService, exports exportResolver) *AttendanceReportHandler {
	return &AttendanceReportHandler{reports: reports, exports: exports}
}

// Statistics godoc
// @Summary Daily attendance statistics
// @Description Students without a record for the day are counted as absent.
// @Tags Attendance Reports
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Param class_id query string false "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/statistics [get]
func (h *AttendanceReportHandler) Statistics(c *gin.Context) {
	date, err := parseDateParam(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	day := h.reports.Today()
	if date != nil {
		day = *date
	}
	stats, cacheHit, err := h.reports.DailyStatistics(c.Request.Context(), day, c.Query("class_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil, middleware.CacheMeta(c, cacheHit))
}

// Report godoc
// @Summary Attendance report for a date range
// @Tags Attendance Reports
// @Produce json
// @Param start_date query string true "Start date (YYYY-MM-DD)"
// @Param end_date query string true "End date (YYYY-MM-DD)"
// @Param class_id query string false "Class ID"
// @Param status query string false "present, late, absent or excused"
// @Param page query int false "Page (1-100000)"
// @Param page_size query int false "Page size, at most 200"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/report [get]
func (h *AttendanceReportHandler) Report(c *gin.Context) {
	var req service.AttendanceReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid report query"))
		return
	}
	rows, pagination, err := h.reports.RangeReport(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Export godoc
// @Summary Export an attendance report
// @Description Renders the range report as CSV or PDF and returns a signed download link.
// @Tags Attendance Reports
// @Accept json
// @Produce json
// @Param payload body service.ExportReportRequest true "Export payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/report/export [post]
func (h *AttendanceReportHandler) Export(c *gin.Context) {
	var req service.ExportReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	result, err := h.reports.ExportRangeReport(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download an exported report
// @Tags Attendance Reports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/exports/{token} [get]
func (h *AttendanceReportHandler) Download(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "exports not configured"))
		return
	}
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, relPath, err := h.exports.Resolve(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filepath.Base(relPath)))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), exportContentType(relPath), file, nil)
}

// StudentPercentage godoc
// @Summary Attendance percentage for one student
// @Description Attended days over weekdays in the range. Defaults to the last 30 days.
// @Tags Attendance Reports
// @Produce json
// @Param id path string true "Student ID"
// @Param start_date query string false "Start date (YYYY-MM-DD)"
// @Param end_date query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/student/{id}/percentage [get]
func (h *AttendanceReportHandler) StudentPercentage(c *gin.Context) {
	result, err := h.reports.StudentAttendancePercentage(c.Request.Context(), c.Param("id"), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func exportContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
