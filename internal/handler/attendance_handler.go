package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-attendance-api/internal/models"
	"github.com/noah-isme/school-attendance-api/internal/service"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
	"github.com/noah-isme/school-attendance-api/pkg/response"
)

type attendanceService interface {
	CheckIn(ctx context.Context, req service.CheckInRequest) (*models.AttendanceRecord, error)
	CheckOut(ctx context.Context, req service.CheckOutRequest) (*models.AttendanceRecord, error)
	MarkAbsent(ctx context.Context, req service.MarkAbsenceRequest) (*models.AttendanceRecord, error)
	MarkExcused(ctx context.Context, req service.MarkAbsenceRequest) (*models.AttendanceRecord, error)
	ResolveFromTagScan(ctx context.Context, req service.TagScanRequest) (*models.ScanResult, error)
	LookupStudent(ctx context.Context, code string) (*models.StudentLookup, error)
	Today(ctx context.Context, classID string) ([]models.AttendanceReportRow, error)
}

// AttendanceHandler exposes check-in, check-out and absence endpoints.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// CheckIn godoc
// @Summary Record a manual check-in
// @Description Records the student's arrival for the school day. A second arrival on the same day is rejected.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.CheckInRequest true "Check-in payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/checkin [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check-in payload"))
		return
	}
	req.RecordedBy = claims.UserID

	record, err := h.service.CheckIn(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// CheckOut godoc
// @Summary Record a manual check-out
// @Description Records the student's departure and the minutes spent at school.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.CheckOutRequest true "Check-out payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /attendance/checkout [post]
func (h *AttendanceHandler) CheckOut(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CheckOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check-out payload"))
		return
	}
	req.RecordedBy = claims.UserID

	record, err := h.service.CheckOut(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// MarkAbsent godoc
// @Summary Mark a student absent
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkAbsenceRequest true "Absence payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/absent [post]
func (h *AttendanceHandler) MarkAbsent(c *gin.Context) {
	h.markAbsence(c, h.service.MarkAbsent)
}

// MarkExcused godoc
// @Summary Mark a student excused
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkAbsenceRequest true "Excused absence payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/excused [post]
func (h *AttendanceHandler) MarkExcused(c *gin.Context) {
	h.markAbsence(c, h.service.MarkExcused)
}

func (h *AttendanceHandler) markAbsence(c *gin.Context, mark func(context.Context, service.MarkAbsenceRequest) (*models.AttendanceRecord, error)) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.MarkAbsenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid absence payload"))
		return
	}
	req.RecordedBy = claims.UserID

	record, err := mark(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// TagScan godoc
// @Summary Resolve an NFC tag scan
// @Description Checks the student in on the first scan of the day and out on the second. Further scans are a no-op with action "none".
// @Tags Attendance
// @Accept json
// @Produce json
// @Param X-Device-Key header string true "Reader device key"
// @Param payload body service.TagScanRequest false "Scan payload. An empty student code polls the reader."
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /attendance/nfc-scan [post]
func (h *AttendanceHandler) TagScan(c *gin.Context) {
	var req service.TagScanRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scan payload"))
		return
	}

	result, err := h.service.ResolveFromTagScan(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{"message": result.Message})
}

// SearchStudent godoc
// @Summary Find a student by code
// @Tags Attendance
// @Produce json
// @Param code query string true "Student code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/search-student [get]
func (h *AttendanceHandler) SearchStudent(c *gin.Context) {
	lookup, err := h.service.LookupStudent(c.Request.Context(), c.Query("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lookup, nil)
}

// Today godoc
// @Summary List today's attendance
// @Tags Attendance
// @Produce json
// @Param class_id query string false "Class ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/today [get]
func (h *AttendanceHandler) Today(c *gin.Context) {
	rows, err := h.service.Today(c.Request.Context(), c.Query("class_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if rows == nil {
		rows = []models.AttendanceReportRow{}
	}
	response.JSON(c, http.StatusOK, rows, nil, map[string]interface{}{
		"count":        len(rows),
		"generated_at": time.Now().UTC(),
	})
}
