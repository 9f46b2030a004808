package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-attendance-api/internal/models"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
	"github.com/noah-isme/school-attendance-api/pkg/export"
)

const defaultPercentageWindow = 30 * 24 * time.Hour

type attendanceReportStore interface {
	List(ctx context.Context, filter models.AttendanceReportFilter) ([]models.AttendanceReportRow, int, error)
	CountByStatus(ctx context.Context, date time.Time, classID string) ([]models.AttendanceStatusCount, error)
	AttendedDates(ctx context.Context, studentID string, start, end time.Time) ([]time.Time, error)
}

type reportStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	CountActive(ctx context.Context, classID string) (int, error)
}

type reportExporter interface {
	Render(ctx context.Context, name string, dataset export.Dataset, title string, format ExportFormat) (*ExportResult, error)
}

// AttendanceReportRequest scopes a date-range report.
type AttendanceReportRequest struct {
	StartDate string `json:"start_date" form:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" form:"end_date" validate:"required,datetime=2006-01-02"`
	ClassID   string `json:"class_id" form:"class_id" validate:"omitempty,max=64"`
	Status    string `json:"status" form:"status" validate:"omitempty,attendance_status"`
	Page      int    `json:"-" form:"page" validate:"omitempty,min=1,max=100000"`
	PageSize  int    `json:"-" form:"page_size" validate:"omitempty,min=1"`
}

// ExportReportRequest renders a range report to a downloadable file.
type ExportReportRequest struct {
	AttendanceReportRequest
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}

// AttendanceReportService aggregates attendance records into statistics and reports.
type AttendanceReportService struct {
	records   attendanceReportStore
	students  reportStudentReader
	cache     *CacheService
	exporter  reportExporter
	validator *validator.Validate
	logger    *zap.Logger
	location  *time.Location
	statsTTL  time.Duration
	now       func() time.Time
}

// NewAttendanceReportService constructs the report aggregator.
func NewAttendanceReportService(records attendanceReportStore, students reportStudentReader, cache *CacheService, exporter reportExporter, settings AttendanceSettings, statsTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AttendanceReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if statsTTL <= 0 {
		statsTTL = time.Minute
	}
	svc := &AttendanceReportService{
		records:   records,
		students:  students,
		cache:     cache,
		exporter:  exporter,
		validator: validate,
		logger:    logger,
		location:  settings.Location,
		statsTTL:  statsTTL,
		now:       time.Now,
	}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	return svc
}

// DailyStatistics summarises one day. Students without a record count as absent.
// The boolean reports whether the result was served from cache.
func (s *AttendanceReportService) DailyStatistics(ctx context.Context, date time.Time, classID string) (*models.DailyStatistics, bool, error) {
	day := calendarDate(date)
	classID = strings.TrimSpace(classID)

	var stats models.DailyStatistics
	hit, err := s.cache.Remember(ctx, statsCacheKey(day.Format(dateLayout), classID), s.statsTTL, &stats, func(ctx context.Context) error {
		computed, err := s.computeDaily(ctx, day, classID)
		if err != nil {
			return err
		}
		stats = *computed
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &stats, hit, nil
}

func (s *AttendanceReportService) computeDaily(ctx context.Context, day time.Time, classID string) (*models.DailyStatistics, error) {
	total, err := s.students.CountActive(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	counts, err := s.records.CountByStatus(ctx, day, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attendance")
	}

	stats := &models.DailyStatistics{Date: day.Format(dateLayout), TotalExpected: total}
	if classID != "" {
		stats.ClassID = &classID
	}
	for _, c := range counts {
		switch c.Status {
		case models.AttendanceStatusPresent:
			stats.PresentCount += c.Count
		case models.AttendanceStatusLate:
			stats.LateCount += c.Count
		case models.AttendanceStatusAbsent:
			stats.RecordedAbsentCount += c.Count
		case models.AttendanceStatusExcused:
			stats.ExcusedCount += c.Count
		}
	}
	recorded := stats.PresentCount + stats.LateCount + stats.RecordedAbsentCount + stats.ExcusedCount
	if total > recorded {
		stats.UnrecordedCount = total - recorded
	}
	stats.AbsentCount = stats.RecordedAbsentCount + stats.ExcusedCount + stats.UnrecordedCount
	if total > 0 {
		stats.PercentagePresent = round2(float64(stats.PresentCount+stats.LateCount) / float64(total) * 100)
	}
	return stats, nil
}

// RangeReport returns one page of records between two dates, ordered by date then student name.
func (s *AttendanceReportService) RangeReport(ctx context.Context, req AttendanceReportRequest) ([]models.AttendanceReportRow, *models.Pagination, error) {
	filter, err := s.reportFilter(req)
	if err != nil {
		return nil, nil, err
	}
	filter.Page, filter.PageSize = req.Page, req.PageSize
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = models.DefaultPageSize
	}
	if filter.PageSize > models.MaxPageSize {
		filter.PageSize = models.MaxPageSize
	}
	rows, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance report")
	}
	if rows == nil {
		rows = []models.AttendanceReportRow{}
	}
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// ExportRangeReport renders the range report as CSV or PDF.
func (s *AttendanceReportService) ExportRangeReport(ctx context.Context, req ExportReportRequest) (*ExportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	if s.exporter == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "exports are not configured")
	}
	filter, err := s.reportFilter(req.AttendanceReportRequest)
	if err != nil {
		return nil, err
	}
	rows, _, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance report")
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Student Code", "Student Name", "Class", "Status", "Check In", "Check Out", "Duration (min)", "Remarks"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":           row.AttendanceDate.Format(dateLayout),
			"Student Code":   row.StudentCode,
			"Student Name":   row.StudentName,
			"Class":          deref(row.ClassName),
			"Status":         string(row.Status),
			"Check In":       s.clock(row.CheckInTime),
			"Check Out":      s.clock(row.CheckOutTime),
			"Duration (min)": minutes(row.DurationMinutes),
			"Remarks":        deref(row.Remarks),
		})
	}
	title := fmt.Sprintf("Attendance Report %s to %s", req.StartDate, req.EndDate)
	name := fmt.Sprintf("attendance_%s_%s", req.StartDate, req.EndDate)
	result, err := s.exporter.Render(ctx, name, dataset, title, ExportFormat(req.Format))
	if err != nil {
		return nil, err
	}
	s.logger.Info("attendance report exported",
		zap.String("export_id", result.ID),
		zap.String("format", req.Format),
		zap.Int("rows", result.Rows),
	)
	return result, nil
}

// StudentAttendancePercentage computes attended weekdays over school weekdays in a range.
// Empty bounds default to the last 30 days ending today.
func (s *AttendanceReportService) StudentAttendancePercentage(ctx context.Context, studentID, startDate, endDate string) (*models.StudentAttendancePercentage, error) {
	studentID = strings.TrimSpace(studentID)
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	today := calendarDate(s.now().In(s.location))
	end, err := parseOptionalDate(endDate, today)
	if err != nil {
		return nil, err
	}
	start, err := parseOptionalDate(startDate, end.Add(-defaultPercentageWindow))
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}

	dates, err := s.records.AttendedDates(ctx, studentID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	attended := 0
	for _, d := range dates {
		if isWeekday(d) {
			attended++
		}
	}
	schoolDays := countWeekdays(start, end)

	result := &models.StudentAttendancePercentage{
		StudentID:    studentID,
		StartDate:    start.Format(dateLayout),
		EndDate:      end.Format(dateLayout),
		SchoolDays:   schoolDays,
		AttendedDays: attended,
	}
	if schoolDays > 0 {
		result.Percentage = round2(float64(attended) / float64(schoolDays) * 100)
	}
	return result, nil
}

// Today returns the current school-local date.
func (s *AttendanceReportService) Today() time.Time {
	return calendarDate(s.now().In(s.location))
}

func (s *AttendanceReportService) reportFilter(req AttendanceReportRequest) (models.AttendanceReportFilter, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.AttendanceReportFilter{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report range")
	}
	start, _ := time.Parse(dateLayout, req.StartDate)
	end, _ := time.Parse(dateLayout, req.EndDate)
	if end.Before(start) {
		return models.AttendanceReportFilter{}, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	filter := models.AttendanceReportFilter{StartDate: start, EndDate: end, ClassID: strings.TrimSpace(req.ClassID)}
	if req.Status != "" {
		status := models.AttendanceStatus(strings.ToLower(req.Status))
		filter.Status = &status
	}
	return filter, nil
}

func (s *AttendanceReportService) clock(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.In(s.location).Format("15:04")
}

func parseOptionalDate(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "dates must be YYYY-MM-DD")
	}
	return parsed, nil
}

const secondsPerDay = 24 * 60 * 60

func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// countWeekdays counts Monday to Friday dates in [start, end] in constant time.
func countWeekdays(start, end time.Time) int {
	start, end = calendarDate(start), calendarDate(end)
	if end.Before(start) {
		return 0
	}
	days := int((end.Unix()-start.Unix())/secondsPerDay) + 1
	count := days / 7 * 5
	first := start.Weekday()
	for i := 0; i < days%7; i++ {
		if wd := (first + time.Weekday(i)) % 7; wd != time.Saturday && wd != time.Sunday {
			count++
		}
	}
	return count
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func minutes(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
