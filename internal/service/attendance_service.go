package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/school-attendance-api/internal/models"
	"github.com/noah-isme/school-attendance-api/internal/nfc"
	"github.com/noah-isme/school-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

const dateLayout = "2006-01-02"

const (
	defaultAbsentRemarks  = "Manually marked absent"
	defaultExcusedRemarks = "Marked as excused"
)

type attendanceRecordStore interface {
	FindForUpdate(ctx context.Context, exec sqlx.ExtContext, studentID string, date time.Time) (*models.AttendanceRecord, error)
	FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) error
	Update(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) error
	ListForDate(ctx context.Context, date time.Time, classID string) ([]models.AttendanceReportRow, error)
}

type attendanceStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByCode(ctx context.Context, code string) (*models.Student, error)
}

type auditLogWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type tagReader interface {
	ReadTag(ctx context.Context) (*nfc.TagReadResult, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// AttendanceSettings carries the school-day rules.
type AttendanceSettings struct {
	Location   *time.Location
	LateCutoff time.Duration
}

// CheckInRequest records a student's arrival.
type CheckInRequest struct {
	StudentID   string     `json:"student_id" validate:"required"`
	Timestamp   *time.Time `json:"timestamp"`
	DeviceID    string     `json:"device_id" validate:"omitempty,max=64"`
	NFCTagID    *string    `json:"nfc_tag_id" validate:"omitempty,max=64"`
	Temperature *float64   `json:"temperature" validate:"omitempty,gte=30,lte=45"`
	Remarks     *string    `json:"remarks" validate:"omitempty,max=500"`
	RecordedBy  string     `json:"-"`
}

// CheckOutRequest records a student's departure.
type CheckOutRequest struct {
	StudentID  string     `json:"student_id" validate:"required"`
	Timestamp  *time.Time `json:"timestamp"`
	Remarks    *string    `json:"remarks" validate:"omitempty,max=500"`
	RecordedBy string     `json:"-"`
}

// MarkAbsenceRequest marks a student absent or excused for a day.
type MarkAbsenceRequest struct {
	StudentID  string  `json:"student_id" validate:"required"`
	Date       string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Remarks    *string `json:"remarks" validate:"omitempty,max=500"`
	RecordedBy string  `json:"-"`
}

// TagScanRequest is a tag presented at a gate reader. When StudentCode is empty the reader is polled.
type TagScanRequest struct {
	StudentCode string     `json:"student_code" validate:"omitempty,max=50"`
	TagID       *string    `json:"tag_id" validate:"omitempty,max=64"`
	Timestamp   *time.Time `json:"timestamp"`
	DeviceID    string     `json:"device_id" validate:"omitempty,max=64"`
}

// AttendanceServiceOption configures optional collaborators.
type AttendanceServiceOption func(*AttendanceService)

// WithAttendanceClock overrides the time source.
func WithAttendanceClock(now func() time.Time) AttendanceServiceOption {
	return func(s *AttendanceService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTagReader sets the reader polled for scans that carry no student code.
func WithTagReader(reader tagReader) AttendanceServiceOption {
	return func(s *AttendanceService) { s.reader = reader }
}

// WithAttendanceAudit records manual writes to the audit trail.
func WithAttendanceAudit(audit auditLogWriter) AttendanceServiceOption {
	return func(s *AttendanceService) { s.audit = audit }
}

// WithAttendanceCache invalidates cached statistics on writes.
func WithAttendanceCache(cache *CacheService) AttendanceServiceOption {
	return func(s *AttendanceService) { s.cache = cache }
}

// WithAttendanceMetrics counts resolved events.
func WithAttendanceMetrics(metrics *MetricsService) AttendanceServiceOption {
	return func(s *AttendanceService) { s.metrics = metrics }
}

// AttendanceService resolves attendance events into the single per-student daily record.
type AttendanceService struct {
	records   attendanceRecordStore
	students  attendanceStudentReader
	tx        txProvider
	audit     auditLogWriter
	reader    tagReader
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	settings  AttendanceSettings
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(records attendanceRecordStore, students attendanceStudentReader, tx txProvider, settings AttendanceSettings, validate *validator.Validate, logger *zap.Logger, opts ...AttendanceServiceOption) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.LateCutoff <= 0 {
		settings.LateCutoff = 8 * time.Hour
	}
	svc := &AttendanceService{
		records:   records,
		students:  students,
		tx:        tx,
		validator: validate,
		logger:    logger,
		settings:  settings,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CheckIn records an arrival. A second arrival on the same day is rejected; an absent or excused mark is overwritten.
func (s *AttendanceService) CheckIn(ctx context.Context, req CheckInRequest) (record *models.AttendanceRecord, err error) {
	source := sourceOr(req.DeviceID, models.DeviceManual)
	defer func() { s.recordOutcome("check_in", source, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload")
	}
	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	ts := s.eventTime(req.Timestamp)
	date := s.schoolDate(ts)
	err = s.withinTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.lockRecord(ctx, tx, student.ID, date)
		if err != nil {
			return err
		}
		if existing.CheckedIn() {
			return appErrors.Clone(appErrors.ErrDuplicateEvent, "student already checked in today")
		}
		target := existing
		if target == nil {
			target = &models.AttendanceRecord{StudentID: student.ID, AttendanceDate: date}
		}
		s.applyCheckIn(target, ts, source, req.NFCTagID, req.Temperature, req.Remarks, req.RecordedBy)
		if err := s.save(ctx, tx, target, existing == nil); err != nil {
			return err
		}
		record = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, models.AuditActionAttendanceCheckIn, record, req.RecordedBy)
	return record, nil
}

// CheckOut records a departure for a student who is checked in and not yet checked out.
func (s *AttendanceService) CheckOut(ctx context.Context, req CheckOutRequest) (record *models.AttendanceRecord, err error) {
	defer func() { s.recordOutcome("check_out", models.DeviceManual, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-out payload")
	}
	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	ts := s.eventTime(req.Timestamp)
	date := s.schoolDate(ts)
	err = s.withinTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.lockRecord(ctx, tx, student.ID, date)
		if err != nil {
			return err
		}
		if err := applyCheckOut(existing, ts, req.Remarks); err != nil {
			return err
		}
		if err := s.save(ctx, tx, existing, false); err != nil {
			return err
		}
		record = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, models.AuditActionAttendanceOut, record, req.RecordedBy)
	return record, nil
}

// MarkAbsent marks a student absent for the day unless they already checked in.
func (s *AttendanceService) MarkAbsent(ctx context.Context, req MarkAbsenceRequest) (*models.AttendanceRecord, error) {
	return s.markAbsence(ctx, req, models.AttendanceStatusAbsent)
}

// MarkExcused marks a student excused for the day unless they already checked in.
func (s *AttendanceService) MarkExcused(ctx context.Context, req MarkAbsenceRequest) (*models.AttendanceRecord, error) {
	return s.markAbsence(ctx, req, models.AttendanceStatusExcused)
}

func (s *AttendanceService) markAbsence(ctx context.Context, req MarkAbsenceRequest, status models.AttendanceStatus) (record *models.AttendanceRecord, err error) {
	action := "mark_" + string(status)
	defer func() { s.recordOutcome(action, models.DeviceManual, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid absence payload")
	}
	date := s.schoolDate(s.now())
	if req.Date != "" {
		parsed, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be YYYY-MM-DD")
		}
		date = parsed
	}
	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	remarks := req.Remarks
	if remarks == nil || strings.TrimSpace(*remarks) == "" {
		fallback := defaultAbsentRemarks
		if status == models.AttendanceStatusExcused {
			fallback = defaultExcusedRemarks
		}
		remarks = &fallback
	}

	err = s.withinTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.lockRecord(ctx, tx, student.ID, date)
		if err != nil {
			return err
		}
		if existing.CheckedIn() {
			return appErrors.Clone(appErrors.ErrConflict, "student already checked in on this date")
		}
		target := existing
		if target == nil {
			target = &models.AttendanceRecord{StudentID: student.ID, AttendanceDate: date}
		}
		target.Status = status
		target.IsLate = false
		target.CheckInTime = nil
		target.CheckOutTime = nil
		target.DurationMinutes = nil
		target.NFCTagID = nil
		target.Temperature = nil
		target.DeviceID = models.DeviceManual
		target.Remarks = remarks
		target.RecordedBy = optionalString(req.RecordedBy)
		if err := s.save(ctx, tx, target, existing == nil); err != nil {
			return err
		}
		record = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	auditAction := models.AuditActionAttendanceAbsent
	if status == models.AttendanceStatusExcused {
		auditAction = models.AuditActionAttendanceExcused
	}
	s.afterWrite(ctx, auditAction, record, req.RecordedBy)
	return record, nil
}

// ResolveFromTagScan decides between check-in, check-out and no-op for a tag scan.
// A scan after the day is complete is a successful no-op.
func (s *AttendanceService) ResolveFromTagScan(ctx context.Context, req TagScanRequest) (result *models.ScanResult, err error) {
	source := sourceOr(req.DeviceID, models.DeviceNFC)
	defer func() {
		action := "scan"
		if result != nil {
			action = "scan_" + string(result.Action)
		}
		s.recordOutcome(action, source, err)
	}()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scan payload")
	}

	code := strings.TrimSpace(req.StudentCode)
	tagID := req.TagID
	if code == "" {
		if s.reader == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student_code is required")
		}
		read, err := s.reader.ReadTag(ctx)
		if err != nil {
			return nil, err
		}
		code = read.StudentCode
		if read.TagID != "" {
			tagID = &read.TagID
		}
		if req.DeviceID == "" && read.ReaderID != "" {
			source = read.ReaderID
		}
	}
	if tagID == nil {
		tagID = &code
	}

	student, err := s.students.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	ts := s.eventTime(req.Timestamp)
	date := s.schoolDate(ts)
	err = s.withinTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.lockRecord(ctx, tx, student.ID, date)
		if err != nil {
			return err
		}
		switch {
		case existing == nil || existing.Status.Reversible():
			target := existing
			if target == nil {
				target = &models.AttendanceRecord{StudentID: student.ID, AttendanceDate: date}
			}
			s.applyCheckIn(target, ts, source, tagID, nil, nil, "")
			if err := s.save(ctx, tx, target, existing == nil); err != nil {
				return err
			}
			result = &models.ScanResult{Action: models.ScanActionCheckIn, Message: "Student checked in successfully", Record: target}
		case existing.CheckedIn() && existing.CheckOutTime == nil:
			if err := applyCheckOut(existing, ts, nil); err != nil {
				return err
			}
			if err := s.save(ctx, tx, existing, false); err != nil {
				return err
			}
			result = &models.ScanResult{Action: models.ScanActionCheckOut, Message: "Student checked out successfully", Record: existing}
		default:
			result = &models.ScanResult{Action: models.ScanActionNone, Message: "Student already checked out today", Record: existing}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Student = student
	switch result.Action {
	case models.ScanActionCheckIn:
		s.afterWrite(ctx, models.AuditActionAttendanceCheckIn, result.Record, "")
	case models.ScanActionCheckOut:
		s.afterWrite(ctx, models.AuditActionAttendanceOut, result.Record, "")
	}
	return result, nil
}

// LookupStudent finds a student by code together with today's record.
func (s *AttendanceService) LookupStudent(ctx context.Context, code string) (*models.StudentLookup, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "code is required")
	}
	student, err := s.students.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	lookup := &models.StudentLookup{Student: *student}
	today, err := s.records.FindByStudentAndDate(ctx, student.ID, s.schoolDate(s.now()))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load today's attendance")
	}
	if err == nil {
		lookup.Today = today
	}
	return lookup, nil
}

// Today lists the current school day's records, latest arrivals first.
func (s *AttendanceService) Today(ctx context.Context, classID string) ([]models.AttendanceReportRow, error) {
	rows, err := s.records.ListForDate(ctx, s.schoolDate(s.now()), strings.TrimSpace(classID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list today's attendance")
	}
	return rows, nil
}

// SchoolDate returns the school-local calendar date of ts.
func (s *AttendanceService) SchoolDate(ts time.Time) time.Time {
	return s.schoolDate(ts)
}

func (s *AttendanceService) applyCheckIn(record *models.AttendanceRecord, ts time.Time, source string, tagID *string, temperature *float64, remarks *string, actor string) {
	late := s.isLate(ts)
	checkIn := ts
	record.CheckInTime = &checkIn
	record.CheckOutTime = nil
	record.DurationMinutes = nil
	record.IsLate = late
	record.Status = models.AttendanceStatusPresent
	if late {
		record.Status = models.AttendanceStatusLate
	}
	record.DeviceID = source
	record.NFCTagID = tagID
	record.Temperature = temperature
	record.Remarks = remarks
	record.RecordedBy = optionalString(actor)
}

func applyCheckOut(record *models.AttendanceRecord, ts time.Time, remarks *string) error {
	if !record.CheckedIn() {
		return appErrors.Clone(appErrors.ErrInvalidState, "student has not checked in today")
	}
	if record.CheckOutTime != nil {
		return appErrors.Clone(appErrors.ErrInvalidState, "student already checked out today")
	}
	if ts.Before(*record.CheckInTime) {
		return appErrors.Clone(appErrors.ErrInvalidTimestamp, "check-out time is earlier than check-in time")
	}
	checkOut := ts
	minutes := int(ts.Sub(*record.CheckInTime) / time.Minute)
	record.CheckOutTime = &checkOut
	record.DurationMinutes = &minutes
	if remarks != nil {
		record.Remarks = remarks
	}
	return nil
}

func (s *AttendanceService) loadStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *AttendanceService) lockRecord(ctx context.Context, tx *sqlx.Tx, studentID string, date time.Time) (*models.AttendanceRecord, error) {
	record, err := s.records.FindForUpdate(ctx, tx, studentID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	return record, nil
}

func (s *AttendanceService) save(ctx context.Context, tx *sqlx.Tx, record *models.AttendanceRecord, insert bool) error {
	if insert {
		if err := s.records.Insert(ctx, tx, record); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return err
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attendance record")
		}
		return nil
	}
	if err := s.records.Update(ctx, tx, record); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance record")
	}
	return nil
}

// withinTx runs fn in a transaction. A unique-key race on insert reruns fn once so it takes the update path.
func (s *AttendanceService) withinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	err := s.runTx(ctx, fn)
	if errors.Is(err, repository.ErrDuplicateKey) {
		s.logger.Info("attendance insert raced, retrying")
		err = s.runTx(ctx, fn)
		if errors.Is(err, repository.ErrDuplicateKey) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "concurrent attendance update could not be resolved")
		}
	}
	return err
}

func (s *AttendanceService) runTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return runInTx(ctx, s.tx, fn)
}

func runInTx(ctx context.Context, provider txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	if provider == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
	}
	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return nil
}

func (s *AttendanceService) afterWrite(ctx context.Context, action string, record *models.AttendanceRecord, actor string) {
	if record == nil {
		return
	}
	day := record.AttendanceDate.Format(dateLayout)
	s.logger.Info("attendance recorded",
		zap.String("action", action),
		zap.String("student_id", record.StudentID),
		zap.String("date", day),
		zap.String("status", string(record.Status)),
		zap.String("device_id", record.DeviceID),
	)
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, statsCachePattern(day))
	}
	if s.audit == nil || actor == "" {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		payload = nil
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor,
		Action:     action,
		Resource:   "attendance",
		ResourceID: &record.ID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record attendance audit log", zap.Error(err))
	}
}

func (s *AttendanceService) recordOutcome(action, source string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = strings.ToLower(appErrors.FromError(err).Code)
	}
	s.metrics.RecordAttendanceEvent(action, sourceLabel(source), outcome)
}

// sourceLabel folds device ids into a fixed label set; reader ids are client supplied.
func sourceLabel(source string) string {
	switch source {
	case models.DeviceManual, models.DeviceNFC:
		return source
	default:
		return "reader"
	}
}

func (s *AttendanceService) eventTime(ts *time.Time) time.Time {
	if ts == nil || ts.IsZero() {
		return s.now()
	}
	return *ts
}

func (s *AttendanceService) schoolDate(ts time.Time) time.Time {
	local := ts.In(s.settings.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *AttendanceService) isLate(ts time.Time) bool {
	local := ts.In(s.settings.Location)
	sinceMidnight := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	return sinceMidnight > s.settings.LateCutoff
}

func sourceOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
