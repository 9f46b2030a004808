package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/school-attendance-api/internal/models"
)

// ErrDuplicateKey is returned when an insert collides with a unique constraint.
var ErrDuplicateKey = errors.New("duplicate key")

const uniqueViolation = "23505"

const attendanceColumns = `ar.id, ar.student_id, ar.attendance_date, ar.check_in_time, ar.check_out_time, ar.duration_minutes,
        ar.status, ar.is_late, ar.device_id, ar.nfc_tag_id, ar.remarks, ar.recorded_by, ar.temperature, ar.created_at, ar.updated_at`

// AttendanceRepository persists the per-student daily attendance rows.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func (r *AttendanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindForUpdate loads and locks the student's row for the date. Returns sql.ErrNoRows when absent.
func (r *AttendanceRepository) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, studentID string, date time.Time) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records ar WHERE ar.student_id = $1 AND ar.attendance_date = $2 FOR UPDATE`, attendanceColumns)
	var record models.AttendanceRecord
	if err := sqlx.GetContext(ctx, r.exec(exec), &record, query, studentID, date); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByStudentAndDate loads the student's row for the date without locking.
func (r *AttendanceRepository) FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records ar WHERE ar.student_id = $1 AND ar.attendance_date = $2`, attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, date); err != nil {
		return nil, err
	}
	return &record, nil
}

// Insert stores a new record. A collision on (student_id, attendance_date) yields ErrDuplicateKey.
func (r *AttendanceRepository) Insert(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) error {
	if record == nil {
		return fmt.Errorf("attendance record is nil")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO attendance_records (id, student_id, attendance_date, check_in_time, check_out_time, duration_minutes,
        status, is_late, device_id, nfc_tag_id, remarks, recorded_by, temperature, created_at, updated_at)
        VALUES (:id, :student_id, :attendance_date, :check_in_time, :check_out_time, :duration_minutes,
        :status, :is_late, :device_id, :nfc_tag_id, :remarks, :recorded_by, :temperature, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, record); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

// Update overwrites the mutable columns of an existing record.
func (r *AttendanceRepository) Update(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) error {
	if record == nil {
		return fmt.Errorf("attendance record is nil")
	}
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendance_records SET check_in_time = :check_in_time, check_out_time = :check_out_time,
        duration_minutes = :duration_minutes, status = :status, is_late = :is_late, device_id = :device_id,
        nfc_tag_id = :nfc_tag_id, remarks = :remarks, recorded_by = :recorded_by, temperature = :temperature,
        updated_at = :updated_at WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, record)
	if err != nil {
		return fmt.Errorf("update attendance record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("attendance record rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns records joined with student details, ordered by date then
// student name, plus the number of matching records. A positive PageSize
// limits the result to that page.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceReportFilter) ([]models.AttendanceReportRow, int, error) {
	where := []string{"ar.attendance_date >= $1", "ar.attendance_date <= $2"}
	args := []interface{}{filter.StartDate, filter.EndDate}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("ar.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	base := fmt.Sprintf(`FROM attendance_records ar
        JOIN students s ON s.id = ar.student_id
        LEFT JOIN school_classes sc ON sc.id = s.class_id
        WHERE %s`, strings.Join(where, " AND "))
	query := fmt.Sprintf(`SELECT %s,
        s.student_code, CONCAT_WS(' ', s.first_name, s.last_name) AS student_name, s.grade_level, s.class_id, sc.name AS class_name
        %s
        ORDER BY ar.attendance_date ASC, student_name ASC, ar.id ASC`, attendanceColumns, base)
	if filter.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.PageSize, filter.Offset())
	}

	var rows []models.AttendanceReportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}
	if filter.PageSize <= 0 {
		return rows, len(rows), nil
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}
	return rows, total, nil
}

// ListForDate returns the day's records, latest check-ins first.
func (r *AttendanceRepository) ListForDate(ctx context.Context, date time.Time, classID string) ([]models.AttendanceReportRow, error) {
	where := []string{"ar.attendance_date = $1"}
	args := []interface{}{date}
	if classID != "" {
		where = append(where, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, classID)
	}
	query := fmt.Sprintf(`SELECT %s,
        s.student_code, CONCAT_WS(' ', s.first_name, s.last_name) AS student_name, s.grade_level, s.class_id, sc.name AS class_name
        FROM attendance_records ar
        JOIN students s ON s.id = ar.student_id
        LEFT JOIN school_classes sc ON sc.id = s.class_id
        WHERE %s
        ORDER BY ar.check_in_time DESC NULLS LAST, student_name ASC`, attendanceColumns, strings.Join(where, " AND "))
	var rows []models.AttendanceReportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance for date: %w", err)
	}
	return rows, nil
}

// CountByStatus groups the day's records of active students by status.
func (r *AttendanceRepository) CountByStatus(ctx context.Context, date time.Time, classID string) ([]models.AttendanceStatusCount, error) {
	where := []string{"ar.attendance_date = $1", "s.active = TRUE"}
	args := []interface{}{date}
	if classID != "" {
		where = append(where, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, classID)
	}
	query := fmt.Sprintf(`SELECT ar.status, COUNT(*) AS cnt
        FROM attendance_records ar
        JOIN students s ON s.id = ar.student_id
        WHERE %s
        GROUP BY ar.status`, strings.Join(where, " AND "))
	var rows []models.AttendanceStatusCount
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count attendance by status: %w", err)
	}
	return rows, nil
}

// AttendedDates returns the distinct dates within the range on which the student was present or late.
func (r *AttendanceRepository) AttendedDates(ctx context.Context, studentID string, start, end time.Time) ([]time.Time, error) {
	const query = `SELECT DISTINCT attendance_date FROM attendance_records
        WHERE student_id = $1 AND attendance_date >= $2 AND attendance_date <= $3 AND status IN ($4, $5)
        ORDER BY attendance_date`
	var dates []time.Time
	if err := r.db.SelectContext(ctx, &dates, query, studentID, start, end, models.AttendanceStatusPresent, models.AttendanceStatusLate); err != nil {
		return nil, fmt.Errorf("list attended dates: %w", err)
	}
	return dates, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
