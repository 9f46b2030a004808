package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-attendance-api/internal/models"
)

var attendanceRowColumns = []string{"id", "student_id", "attendance_date", "check_in_time", "check_out_time", "duration_minutes",
	"status", "is_late", "device_id", "nfc_tag_id", "remarks", "recorded_by", "temperature", "created_at", "updated_at"}

func TestAttendanceRepositoryFindForUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	checkIn := time.Date(2024, 3, 4, 8, 10, 0, 0, time.UTC)
	rows := sqlmock.NewRows(attendanceRowColumns).
		AddRow("rec-1", "stu-1", date, checkIn, nil, nil, "late", true, "manual", nil, nil, "user-1", nil, checkIn, checkIn)
	mock.ExpectQuery(`SELECT .* FROM attendance_records ar WHERE ar.student_id = \$1 AND ar.attendance_date = \$2 FOR UPDATE`).
		WithArgs("stu-1", date).
		WillReturnRows(rows)

	record, err := repo.FindForUpdate(context.Background(), nil, "stu-1", date)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusLate, record.Status)
	assert.True(t, record.IsLate)
	require.NotNil(t, record.CheckInTime)
	assert.Nil(t, record.CheckOutTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFindForUpdateNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(`FROM attendance_records ar WHERE`).WillReturnRows(sqlmock.NewRows(attendanceRowColumns))

	_, err := repo.FindForUpdate(context.Background(), nil, "stu-1", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAttendanceRepositoryInsertMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance_records").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Insert(context.Background(), nil, &models.AttendanceRecord{StudentID: "stu-1", Status: models.AttendanceStatusPresent})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance_records").WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.AttendanceRecord{StudentID: "stu-1", Status: models.AttendanceStatusPresent}
	require.NoError(t, repo.Insert(context.Background(), nil, record))
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestAttendanceRepositoryUpdateNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("UPDATE attendance_records SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), nil, &models.AttendanceRecord{ID: "missing"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAttendanceRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	status := models.AttendanceStatusAbsent
	columns := append(append([]string{}, attendanceRowColumns...), "student_code", "student_name", "grade_level", "class_id", "class_name")
	rows := sqlmock.NewRows(columns).
		AddRow("rec-1", "stu-1", start, nil, nil, nil, "absent", false, "manual", nil, "Manually marked absent", "user-1", nil, start, start, "S001", "Ada Lovelace", "10", "class-1", "10-A")
	mock.ExpectQuery(`WHERE ar.attendance_date >= \$1 AND ar.attendance_date <= \$2 AND s.class_id = \$3 AND ar.status = \$4\s+ORDER BY ar.attendance_date ASC, student_name ASC, ar.id ASC$`).
		WithArgs(start, end, "class-1", status).
		WillReturnRows(rows)

	result, total, err := repo.List(context.Background(), models.AttendanceReportFilter{StartDate: start, EndDate: end, ClassID: "class-1", Status: &status})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Ada Lovelace", result[0].StudentName)
	assert.Equal(t, models.AttendanceStatusAbsent, result[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListPagesInSQL(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	columns := append(append([]string{}, attendanceRowColumns...), "student_code", "student_name", "grade_level", "class_id", "class_name")
	mock.ExpectQuery(`ORDER BY ar.attendance_date ASC, student_name ASC, ar.id ASC LIMIT 25 OFFSET 50$`).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("rec-51", "stu-9", start, nil, nil, nil, "absent", false, "manual", nil, nil, "user-1", nil, start, start, "S009", "Grace Hopper", "10", "class-1", "10-A"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM attendance_records ar`).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(51))

	result, total, err := repo.List(context.Background(), models.AttendanceReportFilter{StartDate: start, EndDate: end, Page: 3, PageSize: 25})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, 51, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT ar.status, COUNT\(\*\) AS cnt`).
		WithArgs(date).
		WillReturnRows(sqlmock.NewRows([]string{"status", "cnt"}).AddRow("present", 7).AddRow("late", 2))

	counts, err := repo.CountByStatus(context.Background(), date, "")
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, 7, counts[0].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryAttendedDates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT DISTINCT attendance_date FROM attendance_records`).
		WithArgs("stu-1", start, end, models.AttendanceStatusPresent, models.AttendanceStatusLate).
		WillReturnRows(sqlmock.NewRows([]string{"attendance_date"}).AddRow(start).AddRow(end))

	dates, err := repo.AttendedDates(context.Background(), "stu-1", start, end)
	require.NoError(t, err)
	assert.Len(t, dates, 2)
}
