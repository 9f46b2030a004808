package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-attendance-api/internal/models"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
	"github.com/noah-isme/school-attendance-api/pkg/export"
)

type fakeReportStore struct {
	counts     []models.AttendanceStatusCount
	countCalls int
	rows       []models.AttendanceReportRow
	lastFilter models.AttendanceReportFilter
	attended   []time.Time
}

func (f *fakeReportStore) List(ctx context.Context, filter models.AttendanceReportFilter) ([]models.AttendanceReportRow, int, error) {
	f.lastFilter = filter
	return f.rows, len(f.rows), nil
}

func (f *fakeReportStore) CountByStatus(ctx context.Context, date time.Time, classID string) ([]models.AttendanceStatusCount, error) {
	f.countCalls++
	return f.counts, nil
}

func (f *fakeReportStore) AttendedDates(ctx context.Context, studentID string, start, end time.Time) ([]time.Time, error) {
	var dates []time.Time
	for _, d := range f.attended {
		if !d.Before(start) && !d.After(end) {
			dates = append(dates, d)
		}
	}
	return dates, nil
}

type fakeReportStudents struct {
	active int
}

func (f fakeReportStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if id != "stu-1" {
		return nil, sql.ErrNoRows
	}
	return &models.Student{ID: id}, nil
}

func (f fakeReportStudents) CountActive(ctx context.Context, classID string) (int, error) {
	return f.active, nil
}

type capturingExporter struct {
	dataset export.Dataset
	title   string
	format  ExportFormat
}

func (c *capturingExporter) Render(ctx context.Context, name string, dataset export.Dataset, title string, format ExportFormat) (*ExportResult, error) {
	c.dataset = dataset
	c.title = title
	c.format = format
	return &ExportResult{ID: "exp-1", Format: format, Rows: len(dataset.Rows)}, nil
}

func newReportFixture(store *fakeReportStore, active int, cache *CacheService, exporter reportExporter) *AttendanceReportService {
	svc := NewAttendanceReportService(store, fakeReportStudents{active: active}, cache, exporter,
		AttendanceSettings{Location: time.UTC}, time.Minute, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestDailyStatisticsCountsOmissionsAsAbsent(t *testing.T) {
	store := &fakeReportStore{counts: []models.AttendanceStatusCount{
		{Status: models.AttendanceStatusPresent, Count: 5},
		{Status: models.AttendanceStatusLate, Count: 2},
		{Status: models.AttendanceStatusAbsent, Count: 1},
	}}
	svc := newReportFixture(store, 10, nil, nil)

	stats, _, err := svc.DailyStatistics(context.Background(), time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", stats.Date)
	assert.Equal(t, 10, stats.TotalExpected)
	assert.Equal(t, 3, stats.AbsentCount)
	assert.Equal(t, 1, stats.RecordedAbsentCount)
	assert.Equal(t, 2, stats.UnrecordedCount)
	assert.Equal(t, stats.TotalExpected, stats.PresentCount+stats.LateCount+stats.AbsentCount)
	assert.Equal(t, 70.0, stats.PercentagePresent)
	assert.Nil(t, stats.ClassID)
}

func TestDailyStatisticsOmissionMatchesExplicitAbsence(t *testing.T) {
	omitted := newReportFixture(&fakeReportStore{counts: []models.AttendanceStatusCount{
		{Status: models.AttendanceStatusPresent, Count: 3},
	}}, 4, nil, nil)
	explicit := newReportFixture(&fakeReportStore{counts: []models.AttendanceStatusCount{
		{Status: models.AttendanceStatusPresent, Count: 3},
		{Status: models.AttendanceStatusAbsent, Count: 1},
	}}, 4, nil, nil)

	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	a, _, err := omitted.DailyStatistics(context.Background(), day, "class-1")
	require.NoError(t, err)
	b, _, err := explicit.DailyStatistics(context.Background(), day, "class-1")
	require.NoError(t, err)

	assert.Equal(t, a.AbsentCount, b.AbsentCount)
	assert.Equal(t, a.PercentagePresent, b.PercentagePresent)
	assert.Equal(t, 75.0, a.PercentagePresent)
	require.NotNil(t, a.ClassID)
	assert.Equal(t, "class-1", *a.ClassID)
}

func TestDailyStatisticsExcusedIsPartOfAbsent(t *testing.T) {
	svc := newReportFixture(&fakeReportStore{counts: []models.AttendanceStatusCount{
		{Status: models.AttendanceStatusPresent, Count: 1},
		{Status: models.AttendanceStatusExcused, Count: 2},
	}}, 3, nil, nil)

	stats, _, err := svc.DailyStatistics(context.Background(), time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ExcusedCount)
	assert.Equal(t, 2, stats.AbsentCount)
	assert.Equal(t, 33.33, stats.PercentagePresent)
}

func TestDailyStatisticsWithoutStudents(t *testing.T) {
	svc := newReportFixture(&fakeReportStore{}, 0, nil, nil)

	stats, _, err := svc.DailyStatistics(context.Background(), time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	assert.Zero(t, stats.PercentagePresent)
	assert.Zero(t, stats.AbsentCount)
}

func TestDailyStatisticsUsesCache(t *testing.T) {
	store := &fakeReportStore{counts: []models.AttendanceStatusCount{{Status: models.AttendanceStatusPresent, Count: 2}}}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	svc := newReportFixture(store, 2, cache, nil)
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	first, hit, err := svc.DailyStatistics(context.Background(), day, "")
	require.NoError(t, err)
	assert.False(t, hit)
	second, hit, err := svc.DailyStatistics(context.Background(), day, "")
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.countCalls)

	require.NoError(t, cache.Invalidate(context.Background(), statsCachePattern("2024-03-04")))
	_, _, err = svc.DailyStatistics(context.Background(), day, "")
	require.NoError(t, err)
	assert.Equal(t, 2, store.countCalls)
}

func TestRangeReportBuildsFilter(t *testing.T) {
	store := &fakeReportStore{}
	svc := newReportFixture(store, 0, nil, nil)

	_, pagination, err := svc.RangeReport(context.Background(), AttendanceReportRequest{StartDate: "2024-03-01", EndDate: "2024-03-08", ClassID: "class-1", Status: "LATE"})
	require.NoError(t, err)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: models.DefaultPageSize}, pagination)
	assert.Equal(t, 0, store.lastFilter.Offset())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), store.lastFilter.StartDate)
	assert.Equal(t, "class-1", store.lastFilter.ClassID)
	require.NotNil(t, store.lastFilter.Status)
	assert.Equal(t, models.AttendanceStatusLate, *store.lastFilter.Status)
}

func TestRangeReportValidation(t *testing.T) {
	svc := newReportFixture(&fakeReportStore{}, 0, nil, nil)

	cases := []AttendanceReportRequest{
		{StartDate: "2024-03-08", EndDate: "2024-03-01"},
		{StartDate: "2024-03-01", EndDate: "2024-03-08", Status: "sleeping"},
		{StartDate: "03/01/2024", EndDate: "2024-03-08"},
		{EndDate: "2024-03-08"},
		{StartDate: "2024-03-01", EndDate: "2024-03-08", Page: 100001},
		{StartDate: "2024-03-01", EndDate: "2024-03-08", Page: -3},
	}
	for _, req := range cases {
		_, _, err := svc.RangeReport(context.Background(), req)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation), "request %+v", req)
	}
}

func TestExportRangeReportBuildsDataset(t *testing.T) {
	checkIn := time.Date(2024, 3, 4, 8, 10, 0, 0, time.UTC)
	duration := 380
	className := "10-A"
	store := &fakeReportStore{rows: []models.AttendanceReportRow{{
		AttendanceRecord: models.AttendanceRecord{
			AttendanceDate:  time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			CheckInTime:     &checkIn,
			DurationMinutes: &duration,
			Status:          models.AttendanceStatusLate,
		},
		StudentCode: "S001",
		StudentName: "Ada Lovelace",
		ClassName:   &className,
	}}}
	exporter := &capturingExporter{}
	svc := newReportFixture(store, 0, nil, exporter)

	result, err := svc.ExportRangeReport(context.Background(), ExportReportRequest{
		AttendanceReportRequest: AttendanceReportRequest{StartDate: "2024-03-04", EndDate: "2024-03-08"},
		Format:                  "pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rows)
	assert.Equal(t, ExportFormatPDF, exporter.format)
	assert.Equal(t, "Attendance Report 2024-03-04 to 2024-03-08", exporter.title)
	row := exporter.dataset.Rows[0]
	assert.Equal(t, "08:10", row["Check In"])
	assert.Equal(t, "", row["Check Out"])
	assert.Equal(t, "380", row["Duration (min)"])
	assert.Equal(t, "10-A", row["Class"])
}

func TestExportRangeReportRejectsFormat(t *testing.T) {
	svc := newReportFixture(&fakeReportStore{}, 0, nil, &capturingExporter{})

	_, err := svc.ExportRangeReport(context.Background(), ExportReportRequest{
		AttendanceReportRequest: AttendanceReportRequest{StartDate: "2024-03-04", EndDate: "2024-03-08"},
		Format:                  "docx",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestStudentAttendancePercentageCountsWeekdays(t *testing.T) {
	store := &fakeReportStore{attended: []time.Time{
		time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
	}}
	svc := newReportFixture(store, 0, nil, nil)

	result, err := svc.StudentAttendancePercentage(context.Background(), "stu-1", "2024-03-04", "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, 5, result.SchoolDays)
	assert.Equal(t, 2, result.AttendedDays)
	assert.Equal(t, 40.0, result.Percentage)
}

func TestStudentAttendancePercentageDefaultsToLast30Days(t *testing.T) {
	svc := newReportFixture(&fakeReportStore{}, 0, nil, nil)

	result, err := svc.StudentAttendancePercentage(context.Background(), "stu-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-08", result.EndDate)
	assert.Equal(t, "2024-02-07", result.StartDate)
	assert.Zero(t, result.Percentage)
}

func TestStudentAttendancePercentageWeekendOnly(t *testing.T) {
	svc := newReportFixture(&fakeReportStore{}, 0, nil, nil)

	result, err := svc.StudentAttendancePercentage(context.Background(), "stu-1", "2024-03-09", "2024-03-10")
	require.NoError(t, err)
	assert.Zero(t, result.SchoolDays)
	assert.Zero(t, result.Percentage)
}

func TestStudentAttendancePercentageUnknownStudent(t *testing.T) {
	svc := newReportFixture(&fakeReportStore{}, 0, nil, nil)

	_, err := svc.StudentAttendancePercentage(context.Background(), "ghost", "", "")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestCountWeekdaysMatchesCalendarWalk(t *testing.T) {
	walk := func(start, end time.Time) int {
		count := 0
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if isWeekday(d) {
				count++
			}
		}
		return count
	}
	base := time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC) // Monday
	for offset := 0; offset < 7; offset++ {
		start := base.AddDate(0, 0, offset)
		for length := 0; length < 30; length++ {
			end := start.AddDate(0, 0, length)
			assert.Equal(t, walk(start, end), countWeekdays(start, end), "%s..%s", start.Format(dateLayout), end.Format(dateLayout))
		}
	}
	assert.Equal(t, 0, countWeekdays(base.AddDate(0, 0, 1), base))
}

func TestCountWeekdaysWholeCalendar(t *testing.T) {
	start := time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 2608615, countWeekdays(start, end))
}
