package models

import "time"

// AttendanceStatus represents the status of a student's day.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// Attended reports whether the status counts as the student being at school.
func (s AttendanceStatus) Attended() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusLate
}

// Reversible reports whether a later physical check-in may overwrite the status.
func (s AttendanceStatus) Reversible() bool {
	return s == AttendanceStatusAbsent || s == AttendanceStatusExcused
}

// Known device identifiers.
const (
	DeviceManual = "manual"
	DeviceNFC    = "nfc"
)

// AttendanceRecord is the single per-student, per-day attendance row.
type AttendanceRecord struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	AttendanceDate  time.Time        `db:"attendance_date" json:"attendance_date"`
	CheckInTime     *time.Time       `db:"check_in_time" json:"check_in_time,omitempty"`
	CheckOutTime    *time.Time       `db:"check_out_time" json:"check_out_time,omitempty"`
	DurationMinutes *int             `db:"duration_minutes" json:"duration_minutes,omitempty"`
	Status          AttendanceStatus `db:"status" json:"status"`
	IsLate          bool             `db:"is_late" json:"is_late"`
	DeviceID        string           `db:"device_id" json:"device_id"`
	NFCTagID        *string          `db:"nfc_tag_id" json:"nfc_tag_id,omitempty"`
	Remarks         *string          `db:"remarks" json:"remarks,omitempty"`
	RecordedBy      *string          `db:"recorded_by" json:"recorded_by,omitempty"`
	Temperature     *float64         `db:"temperature" json:"temperature,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// CheckedIn reports whether the record carries an arrival.
func (r *AttendanceRecord) CheckedIn() bool {
	return r != nil && r.CheckInTime != nil
}

// Completed reports whether both arrival and departure are recorded.
func (r *AttendanceRecord) Completed() bool {
	return r != nil && r.CheckInTime != nil && r.CheckOutTime != nil
}

// AttendanceReportRow extends a record with student display fields.
type AttendanceReportRow struct {
	AttendanceRecord
	StudentCode string  `db:"student_code" json:"student_code"`
	StudentName string  `db:"student_name" json:"student_name"`
	GradeLevel  *string `db:"grade_level" json:"grade_level,omitempty"`
	ClassID     *string `db:"class_id" json:"class_id,omitempty"`
	ClassName   *string `db:"class_name" json:"class_name,omitempty"`
}

// AttendanceReportFilter scopes range reports. A zero PageSize selects every row.
type AttendanceReportFilter struct {
	StartDate time.Time
	EndDate   time.Time
	ClassID   string
	Status    *AttendanceStatus
	Page      int
	PageSize  int
}

// Offset is the number of rows skipped before the requested page.
func (f AttendanceReportFilter) Offset() int {
	if f.Page < 2 || f.PageSize < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// AttendanceStatusCount is a grouped count of records by status.
type AttendanceStatusCount struct {
	Status AttendanceStatus `db:"status"`
	Count  int              `db:"cnt"`
}

// DailyStatistics summarises one school day.
type DailyStatistics struct {
	Date                string  `json:"date"`
	ClassID             *string `json:"class_id,omitempty"`
	TotalExpected       int     `json:"total_expected"`
	PresentCount        int     `json:"present_count"`
	LateCount           int     `json:"late_count"`
	AbsentCount         int     `json:"absent_count"`
	ExcusedCount        int     `json:"excused_count"`
	RecordedAbsentCount int     `json:"recorded_absent_count"`
	UnrecordedCount     int     `json:"unrecorded_count"`
	PercentagePresent   float64 `json:"percentage_present"`
}

// StudentAttendancePercentage is the attendance rate of one student over a range.
type StudentAttendancePercentage struct {
	StudentID    string  `json:"student_id"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	SchoolDays   int     `json:"school_days"`
	AttendedDays int     `json:"attended_days"`
	Percentage   float64 `json:"percentage"`
}

// ScanAction is the outcome chosen for a tag scan.
type ScanAction string

const (
	ScanActionCheckIn  ScanAction = "check_in"
	ScanActionCheckOut ScanAction = "check_out"
	ScanActionNone     ScanAction = "none"
)

// ScanResult describes what a tag scan did.
type ScanResult struct {
	Action  ScanAction        `json:"action"`
	Message string            `json:"message"`
	Student *Student          `json:"student,omitempty"`
	Record  *AttendanceRecord `json:"record,omitempty"`
}
