package models

// Student is the subset of the student directory used by attendance.
type Student struct {
	ID          string  `db:"id" json:"id"`
	StudentCode string  `db:"student_code" json:"student_code"`
	FirstName   string  `db:"first_name" json:"first_name"`
	LastName    string  `db:"last_name" json:"last_name"`
	GradeLevel  *string `db:"grade_level" json:"grade_level,omitempty"`
	Section     *string `db:"section" json:"section,omitempty"`
	ClassID     *string `db:"class_id" json:"class_id,omitempty"`
	ClassName   *string `db:"class_name" json:"class_name,omitempty"`
	Active      bool    `db:"active" json:"active"`
}

// FullName joins first and last names.
func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// StudentLookup pairs a student with the current day's record, if any.
type StudentLookup struct {
	Student Student           `json:"student"`
	Today   *AttendanceRecord `json:"today_attendance,omitempty"`
}

// StudentMarkSummary is the per-subject average used by external collaborators.
type StudentMarkSummary struct {
	StudentID   string  `db:"student_id" json:"student_id"`
	SubjectID   string  `db:"subject_id" json:"subject_id"`
	SubjectName string  `db:"subject_name" json:"subject_name"`
	Average     float64 `db:"average" json:"average"`
}
