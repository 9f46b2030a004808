package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// SeatingArrangement is a generated classroom layout.
type SeatingArrangement struct {
	ID              string           `db:"id" json:"id"`
	GradeLevel      string           `db:"grade_level" json:"grade_level"`
	Section         *string          `db:"section" json:"section,omitempty"`
	ClassID         *string          `db:"class_id" json:"class_id,omitempty"`
	AcademicYear    string           `db:"academic_year" json:"academic_year"`
	Term            int              `db:"term" json:"term"`
	TotalRows       int              `db:"total_rows" json:"total_rows"`
	SeatsPerRow     int              `db:"seats_per_row" json:"seats_per_row"`
	ArrangementData types.JSONText   `db:"arrangement_data" json:"arrangement_data"`
	GeneratedBy     string           `db:"generated_by" json:"generated_by"`
	GeneratedAt     time.Time        `db:"generated_at" json:"generated_at"`
	IsActive        bool             `db:"is_active" json:"is_active"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
	Seats           []SeatAssignment `db:"-" json:"seats,omitempty"`
}

// SeatAssignment places a student at a row/seat of an arrangement.
type SeatAssignment struct {
	ID            string `db:"id" json:"id"`
	ArrangementID string `db:"seating_arrangement_id" json:"seating_arrangement_id"`
	StudentID     string `db:"student_id" json:"student_id"`
	StudentName   string `db:"student_name" json:"student_name,omitempty"`
	RowNumber     int    `db:"row_number" json:"row_number"`
	SeatNumber    int    `db:"seat_number" json:"seat_number"`
	SeatPosition  string `db:"seat_position" json:"seat_position"`
}
