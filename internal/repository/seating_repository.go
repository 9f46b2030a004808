package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/school-attendance-api/internal/models"
)

const arrangementColumns = `sa.id, sa.grade_level, sa.section, sa.class_id, sa.academic_year, sa.term, sa.total_rows, sa.seats_per_row,
        sa.arrangement_data, sa.generated_by, sa.generated_at, sa.is_active, sa.created_at, sa.updated_at`

// SeatingRepository persists generated seating arrangements and their seats.
type SeatingRepository struct {
	db *sqlx.DB
}

// NewSeatingRepository constructs the repository.
func NewSeatingRepository(db *sqlx.DB) *SeatingRepository {
	return &SeatingRepository{db: db}
}

func (r *SeatingRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Deactivate clears the active flag on arrangements for the same grade, section, year and term.
func (r *SeatingRepository) Deactivate(ctx context.Context, exec sqlx.ExtContext, gradeLevel string, section *string, academicYear string, term int) error {
	const query = `UPDATE seating_arrangements SET is_active = FALSE, updated_at = $1
        WHERE grade_level = $2 AND section IS NOT DISTINCT FROM $3 AND academic_year = $4 AND term = $5 AND is_active = TRUE`
	if _, err := r.exec(exec).ExecContext(ctx, query, time.Now().UTC(), gradeLevel, section, academicYear, term); err != nil {
		return fmt.Errorf("deactivate seating arrangements: %w", err)
	}
	return nil
}

// Create inserts an arrangement row.
func (r *SeatingRepository) Create(ctx context.Context, exec sqlx.ExtContext, arrangement *models.SeatingArrangement) error {
	if arrangement.ID == "" {
		arrangement.ID = uuid.NewString()
	}
	if len(arrangement.ArrangementData) == 0 {
		arrangement.ArrangementData = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if arrangement.GeneratedAt.IsZero() {
		arrangement.GeneratedAt = now
	}
	if arrangement.CreatedAt.IsZero() {
		arrangement.CreatedAt = now
	}
	arrangement.UpdatedAt = now
	const query = `INSERT INTO seating_arrangements (id, grade_level, section, class_id, academic_year, term, total_rows, seats_per_row,
        arrangement_data, generated_by, generated_at, is_active, created_at, updated_at)
        VALUES (:id, :grade_level, :section, :class_id, :academic_year, :term, :total_rows, :seats_per_row,
        :arrangement_data, :generated_by, :generated_at, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, arrangement); err != nil {
		return fmt.Errorf("insert seating arrangement: %w", err)
	}
	return nil
}

// CreateSeats inserts the seat assignments of an arrangement.
func (r *SeatingRepository) CreateSeats(ctx context.Context, exec sqlx.ExtContext, seats []models.SeatAssignment) error {
	const query = `INSERT INTO student_seat_assignments (id, seating_arrangement_id, student_id, row_number, seat_number, seat_position)
        VALUES (:id, :seating_arrangement_id, :student_id, :row_number, :seat_number, :seat_position)`
	target := r.exec(exec)
	for i := range seats {
		if seats[i].ID == "" {
			seats[i].ID = uuid.NewString()
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, seats[i]); err != nil {
			return fmt.Errorf("insert seat assignment: %w", err)
		}
	}
	return nil
}

// FindActive returns the newest active arrangement for a grade (and section when given) with its seats.
func (r *SeatingRepository) FindActive(ctx context.Context, gradeLevel, section string) (*models.SeatingArrangement, error) {
	query := fmt.Sprintf(`SELECT %s FROM seating_arrangements sa WHERE sa.grade_level = $1 AND sa.is_active = TRUE`, arrangementColumns)
	args := []interface{}{gradeLevel}
	if section != "" {
		query += " AND sa.section = $2"
		args = append(args, section)
	}
	query += " ORDER BY sa.generated_at DESC LIMIT 1"
	var arrangement models.SeatingArrangement
	if err := r.db.GetContext(ctx, &arrangement, query, args...); err != nil {
		return nil, err
	}
	seats, err := r.listSeats(ctx, arrangement.ID)
	if err != nil {
		return nil, err
	}
	arrangement.Seats = seats
	return &arrangement, nil
}

// FindStudentSeat returns the student's seat in the newest active arrangement.
func (r *SeatingRepository) FindStudentSeat(ctx context.Context, studentID string) (*models.SeatAssignment, error) {
	const query = `SELECT ssa.id, ssa.seating_arrangement_id, ssa.student_id, CONCAT_WS(' ', s.first_name, s.last_name) AS student_name,
        ssa.row_number, ssa.seat_number, ssa.seat_position
        FROM student_seat_assignments ssa
        JOIN seating_arrangements sa ON sa.id = ssa.seating_arrangement_id
        JOIN students s ON s.id = ssa.student_id
        WHERE ssa.student_id = $1 AND sa.is_active = TRUE
        ORDER BY sa.generated_at DESC LIMIT 1`
	var seat models.SeatAssignment
	if err := r.db.GetContext(ctx, &seat, query, studentID); err != nil {
		return nil, err
	}
	return &seat, nil
}

func (r *SeatingRepository) listSeats(ctx context.Context, arrangementID string) ([]models.SeatAssignment, error) {
	const query = `SELECT ssa.id, ssa.seating_arrangement_id, ssa.student_id, CONCAT_WS(' ', s.first_name, s.last_name) AS student_name,
        ssa.row_number, ssa.seat_number, ssa.seat_position
        FROM student_seat_assignments ssa
        JOIN students s ON s.id = ssa.student_id
        WHERE ssa.seating_arrangement_id = $1
        ORDER BY ssa.row_number, ssa.seat_number`
	var seats []models.SeatAssignment
	if err := r.db.SelectContext(ctx, &seats, query, arrangementID); err != nil {
		return nil, fmt.Errorf("list seat assignments: %w", err)
	}
	return seats, nil
}
