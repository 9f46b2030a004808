package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-attendance-api/internal/models"
)

const studentColumns = `s.id, s.student_code, s.first_name, s.last_name, s.grade_level, s.section, s.class_id, sc.name AS class_name, s.active`

// StudentFilter narrows active student listings.
type StudentFilter struct {
	ClassID    string
	GradeLevel string
	Section    string
}

// StudentRepository reads the student directory.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students s LEFT JOIN school_classes sc ON sc.id = s.class_id WHERE s.id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByCode fetches a student by the code printed on their card or tag.
func (r *StudentRepository) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students s LEFT JOIN school_classes sc ON sc.id = s.class_id WHERE s.student_code = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, strings.TrimSpace(code)); err != nil {
		return nil, err
	}
	return &student, nil
}

// CountActive counts active students, optionally scoped to a class.
func (r *StudentRepository) CountActive(ctx context.Context, classID string) (int, error) {
	query := "SELECT COUNT(*) FROM students s WHERE s.active = TRUE"
	args := []interface{}{}
	if classID != "" {
		query += " AND s.class_id = $1"
		args = append(args, classID)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count active students: %w", err)
	}
	return total, nil
}

// ListActive returns active students matching the filter ordered by name.
func (r *StudentRepository) ListActive(ctx context.Context, filter StudentFilter) ([]models.Student, error) {
	conditions := []string{"s.active = TRUE"}
	args := []interface{}{}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.GradeLevel != "" {
		conditions = append(conditions, fmt.Sprintf("s.grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.Section != "" {
		conditions = append(conditions, fmt.Sprintf("s.section = $%d", len(args)+1))
		args = append(args, filter.Section)
	}
	query := fmt.Sprintf(`SELECT %s FROM students s LEFT JOIN school_classes sc ON sc.id = s.class_id
        WHERE %s ORDER BY s.first_name, s.last_name`, studentColumns, strings.Join(conditions, " AND "))
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}

// SubjectMarks returns per-subject average marks for a student in an academic year and term.
func (r *StudentRepository) SubjectMarks(ctx context.Context, studentID, academicYear string, term int) ([]models.StudentMarkSummary, error) {
	const query = `SELECT m.student_id, m.subject_id, sub.subject_name, AVG(m.marks) AS average
        FROM marks m
        JOIN subjects sub ON sub.id = m.subject_id
        WHERE m.student_id = $1 AND m.academic_year = $2 AND m.term = $3
        GROUP BY m.student_id, m.subject_id, sub.subject_name
        ORDER BY sub.subject_name`
	var marks []models.StudentMarkSummary
	if err := r.db.SelectContext(ctx, &marks, query, studentID, academicYear, term); err != nil {
		return nil, fmt.Errorf("list subject marks: %w", err)
	}
	return marks, nil
}

// AverageMarks returns the overall mark average per student. Students without marks are omitted.
func (r *StudentRepository) AverageMarks(ctx context.Context, studentIDs []string) (map[string]float64, error) {
	result := make(map[string]float64, len(studentIDs))
	if len(studentIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT student_id, AVG(marks) AS average FROM marks WHERE student_id IN (?) GROUP BY student_id`, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("build average marks query: %w", err)
	}
	rows := []struct {
		StudentID string  `db:"student_id"`
		Average   float64 `db:"average"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("average marks: %w", err)
	}
	for _, row := range rows {
		result[row.StudentID] = row.Average
	}
	return result, nil
}
