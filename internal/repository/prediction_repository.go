package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-attendance-api/internal/models"
)

// PredictionRepository stores the latest performance predictions per student subject.
type PredictionRepository struct {
	db *sqlx.DB
}

// NewPredictionRepository constructs the repository.
func NewPredictionRepository(db *sqlx.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Upsert replaces the prediction for (student, subject, academic year, term).
func (r *PredictionRepository) Upsert(ctx context.Context, predictions []models.PerformancePrediction) error {
	if len(predictions) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prediction upsert: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO student_performance_predictions (id, student_id, subject_id, subject_name, academic_year, term,
        current_performance, current_attendance, predicted_performance, prediction_trend, confidence, recommendations,
        predicted_at, created_at, updated_at)
        VALUES (:id, :student_id, :subject_id, :subject_name, :academic_year, :term,
        :current_performance, :current_attendance, :predicted_performance, :prediction_trend, :confidence, :recommendations,
        :predicted_at, :created_at, :updated_at)
        ON CONFLICT (student_id, subject_id, academic_year, term)
        DO UPDATE SET subject_name = EXCLUDED.subject_name, current_performance = EXCLUDED.current_performance,
        current_attendance = EXCLUDED.current_attendance, predicted_performance = EXCLUDED.predicted_performance,
        prediction_trend = EXCLUDED.prediction_trend, confidence = EXCLUDED.confidence,
        recommendations = EXCLUDED.recommendations, predicted_at = EXCLUDED.predicted_at, updated_at = EXCLUDED.updated_at`

	now := time.Now().UTC()
	for i := range predictions {
		p := &predictions[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.PredictedAt.IsZero() {
			p.PredictedAt = now
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
			return fmt.Errorf("upsert prediction for subject %s: %w", p.SubjectID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prediction upsert: %w", err)
	}
	commit = true
	return nil
}

// ListByStudent returns stored predictions, newest first, optionally for one academic year.
func (r *PredictionRepository) ListByStudent(ctx context.Context, studentID, academicYear string) ([]models.PerformancePrediction, error) {
	query := `SELECT id, student_id, subject_id, subject_name, academic_year, term, current_performance, current_attendance,
        predicted_performance, prediction_trend, confidence, recommendations, predicted_at, created_at, updated_at
        FROM student_performance_predictions WHERE student_id = $1`
	args := []interface{}{studentID}
	if academicYear != "" {
		query += " AND academic_year = $2"
		args = append(args, academicYear)
	}
	query += " ORDER BY predicted_at DESC, subject_name ASC"
	var predictions []models.PerformancePrediction
	if err := r.db.SelectContext(ctx, &predictions, query, args...); err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return predictions, nil
}
