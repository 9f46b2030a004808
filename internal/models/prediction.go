package models

import "time"

// PredictionTrend is the direction reported by the prediction API.
type PredictionTrend string

const (
	PredictionTrendImproving PredictionTrend = "improving"
	PredictionTrendStable    PredictionTrend = "stable"
	PredictionTrendDeclining PredictionTrend = "declining"
)

// PerformancePrediction is the latest stored prediction for a student subject.
type PerformancePrediction struct {
	ID                   string          `db:"id" json:"id"`
	StudentID            string          `db:"student_id" json:"student_id"`
	SubjectID            string          `db:"subject_id" json:"subject_id"`
	SubjectName          string          `db:"subject_name" json:"subject_name"`
	AcademicYear         string          `db:"academic_year" json:"academic_year"`
	Term                 int             `db:"term" json:"term"`
	CurrentPerformance   float64         `db:"current_performance" json:"current_performance"`
	CurrentAttendance    float64         `db:"current_attendance" json:"current_attendance"`
	PredictedPerformance float64         `db:"predicted_performance" json:"predicted_performance"`
	Trend                PredictionTrend `db:"prediction_trend" json:"prediction_trend"`
	Confidence           float64         `db:"confidence" json:"confidence"`
	Recommendations      *string         `db:"recommendations" json:"recommendations,omitempty"`
	PredictedAt          time.Time       `db:"predicted_at" json:"predicted_at"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// ExternalServiceStatus reports whether an external collaborator can be used.
type ExternalServiceStatus struct {
	Service   string    `json:"service"`
	Available bool      `json:"available"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}
