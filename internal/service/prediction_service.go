package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-attendance-api/internal/mlclient"
	"github.com/noah-isme/school-attendance-api/internal/models"
	"github.com/noah-isme/school-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
	"github.com/noah-isme/school-attendance-api/pkg/jobs"
)

// PredictionJobType tags queued prediction jobs.
const PredictionJobType = "student_prediction"

type predictionStore interface {
	Upsert(ctx context.Context, predictions []models.PerformancePrediction) error
	ListByStudent(ctx context.Context, studentID, academicYear string) ([]models.PerformancePrediction, error)
}

type predictionStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListActive(ctx context.Context, filter repository.StudentFilter) ([]models.Student, error)
	SubjectMarks(ctx context.Context, studentID, academicYear string, term int) ([]models.StudentMarkSummary, error)
}

type attendancePercentageSource interface {
	StudentAttendancePercentage(ctx context.Context, studentID, startDate, endDate string) (*models.StudentAttendancePercentage, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// PredictRequest selects the academic period to predict.
type PredictRequest struct {
	AcademicYear string `json:"academic_year" validate:"required,max=20"`
	Term         int    `json:"term" validate:"required,gte=1,lte=3"`
}

// PredictionBatchResult reports what a class batch enqueued.
type PredictionBatchResult struct {
	ClassID string   `json:"class_id"`
	Queued  int      `json:"queued"`
	JobIDs  []string `json:"job_ids"`
}

type predictionJobPayload struct {
	StudentID string
	Request   PredictRequest
}

// PredictionService requests performance predictions from the model service and stores them.
type PredictionService struct {
	predictions predictionStore
	students    predictionStudentReader
	attendance  attendancePercentageSource
	model       mlclient.Service
	queue       jobDispatcher
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	cacheTTL    time.Duration
	now         func() time.Time
}

// NewPredictionService constructs the prediction service.
func NewPredictionService(predictions predictionStore, students predictionStudentReader, attendance attendancePercentageSource, model mlclient.Service, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *PredictionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &PredictionService{
		predictions: predictions,
		students:    students,
		attendance:  attendance,
		model:       model,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		cacheTTL:    cacheTTL,
		now:         time.Now,
	}
}

// UseQueue sets the dispatcher used for class batches.
func (s *PredictionService) UseQueue(queue jobDispatcher) {
	s.queue = queue
}

// Health reports whether the prediction model can be used.
func (s *PredictionService) Health(ctx context.Context) models.ExternalServiceStatus {
	return externalStatus(ctx, s.model, s.now)
}

// Predict sends the student's marks and attendance to the model and stores the returned predictions.
func (s *PredictionService) Predict(ctx context.Context, studentID string, req PredictRequest) ([]models.PerformancePrediction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prediction request")
	}
	if s.model == nil || !s.model.CheckHealth(ctx) {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "prediction service is unavailable")
	}

	student, err := s.students.FindByID(ctx, strings.TrimSpace(studentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	marks, err := s.students.SubjectMarks(ctx, student.ID, req.AcademicYear, req.Term)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load marks")
	}
	if len(marks) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no marks recorded for this student and term")
	}

	attendance := s.attendanceFor(ctx, student.ID, req.AcademicYear)
	payload := mlclient.PredictionRequest{StudentID: student.ID, Grade: deref(student.GradeLevel)}
	subjectIDs := make(map[string]string, len(marks))
	for _, m := range marks {
		payload.Subjects = append(payload.Subjects, mlclient.SubjectPerformance{
			SubjectName: m.SubjectName,
			SubjectID:   m.SubjectID,
			Attendance:  attendance,
			Marks:       m.Average,
		})
		subjectIDs[strings.ToLower(m.SubjectName)] = m.SubjectID
	}

	var response mlclient.PredictionResponse
	if err := s.model.Request(ctx, mlclient.PathPredict, payload, &response); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rows := make([]models.PerformancePrediction, 0, len(response.Predictions))
	for _, p := range response.Predictions {
		subjectID, ok := subjectIDs[strings.ToLower(strings.TrimSpace(p.Subject))]
		if !ok {
			s.logger.Warn("prediction for unknown subject skipped", zap.String("student_id", student.ID), zap.String("subject", p.Subject))
			continue
		}
		trend := models.PredictionTrend(strings.ToLower(p.PredictionTrend))
		if trend == "" {
			trend = models.PredictionTrendStable
		}
		rows = append(rows, models.PerformancePrediction{
			StudentID:            student.ID,
			SubjectID:            subjectID,
			SubjectName:          strings.TrimSpace(p.Subject),
			AcademicYear:         req.AcademicYear,
			Term:                 req.Term,
			CurrentPerformance:   p.CurrentPerformance,
			CurrentAttendance:    p.CurrentAttendance,
			PredictedPerformance: p.PredictedPerformance,
			Trend:                trend,
			Confidence:           p.Confidence,
			Recommendations:      p.Recommendation,
			PredictedAt:          now,
		})
	}
	if err := s.predictions.Upsert(ctx, rows); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store predictions")
	}
	_ = s.cache.Invalidate(ctx, predictionCachePattern(student.ID))

	s.logger.Info("predictions stored",
		zap.String("student_id", student.ID),
		zap.String("academic_year", req.AcademicYear),
		zap.Int("term", req.Term),
		zap.Int("subjects", len(rows)),
	)
	return rows, nil
}

// Latest returns stored predictions for a student, newest first.
func (s *PredictionService) Latest(ctx context.Context, studentID, academicYear string) ([]models.PerformancePrediction, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	var rows []models.PerformancePrediction
	_, err := s.cache.Remember(ctx, predictionCacheKey(studentID, academicYear), s.cacheTTL, &rows, func(ctx context.Context) error {
		loaded, err := s.predictions.ListByStudent(ctx, studentID, strings.TrimSpace(academicYear))
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load predictions")
		}
		rows = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.PerformancePrediction{}
	}
	return rows, nil
}

// EnqueueClassBatch queues one prediction job per active student in the class.
func (s *PredictionService) EnqueueClassBatch(ctx context.Context, classID string, req PredictRequest) (*PredictionBatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prediction request")
	}
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "prediction queue unavailable")
	}
	students, err := s.students.ListActive(ctx, repository.StudentFilter{ClassID: classID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if len(students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class has no active students")
	}

	result := &PredictionBatchResult{ClassID: classID, JobIDs: make([]string, 0, len(students))}
	for _, student := range students {
		job := jobs.Job{
			ID:      uuid.NewString(),
			Type:    PredictionJobType,
			Payload: predictionJobPayload{StudentID: student.ID, Request: req},
		}
		if err := s.queue.Enqueue(job); err != nil {
			if errors.Is(err, jobs.ErrQueueFull) {
				return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "prediction queue is full, try again later")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue prediction job")
		}
		result.JobIDs = append(result.JobIDs, job.ID)
	}
	result.Queued = len(result.JobIDs)
	s.logger.Info("prediction batch queued", zap.String("class_id", classID), zap.Int("students", result.Queued))
	return result, nil
}

// attendanceFor returns the attendance percentage over the academic year ("2024-2025" runs July to June).
func (s *PredictionService) attendanceFor(ctx context.Context, studentID, academicYear string) float64 {
	if s.attendance == nil {
		return 0
	}
	start, end := academicYearRange(academicYear)
	pct, err := s.attendance.StudentAttendancePercentage(ctx, studentID, start, end)
	if err != nil {
		s.logger.Warn("attendance percentage unavailable for prediction", zap.String("student_id", studentID), zap.Error(err))
		return 0
	}
	return pct.Percentage
}

func academicYearRange(academicYear string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(academicYear), "-", 2)
	if len(parts) != 2 {
		return "", ""
	}
	startYear, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return "", ""
	}
	endYear, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || endYear < startYear {
		return "", ""
	}
	return fmt.Sprintf("%04d-07-01", startYear), fmt.Sprintf("%04d-06-30", endYear)
}

func externalStatus(ctx context.Context, svc mlclient.Service, now func() time.Time) models.ExternalServiceStatus {
	if svc == nil {
		return models.ExternalServiceStatus{Available: false, Message: "not configured", CheckedAt: now().UTC()}
	}
	status := models.ExternalServiceStatus{Service: svc.Name(), CheckedAt: now().UTC()}
	status.Available = svc.CheckHealth(ctx)
	if status.Available {
		status.Message = "available"
	} else {
		status.Message = "unavailable"
	}
	return status
}

// PredictionWorker bridges queued prediction jobs to PredictionService.
type PredictionWorker struct {
	predictor *PredictionService
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewPredictionWorker constructs a worker.
func NewPredictionWorker(predictor *PredictionService, metrics *MetricsService, logger *zap.Logger) *PredictionWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PredictionWorker{predictor: predictor, metrics: metrics, logger: logger}
}

// Handle processes a queue job.
func (w *PredictionWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(predictionJobPayload)
	if !ok {
		w.metrics.RecordJob("predictions", false)
		return fmt.Errorf("%w: unexpected payload for job %s", jobs.ErrPermanent, job.ID)
	}
	_, err := w.predictor.Predict(ctx, payload.StudentID, payload.Request)
	if err != nil && appErrors.Is(err, appErrors.ErrNotFound) {
		w.metrics.RecordJob("predictions", false)
		w.logger.Sugar().Infow("prediction skipped", "job_id", job.ID, "student_id", payload.StudentID, "reason", appErrors.FromError(err).Message)
		return nil
	}
	w.metrics.RecordJob("predictions", err == nil)
	if err != nil && !appErrors.Retryable(err) {
		return fmt.Errorf("%w: %v", jobs.ErrPermanent, err)
	}
	return err
}
