package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/school-attendance-api/internal/mlclient"
	"github.com/noah-isme/school-attendance-api/internal/models"
	"github.com/noah-isme/school-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

const (
	defaultSeatsPerRow  = 5
	defaultTotalRows    = 6
	defaultAverageMarks = 50.0
	defaultSection      = "A"
)

type seatingStore interface {
	Deactivate(ctx context.Context, exec sqlx.ExtContext, gradeLevel string, section *string, academicYear string, term int) error
	Create(ctx context.Context, exec sqlx.ExtContext, arrangement *models.SeatingArrangement) error
	CreateSeats(ctx context.Context, exec sqlx.ExtContext, seats []models.SeatAssignment) error
	FindActive(ctx context.Context, gradeLevel, section string) (*models.SeatingArrangement, error)
	FindStudentSeat(ctx context.Context, studentID string) (*models.SeatAssignment, error)
}

type seatingStudentReader interface {
	ListActive(ctx context.Context, filter repository.StudentFilter) ([]models.Student, error)
	AverageMarks(ctx context.Context, studentIDs []string) (map[string]float64, error)
}

// GenerateSeatingRequest describes the classroom to arrange.
type GenerateSeatingRequest struct {
	GradeLevel   string `json:"grade_level" validate:"required,max=10"`
	Section      string `json:"section" validate:"omitempty,max=10"`
	ClassID      string `json:"class_id" validate:"omitempty,max=64"`
	AcademicYear string `json:"academic_year" validate:"required,max=20"`
	Term         int    `json:"term" validate:"required,gte=1,lte=3"`
	SeatsPerRow  int    `json:"seats_per_row" validate:"omitempty,gte=1,lte=20"`
	TotalRows    int    `json:"total_rows" validate:"omitempty,gte=1,lte=20"`
}

// SeatingService generates classroom seating through the seating model and stores the result.
type SeatingService struct {
	arrangements seatingStore
	students     seatingStudentReader
	model        mlclient.Service
	tx           txProvider
	audit        auditLogWriter
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewSeatingService constructs the seating service.
func NewSeatingService(arrangements seatingStore, students seatingStudentReader, model mlclient.Service, tx txProvider, audit auditLogWriter, validate *validator.Validate, logger *zap.Logger) *SeatingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeatingService{
		arrangements: arrangements,
		students:     students,
		model:        model,
		tx:           tx,
		audit:        audit,
		validator:    validate,
		logger:       logger,
		now:          time.Now,
	}
}

// Health reports whether the seating model can be used.
func (s *SeatingService) Health(ctx context.Context) models.ExternalServiceStatus {
	return externalStatus(ctx, s.model, s.now)
}

// Generate asks the model for a layout and replaces the active arrangement for the grade, section, year and term.
func (s *SeatingService) Generate(ctx context.Context, req GenerateSeatingRequest, actorID string) (*models.SeatingArrangement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid seating request")
	}
	if req.SeatsPerRow == 0 {
		req.SeatsPerRow = defaultSeatsPerRow
	}
	if req.TotalRows == 0 {
		req.TotalRows = defaultTotalRows
	}
	if s.model == nil || !s.model.CheckHealth(ctx) {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "seating service is unavailable")
	}

	roster, err := s.students.ListActive(ctx, repository.StudentFilter{
		GradeLevel: req.GradeLevel,
		Section:    req.Section,
		ClassID:    req.ClassID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if len(roster) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no active students for this grade and section")
	}

	ids := make([]string, 0, len(roster))
	for _, st := range roster {
		ids = append(ids, st.ID)
	}
	averages, err := s.students.AverageMarks(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load marks")
	}

	section := strings.TrimSpace(req.Section)
	payload := mlclient.SeatingRequest{
		Grade:       req.GradeLevel,
		Section:     sourceOr(section, defaultSection),
		SeatsPerRow: req.SeatsPerRow,
		TotalRows:   req.TotalRows,
	}
	names := make(map[string]string, len(roster))
	for _, st := range roster {
		avg, ok := averages[st.ID]
		if !ok {
			avg = defaultAverageMarks
		}
		names[st.ID] = st.FullName()
		payload.Students = append(payload.Students, mlclient.SeatingStudent{
			StudentID:    st.ID,
			Name:         st.FullName(),
			AverageMarks: round2(avg),
			Grade:        deref(st.GradeLevel),
			Section:      sourceOr(deref(st.Section), defaultSection),
		})
	}

	var raw json.RawMessage
	if err := s.model.Request(ctx, mlclient.PathGenerateSeating, payload, &raw); err != nil {
		return nil, err
	}
	var layout mlclient.SeatingResponse
	if err := json.Unmarshal(raw, &layout); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "seating service returned a malformed response")
	}

	arrangement := &models.SeatingArrangement{
		GradeLevel:      req.GradeLevel,
		Section:         optionalString(section),
		ClassID:         optionalString(strings.TrimSpace(req.ClassID)),
		AcademicYear:    req.AcademicYear,
		Term:            req.Term,
		TotalRows:       req.TotalRows,
		SeatsPerRow:     req.SeatsPerRow,
		ArrangementData: types.JSONText(raw),
		GeneratedBy:     actorID,
		GeneratedAt:     s.now().UTC(),
		IsActive:        true,
	}
	seats := s.seatsFromLayout(layout, names)

	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.arrangements.Deactivate(ctx, tx, arrangement.GradeLevel, arrangement.Section, arrangement.AcademicYear, arrangement.Term); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire previous arrangement")
		}
		if err := s.arrangements.Create(ctx, tx, arrangement); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store arrangement")
		}
		for i := range seats {
			seats[i].ArrangementID = arrangement.ID
		}
		if err := s.arrangements.CreateSeats(ctx, tx, seats); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store seat assignments")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	arrangement.Seats = seats

	s.logger.Info("seating arrangement generated",
		zap.String("arrangement_id", arrangement.ID),
		zap.String("grade_level", arrangement.GradeLevel),
		zap.String("section", section),
		zap.Int("students", len(roster)),
		zap.Int("seated", len(seats)),
	)
	s.recordAudit(ctx, actorID, arrangement)
	return arrangement, nil
}

// Active returns the newest active arrangement for a grade and optional section.
func (s *SeatingService) Active(ctx context.Context, gradeLevel, section string) (*models.SeatingArrangement, error) {
	gradeLevel = strings.TrimSpace(gradeLevel)
	if gradeLevel == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade is required")
	}
	arrangement, err := s.arrangements.FindActive(ctx, gradeLevel, strings.TrimSpace(section))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active seating arrangement")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load seating arrangement")
	}
	return arrangement, nil
}

// StudentSeat returns the student's seat in the active arrangement.
func (s *SeatingService) StudentSeat(ctx context.Context, studentID string) (*models.SeatAssignment, error) {
	seat, err := s.arrangements.FindStudentSeat(ctx, strings.TrimSpace(studentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no assigned seat")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load seat")
	}
	return seat, nil
}

func (s *SeatingService) seatsFromLayout(layout mlclient.SeatingResponse, names map[string]string) []models.SeatAssignment {
	seats := make([]models.SeatAssignment, 0, len(names))
	placed := make(map[string]bool, len(names))
	for r, row := range layout.SeatingArrangement {
		for c, cell := range row {
			if cell == nil || cell.StudentID == "" {
				continue
			}
			name, ok := names[cell.StudentID]
			if !ok || placed[cell.StudentID] {
				s.logger.Warn("seat for unexpected student skipped", zap.String("student_id", cell.StudentID))
				continue
			}
			placed[cell.StudentID] = true
			seats = append(seats, models.SeatAssignment{
				StudentID:    cell.StudentID,
				StudentName:  name,
				RowNumber:    r + 1,
				SeatNumber:   c + 1,
				SeatPosition: fmt.Sprintf("Row %d - Seat %d", r+1, c+1),
			})
		}
	}
	return seats
}

func (s *SeatingService) recordAudit(ctx context.Context, actorID string, arrangement *models.SeatingArrangement) {
	if s.audit == nil || actorID == "" {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"grade_level":   arrangement.GradeLevel,
		"section":       arrangement.Section,
		"academic_year": arrangement.AcademicYear,
		"term":          arrangement.Term,
		"seats":         len(arrangement.Seats),
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionSeatingGenerate,
		Resource:   "seating_arrangement",
		ResourceID: &arrangement.ID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record seating audit log", zap.Error(err))
	}
}
