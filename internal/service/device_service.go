package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-attendance-api/internal/models"
	"github.com/noah-isme/school-attendance-api/internal/nfc"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

type deviceStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// WriteTagRequest selects the student whose details are written to a blank tag.
type WriteTagRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// DeviceService manages the NFC reader hardware.
type DeviceService struct {
	reader    nfc.Reader
	students  deviceStudentReader
	audit     auditLogWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDeviceService constructs the device service.
func NewDeviceService(reader nfc.Reader, students deviceStudentReader, audit auditLogWriter, validate *validator.Validate, logger *zap.Logger) *DeviceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceService{reader: reader, students: students, audit: audit, validator: validate, logger: logger}
}

// Status probes the reader. An unreachable bridge is reported as disconnected rather than failing.
func (s *DeviceService) Status(ctx context.Context) *nfc.DeviceStatus {
	if s.reader == nil {
		return &nfc.DeviceStatus{Connected: false, Message: "NFC reader not configured"}
	}
	status, err := s.reader.TestConnection(ctx)
	if err != nil {
		s.logger.Warn("nfc reader status check failed", zap.Error(err))
		return &nfc.DeviceStatus{Connected: false, Message: appErrors.FromError(err).Message}
	}
	return status
}

// WriteTag programs a tag with the student's code and name.
func (s *DeviceService) WriteTag(ctx context.Context, req WriteTagRequest, actorID string) (*nfc.DeviceStatus, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid tag write request")
	}
	if s.reader == nil {
		return nil, appErrors.Clone(appErrors.ErrDeviceUnavailable, "NFC reader not configured")
	}
	student, err := s.students.FindByID(ctx, strings.TrimSpace(req.StudentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	payload := nfc.StudentTagPayload{
		StudentCode: student.StudentCode,
		FirstName:   student.FirstName,
		LastName:    student.LastName,
		GradeLevel:  deref(student.GradeLevel),
		ClassID:     deref(student.ClassID),
	}
	status, err := s.reader.WriteStudentData(ctx, payload)
	if err != nil {
		return nil, err
	}

	s.logger.Info("nfc tag written", zap.String("student_code", student.StudentCode))
	if s.audit != nil && actorID != "" {
		body, _ := json.Marshal(payload)
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionNFCWrite,
			Resource:   "student",
			ResourceID: &student.ID,
			NewValues:  body,
		}); err != nil {
			s.logger.Warn("failed to record tag write audit log", zap.Error(err))
		}
	}
	return status, nil
}
