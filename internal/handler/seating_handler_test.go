package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-attendance-api/internal/models"
	"github.com/noah-isme/school-attendance-api/internal/service"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

type seatingServiceMock struct {
	req         service.GenerateSeatingRequest
	actor       string
	grade       string
	section     string
	arrangement *models.SeatingArrangement
	seat        *models.SeatAssignment
	err         error
}

func (m *seatingServiceMock) Health(ctx context.Context) models.ExternalServiceStatus {
	return models.ExternalServiceStatus{Service: "seating", Available: true}
}

func (m *seatingServiceMock) Generate(ctx context.Context, req service.GenerateSeatingRequest, actorID string) (*models.SeatingArrangement, error) {
	m.req = req
	m.actor = actorID
	return m.arrangement, m.err
}

func (m *seatingServiceMock) Active(ctx context.Context, gradeLevel, section string) (*models.SeatingArrangement, error) {
	m.grade = gradeLevel
	m.section = section
	return m.arrangement, m.err
}

func (m *seatingServiceMock) StudentSeat(ctx context.Context, studentID string) (*models.SeatAssignment, error) {
	return m.seat, m.err
}

func TestSeatingHandlerGenerate(t *testing.T) {
	svc := &seatingServiceMock{arrangement: &models.SeatingArrangement{ID: "arr-1", GradeLevel: "10"}}
	h := NewSeatingHandler(svc)
	c, w := newGinContext(http.MethodPost, "/seating", []byte(`{"grade_level":"10","section":"A","academic_year":"2024-2025","term":1}`))
	withStaff(c)
	h.Generate(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "teacher-1", svc.actor)
	assert.Equal(t, "A", svc.req.Section)
}

func TestSeatingHandlerGenerateRequiresClaims(t *testing.T) {
	h := NewSeatingHandler(&seatingServiceMock{})
	c, w := newGinContext(http.MethodPost, "/seating", []byte(`{}`))
	h.Generate(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSeatingHandlerActive(t *testing.T) {
	svc := &seatingServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "no active seating arrangement")}
	h := NewSeatingHandler(svc)
	c, w := newGinContext(http.MethodGet, "/seating/active?grade=10&section=B", nil)
	h.Active(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "10", svc.grade)
	assert.Equal(t, "B", svc.section)
}

func TestSeatingHandlerStudentSeat(t *testing.T) {
	svc := &seatingServiceMock{seat: &models.SeatAssignment{StudentID: "stu-1", SeatPosition: "Row 1 - Seat 2"}}
	h := NewSeatingHandler(svc)
	c, w := newGinContext(http.MethodGet, "/seating/students/stu-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}
	h.StudentSeat(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Row 1 - Seat 2")
}
