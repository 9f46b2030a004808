package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-attendance-api/internal/models"
	"github.com/noah-isme/school-attendance-api/internal/service"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
	"github.com/noah-isme/school-attendance-api/pkg/response"
)

type seatingService interface {
	Health(ctx context.Context) models.ExternalServiceStatus
	Generate(ctx context.Context, req service.GenerateSeatingRequest, actorID string) (*models.SeatingArrangement, error)
	Active(ctx context.Context, gradeLevel, section string) (*models.SeatingArrangement, error)
	StudentSeat(ctx context.Context, studentID string) (*models.SeatAssignment, error)
}

// SeatingHandler exposes seating arrangement endpoints.
type SeatingHandler struct {
	service seatingService
}

// NewSeatingHandler constructs the handler.
func NewSeatingHandler(svc seatingService) *SeatingHandler {
	return &SeatingHandler{service: svc}
}

// Health godoc
// @Summary Seating service availability
// @Tags Seating
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /seating/health [get]
func (h *SeatingHandler) Health(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Health(c.Request.Context()), nil)
}

// Generate godoc
// @Summary Generate a seating arrangement
// @Description Replaces the active arrangement for the grade, section, academic year and term.
// @Tags Seating
// @Accept json
// @Produce json
// @Param payload body service.GenerateSeatingRequest true "Classroom"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /seating [post]
func (h *SeatingHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.GenerateSeatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid seating payload"))
		return
	}
	arrangement, err := h.service.Generate(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, arrangement)
}

// Active godoc
// @Summary Active seating arrangement
// @Tags Seating
// @Produce json
// @Param grade query string true "Grade level"
// @Param section query string false "Section"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /seating/active [get]
func (h *SeatingHandler) Active(c *gin.Context) {
	arrangement, err := h.service.Active(c.Request.Context(), c.Query("grade"), c.Query("section"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, arrangement, nil)
}

// StudentSeat godoc
// @Summary A student's seat in the active arrangement
// @Tags Seating
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /seating/students/{id} [get]
func (h *SeatingHandler) StudentSeat(c *gin.Context) {
	seat, err := h.service.StudentSeat(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, seat, nil)
}
