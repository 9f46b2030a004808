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

type predictionService interface {
	Health(ctx context.Context) models.ExternalServiceStatus
	Predict(ctx context.Context, studentID string, req service.PredictRequest) ([]models.PerformancePrediction, error)
	Latest(ctx context.Context, studentID, academicYear string) ([]models.PerformancePrediction, error)
	EnqueueClassBatch(ctx context.Context, classID string, req service.PredictRequest) (*service.PredictionBatchResult, error)
}

// PredictionHandler exposes performance prediction endpoints.
type PredictionHandler struct {
	service predictionService
}

// NewPredictionHandler constructs the handler.
func NewPredictionHandler(svc predictionService) *PredictionHandler {
	return &PredictionHandler{service: svc}
}

// Health godoc
// @Summary Prediction service availability
// @Tags Predictions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /predictions/health [get]
func (h *PredictionHandler) Health(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Health(c.Request.Context()), nil)
}

// Predict godoc
// @Summary Predict a student's performance
// @Description Sends the student's marks and attendance to the prediction service and stores the result per subject.
// @Tags Predictions
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.PredictRequest true "Academic period"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /predictions/students/{id} [post]
func (h *PredictionHandler) Predict(c *gin.Context) {
	var req service.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid prediction payload"))
		return
	}
	predictions, err := h.service.Predict(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, predictions, nil)
}

// Latest godoc
// @Summary Stored predictions for a student
// @Tags Predictions
// @Produce json
// @Param id path string true "Student ID"
// @Param academic_year query string false "Academic year"
// @Success 200 {object} response.Envelope
// @Router /predictions/students/{id} [get]
func (h *PredictionHandler) Latest(c *gin.Context) {
	predictions, err := h.service.Latest(c.Request.Context(), c.Param("id"), c.Query("academic_year"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, predictions, nil)
}

// ClassBatch godoc
// @Summary Queue predictions for a whole class
// @Tags Predictions
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.PredictRequest true "Academic period"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /predictions/classes/{id}/batch [post]
func (h *PredictionHandler) ClassBatch(c *gin.Context) {
	var req service.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}
	result, err := h.service.EnqueueClassBatch(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, result)
}
