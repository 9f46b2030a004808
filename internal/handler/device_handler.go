package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-attendance-api/internal/nfc"
	"github.com/noah-isme/school-attendance-api/internal/service"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
	"github.com/noah-isme/school-attendance-api/pkg/response"
)

type deviceService interface {
	Status(ctx context.Context) *nfc.DeviceStatus
	WriteTag(ctx context.Context, req service.WriteTagRequest, actorID string) (*nfc.DeviceStatus, error)
}

// DeviceHandler exposes NFC reader management.
type DeviceHandler struct {
	service deviceService
}

// NewDeviceHandler constructs the handler.
func NewDeviceHandler(svc deviceService) *DeviceHandler {
	return &DeviceHandler{service: svc}
}

// Status godoc
// @Summary NFC reader status
// @Tags Devices
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /devices/nfc/status [get]
func (h *DeviceHandler) Status(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Status(c.Request.Context()), nil)
}

// WriteTag godoc
// @Summary Write a student's details to an NFC tag
// @Tags Devices
// @Accept json
// @Produce json
// @Param payload body service.WriteTagRequest true "Student to write"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /devices/nfc/write [post]
func (h *DeviceHandler) WriteTag(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.WriteTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid tag write payload"))
		return
	}
	status, err := h.service.WriteTag(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
