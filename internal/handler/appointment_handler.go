package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gatewise/vms-api/internal/service"
	appErrors "github.com/gatewise/vms-api/pkg/errors"
	"github.com/gatewise/vms-api/pkg/response"
)

// AppointmentHandler wires HTTP endpoints to appointment reads and
// gate-side QR verification.
type AppointmentHandler struct {
	service *service.AppointmentService
}

// NewAppointmentHandler creates a new handler.
func NewAppointmentHandler(svc *service.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{service: svc}
}

// List returns appointments, newest first.
func (h *AppointmentHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	appointments, err := h.service.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointments, nil)
}

// ByVisitor fetches the appointment behind a visit.
func (h *AppointmentHandler) ByVisitor(c *gin.Context) {
	visitorID, err := strconv.ParseInt(c.Param("visitor_id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "visitor id must be numeric"))
		return
	}
	appointment, err := h.service.GetByVisitor(c.Request.Context(), visitorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}

// VerifyQR resolves a scanned QR token to its appointment.
func (h *AppointmentHandler) VerifyQR(c *gin.Context) {
	appointment, err := h.service.VerifyQRCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}
