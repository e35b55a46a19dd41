package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gatewise/vms-api/internal/models"
	"github.com/gatewise/vms-api/internal/service"
	appErrors "github.com/gatewise/vms-api/pkg/errors"
	"github.com/gatewise/vms-api/pkg/response"
)

// ApproverHandler wires HTTP endpoints to the approver directory.
type ApproverHandler struct {
	service *service.ApproverService
}

// NewApproverHandler creates a new handler.
func NewApproverHandler(svc *service.ApproverService) *ApproverHandler {
	return &ApproverHandler{service: svc}
}

// List returns approvers with offset pagination.
func (h *ApproverHandler) List(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	approvers, err := h.service.List(c.Request.Context(), offset, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvers, nil)
}

// ListSimple returns the public host selection list used by the
// check-in kiosk.
func (h *ApproverHandler) ListSimple(c *gin.Context) {
	activeOnly := c.DefaultQuery("active_only", "true") != "false"

	approvers, err := h.service.ListSimple(c.Request.Context(), activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvers, nil)
}

// Get fetches one approver by username.
func (h *ApproverHandler) Get(c *gin.Context) {
	approver, err := h.service.Get(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approver, nil)
}

// Create registers a new approver. Superuser only.
func (h *ApproverHandler) Create(c *gin.Context) {
	actor := currentApprover(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreateApproverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approver payload"))
		return
	}

	approver, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, approver)
}

// Update modifies an approver profile.
func (h *ApproverHandler) Update(c *gin.Context) {
	actor := currentApprover(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdateApproverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approver payload"))
		return
	}

	approver, err := h.service.Update(c.Request.Context(), actor, c.Param("username"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approver, nil)
}

// Delete removes an approver. Superuser only.
func (h *ApproverHandler) Delete(c *gin.Context) {
	actor := currentApprover(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), actor, c.Param("username")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
