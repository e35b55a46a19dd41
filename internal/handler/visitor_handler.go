package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gatewise/vms-api/internal/models"
	"github.com/gatewise/vms-api/internal/service"
	appErrors "github.com/gatewise/vms-api/pkg/errors"
	"github.com/gatewise/vms-api/pkg/response"
)

// VisitorHandler wires HTTP endpoints to the visit lifecycle.
type VisitorHandler struct {
	service *service.VisitorService
	metrics *service.MetricsService
}

// NewVisitorHandler creates a new handler.
func NewVisitorHandler(svc *service.VisitorService, metrics *service.MetricsService) *VisitorHandler {
	return &VisitorHandler{service: svc, metrics: metrics}
}

// CheckIn registers a walk-in visit.
func (h *VisitorHandler) CheckIn(c *gin.Context) {
	var req models.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check-in payload"))
		return
	}

	visitor, err := h.service.CheckIn(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordCheckIn()
	response.Created(c, visitor)
}

// CheckInWithImage registers a visit from a multipart form carrying the
// kiosk photo.
func (h *VisitorHandler) CheckInWithImage(c *gin.Context) {
	var req models.CheckInRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check-in payload"))
		return
	}

	var image []byte
	var contentType string
	if file, err := c.FormFile("image"); err == nil && file != nil {
		f, err := file.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable image upload"))
			return
		}
		defer f.Close() //nolint:errcheck
		image, err = io.ReadAll(f)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable image upload"))
			return
		}
		contentType = file.Header.Get("Content-Type")
	}

	visitor, err := h.service.CheckInWithImage(c.Request.Context(), req, image, contentType)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordCheckIn()
	response.Created(c, visitor)
}

// FormIntake registers an appointment request from the external form.
func (h *VisitorHandler) FormIntake(c *gin.Context) {
	var req models.FormIntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid form payload"))
		return
	}

	visitor, err := h.service.FormIntake(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordCheckIn()
	response.Created(c, visitor)
}

// List returns visits matching the query filters.
func (h *VisitorHandler) List(c *gin.Context) {
	filter, err := parseVisitorFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	visitors, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, visitors, pagination)
}

// Stats aggregates visit counts.
func (h *VisitorHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Active returns approved visits still on the premises.
func (h *VisitorHandler) Active(c *gin.Context) {
	visitors, err := h.service.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, visitors, nil)
}

// ByPhone returns visits whose mobile number matches the path value.
func (h *VisitorHandler) ByPhone(c *gin.Context) {
	visitors, err := h.service.ListByPhone(c.Request.Context(), c.Param("number"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, visitors, nil)
}

// Get fetches one visit by its visitor number.
func (h *VisitorHandler) Get(c *gin.Context) {
	visitor, err := h.service.GetByNumber(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, visitor, nil)
}

// Update applies partial edits to a visit.
func (h *VisitorHandler) Update(c *gin.Context) {
	id, err := visitorIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req models.UpdateVisitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid update payload"))
		return
	}

	visitor, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, visitor, nil)
}

// Decide approves or rejects a visit.
func (h *VisitorHandler) Decide(c *gin.Context) {
	id, err := visitorIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req models.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	visitor, err := h.service.Decide(c.Request.Context(), currentApprover(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordDecision(visitor.Status, "dashboard")
	response.JSON(c, http.StatusOK, visitor, nil)
}

// Delete removes a visit.
func (h *VisitorHandler) Delete(c *gin.Context) {
	id, err := visitorIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export streams the filtered visit list as CSV or PDF.
func (h *VisitorHandler) Export(c *gin.Context) {
	filter, err := parseVisitorFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	data, filename, contentType, err := h.service.Export(c.Request.Context(), filter, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

func visitorIDParam(c *gin.Context) (int64, error) {
	raw := c.Param("id")
	id, err := models.ParseVisitorID(raw)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			fmt.Sprintf("Invalid visitor ID format: %s", raw))
	}
	return id, nil
}

func parseVisitorFilter(c *gin.Context) (models.VisitorFilter, error) {
	filter := models.VisitorFilter{
		PersonToMeet: c.Query("person_to_meet"),
		Warehouse:    c.Query("warehouse"),
		Search:       c.Query("search"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if raw := c.Query("status"); raw != "" {
		status := models.VisitorStatus(raw)
		switch status {
		case models.StatusWaiting, models.StatusApproved, models.StatusRejected:
			filter.Status = &status
		default:
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", raw))
		}
	}
	return filter, nil
}
