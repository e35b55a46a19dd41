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

// CardHandler wires HTTP endpoints to the badge pool.
type CardHandler struct {
	service *service.CardService
}

// NewCardHandler creates a new handler.
func NewCardHandler(svc *service.CardService) *CardHandler {
	return &CardHandler{service: svc}
}

// List returns all badges.
func (h *CardHandler) List(c *gin.Context) {
	cards, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cards, nil)
}

// Available returns unassigned badges.
func (h *CardHandler) Available(c *gin.Context) {
	cards, err := h.service.ListAvailable(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cards, nil)
}

// Stats aggregates badge pool occupancy.
func (h *CardHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Get fetches one badge.
func (h *CardHandler) Get(c *gin.Context) {
	id, err := cardIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	card, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// Create registers a new badge.
func (h *CardHandler) Create(c *gin.Context) {
	var req models.CreateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid card payload"))
		return
	}
	card, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, card)
}

// Update renames a badge.
func (h *CardHandler) Update(c *gin.Context) {
	id, err := cardIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.UpdateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid card payload"))
		return
	}
	card, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// Delete removes a badge from the pool.
func (h *CardHandler) Delete(c *gin.Context) {
	id, err := cardIDParam(c)
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

// Assign binds a badge to an approved visit.
func (h *CardHandler) Assign(c *gin.Context) {
	id, err := cardIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.AssignCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	card, err := h.service.Assign(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// Release frees a badge and checks the holding visit out.
func (h *CardHandler) Release(c *gin.Context) {
	id, err := cardIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	card, err := h.service.Release(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// ForVisitor returns the badge held by a visit.
func (h *CardHandler) ForVisitor(c *gin.Context) {
	visitorID, err := models.ParseVisitorID(c.Param("visitor_id"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			"Invalid visitor ID format: "+c.Param("visitor_id")))
		return
	}
	card, err := h.service.ForVisitor(c.Request.Context(), visitorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

func cardIDParam(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "card id must be numeric")
	}
	return id, nil
}
