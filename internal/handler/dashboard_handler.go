package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gatewise/vms-api/internal/service"
	"github.com/gatewise/vms-api/pkg/response"
)

// DashboardHandler serves the aggregate view backing the approver
// dashboard landing page.
type DashboardHandler struct {
	visitors *service.VisitorService
	cards    *service.CardService
	metrics  *service.MetricsService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(visitors *service.VisitorService, cards *service.CardService, metrics *service.MetricsService) *DashboardHandler {
	return &DashboardHandler{visitors: visitors, cards: cards, metrics: metrics}
}

// Summary returns visitor counts, badge occupancy and a runtime
// snapshot in one payload.
func (h *DashboardHandler) Summary(c *gin.Context) {
	visitorStats, err := h.visitors.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	cardStats, err := h.cards.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"visitors": visitorStats,
		"cards":    cardStats,
		"system":   h.metrics.Snapshot(),
	}, nil)
}
