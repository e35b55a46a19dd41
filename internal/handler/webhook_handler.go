package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gatewise/vms-api/internal/models"
	"github.com/gatewise/vms-api/internal/service"
)

type smsReplier interface {
	HandleReply(ctx context.Context, from, body string) string
}

// WebhookHandler terminates inbound SMS callbacks from the provider.
// Replies are rendered as TwiML and the endpoint always answers 200 so
// the provider does not retry.
type WebhookHandler struct {
	service smsReplier
	metrics *service.MetricsService
}

// NewWebhookHandler creates a new handler.
func NewWebhookHandler(svc smsReplier, metrics *service.MetricsService) *WebhookHandler {
	return &WebhookHandler{service: svc, metrics: metrics}
}

// Health confirms the webhook endpoint is reachable. Providers probe
// this with a GET during configuration.
func (h *WebhookHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"message":  "SMS webhook endpoint is ready",
		"endpoint": "/api/sms/webhook",
	})
}

// Receive handles an inbound message. The provider posts form-encoded
// From and Body fields.
func (h *WebhookHandler) Receive(c *gin.Context) {
	from := c.PostForm("From")
	body := c.PostForm("Body")

	reply := h.service.HandleReply(c.Request.Context(), from, body)
	if strings.Contains(reply, "has been approved") {
		h.metrics.RecordDecision(models.StatusApproved, "sms")
	} else if strings.Contains(reply, "has been rejected") {
		h.metrics.RecordDecision(models.StatusRejected, "sms")
	}

	c.Data(http.StatusOK, "text/xml", []byte(renderTwiML(reply)))
}

// renderTwiML wraps a reply in the minimal TwiML response document.
func renderTwiML(message string) string {
	escaped := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(message)
	return `<?xml version="1.0" encoding="UTF-8"?><Response><Message>` + escaped + `</Message></Response>`
}
