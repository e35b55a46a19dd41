package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeReplier struct {
	reply    string
	lastFrom string
	lastBody string
}

func (f *fakeReplier) HandleReply(_ context.Context, from, body string) string {
	f.lastFrom = from
	f.lastBody = body
	return f.reply
}

func postWebhook(handler *WebhookHandler, form url.Values) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/sms/webhook", strings.NewReader(form.Encode()))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	handler.Receive(c)
	return rec
}

func TestWebhookHandlerReceiveWrapsTwiML(t *testing.T) {
	replier := &fakeReplier{reply: "Visitor 20250826101500 has been approved.\nName: Ravi Kumar\nStatus: APPROVED"}
	handler := NewWebhookHandler(replier, nil)

	rec := postWebhook(handler, url.Values{
		"From": {"+919876543210"},
		"Body": {"APPROVE"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "+919876543210", replier.lastFrom)
	assert.Equal(t, "APPROVE", replier.lastBody)
	assert.Contains(t, rec.Body.String(), `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, rec.Body.String(), "<Response><Message>Visitor 20250826101500 has been approved.")
}

func TestWebhookHandlerEscapesReply(t *testing.T) {
	replier := &fakeReplier{reply: "Reply with <APPROVED> & more"}
	handler := NewWebhookHandler(replier, nil)

	rec := postWebhook(handler, url.Values{"From": {"+15550001111"}, "Body": {"hi"}})

	assert.Contains(t, rec.Body.String(), "Reply with &lt;APPROVED&gt; &amp; more")
	assert.NotContains(t, rec.Body.String(), "<APPROVED>")
}

func TestWebhookHandlerHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewWebhookHandler(&fakeReplier{}, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/sms/webhook", nil)

	handler.Health(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SMS webhook endpoint is ready")
}
