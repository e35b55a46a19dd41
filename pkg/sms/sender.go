package sms

import (
	"fmt"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Sender delivers outbound SMS messages.
type Sender interface {
	Send(to, body string) error
}

// Config holds Twilio credentials and sender preferences.
type Config struct {
	AccountSID          string
	AuthToken           string
	FromNumber          string
	SenderID            string
	MessagingServiceSID string
	Timeout             time.Duration
}

// TwilioSender sends SMS through the Twilio REST API.
type TwilioSender struct {
	client *twilio.RestClient
	cfg    Config
	logger *zap.Logger
}

// NewTwilioSender builds a sender with a bounded HTTP timeout.
func NewTwilioSender(cfg Config, logger *zap.Logger) (*TwilioSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio credentials missing")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &twilioclient.Client{
		Credentials: twilioclient.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
	}
	httpClient.SetAccountSid(cfg.AccountSID)

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
		Client:   httpClient,
	})

	return &TwilioSender{client: client, cfg: cfg, logger: logger}, nil
}

// Send delivers a single SMS. Sender identity resolution order:
// alphanumeric sender ID, then the configured from number.
func (s *TwilioSender) Send(to, body string) error {
	if to == "" {
		return fmt.Errorf("recipient phone number required")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(FormatE164(to))
	params.SetBody(body)

	switch {
	case s.cfg.MessagingServiceSID != "":
		params.SetMessagingServiceSid(s.cfg.MessagingServiceSID)
	case s.cfg.SenderID != "":
		params.SetFrom(s.cfg.SenderID)
	case s.cfg.FromNumber != "":
		params.SetFrom(FormatE164(s.cfg.FromNumber))
	default:
		return fmt.Errorf("no sender number or ID configured")
	}

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		return fmt.Errorf("twilio delivery failed: code %d", *resp.ErrorCode)
	}

	if resp.Sid != nil {
		s.logger.Debug("sms sent", zap.String("sid", *resp.Sid), zap.String("to", FormatE164(to)))
	}
	return nil
}
