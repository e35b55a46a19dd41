package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"
)

// Config holds SMTP settings.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	DisplayName string
}

// Mailer sends transactional email over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	cfg    Config
	logger *zap.Logger
}

// New builds a Mailer. The From address falls back to the SMTP username
// because most providers reject mismatched senders.
func New(cfg Config, logger *zap.Logger) (*Mailer, error) {
	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("smtp settings incomplete")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// QRMail describes an appointment approval email with an inline QR image.
type QRMail struct {
	To            string
	VisitorName   string
	QRCode        string
	VisitorNumber string
	Date          string
	TimeSlot      string
	ApproverName  string
}

// RejectionMail describes an appointment rejection email.
type RejectionMail struct {
	To          string
	VisitorName string
	Date        string
	TimeSlot    string
	Reason      string
}

var qrTemplate = template.Must(template.New("qr").Parse(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #f97316;">Appointment Approved!</h2>
    <p>Dear <strong>{{.VisitorName}}</strong>,</p>
    <p>Your appointment request has been <strong style="color: #16a34a;">approved</strong>{{if .ApproverName}} by {{.ApproverName}}{{end}}.</p>
    <p><strong>Important:</strong> Please bring the QR code and your Visitor Number when you visit our premises.</p>
    <div style="text-align: center; margin: 25px 0;">
      <p style="font-weight: bold;">Your QR Code:</p>
      <img src="cid:qrcode.png" alt="QR Code" style="max-width: 250px;" />
      <p style="font-family: monospace;">{{.QRCode}}</p>
    </div>
    {{if .VisitorNumber}}<p><strong>Your Visitor Number:</strong> <span style="font-family: monospace;">{{.VisitorNumber}}</span></p>{{end}}
    {{if .Date}}<p><strong>Date:</strong> {{.Date}}</p>{{end}}
    {{if .TimeSlot}}<p><strong>Time:</strong> {{.TimeSlot}}</p>{{end}}
    <p>Show the QR code at the gate for scanning and arrive on time for your scheduled appointment.</p>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
  </div>
</body>
</html>`))

var rejectionTemplate = template.Must(template.New("rejection").Parse(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #2563eb;">Appointment Request Update</h2>
    <p>Dear {{.VisitorName}},</p>
    <p>Thank you for your interest in visiting us. We appreciate you taking the time to submit an appointment request.</p>
    <p><strong>Unfortunately, we are unable to accommodate your appointment request at this time.</strong></p>
    {{if .Date}}<p><strong>Requested Date:</strong> {{.Date}}</p>{{end}}
    {{if .TimeSlot}}<p><strong>Requested Time:</strong> {{.TimeSlot}}</p>{{end}}
    {{if .Reason}}<p><strong>Reason:</strong> {{.Reason}}</p>{{end}}
    <p>We apologise for any inconvenience. If you would like to discuss alternative arrangements, please contact us.</p>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
  </div>
</body>
</html>`))

// SendAppointmentQR emails the visitor an approval notice with the QR
// code embedded inline.
func (m *Mailer) SendAppointmentQR(mail QRMail) error {
	if mail.To == "" {
		return fmt.Errorf("recipient email required")
	}

	png, err := qrcode.Encode(mail.QRCode, qrcode.Low, 256)
	if err != nil {
		return fmt.Errorf("encode qr image: %w", err)
	}

	body := &bytes.Buffer{}
	if err := qrTemplate.Execute(body, mail); err != nil {
		return fmt.Errorf("render qr email: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.From, m.cfg.DisplayName)
	msg.SetHeader("To", mail.To)
	msg.SetHeader("Subject", "Your Appointment QR Code")
	msg.SetBody("text/html", body.String())
	msg.Embed("qrcode.png", gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(png)
		return err
	}))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send qr email: %w", err)
	}
	m.logger.Debug("appointment qr email sent", zap.String("to", mail.To))
	return nil
}

// SendAppointmentRejection emails the visitor a polite rejection notice.
func (m *Mailer) SendAppointmentRejection(mail RejectionMail) error {
	if mail.To == "" {
		return fmt.Errorf("recipient email required")
	}

	body := &bytes.Buffer{}
	if err := rejectionTemplate.Execute(body, mail); err != nil {
		return fmt.Errorf("render rejection email: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.From, m.cfg.DisplayName)
	msg.SetHeader("To", mail.To)
	msg.SetHeader("Subject", "Appointment Request Update")
	msg.SetBody("text/html", body.String())

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send rejection email: %w", err)
	}
	m.logger.Debug("appointment rejection email sent", zap.String("to", mail.To))
	return nil
}
