package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatewise/vms-api/internal/models"
	"github.com/gatewise/vms-api/pkg/jobs"
	"github.com/gatewise/vms-api/pkg/mailer"
	"github.com/gatewise/vms-api/pkg/sms"
)

const (
	jobCheckInSMS = "checkin_sms"
	jobApproval   = "approval_notice"
	jobRejection  = "rejection_notice"
	notifyQueue   = "notifications"
	teamSignature = "Visitor Management Team"
)

type notificationApproverRepo interface {
	FindByUsernameOrName(ctx context.Context, q string) (*models.Approver, error)
	SuperuserPhones(ctx context.Context) ([]string, error)
}

type notificationAppointmentRepo interface {
	MarkQRSent(ctx context.Context, visitorID int64) error
}

type checkInJob struct {
	Visitor models.Visitor
}

type approvalJob struct {
	Visitor      models.Visitor
	ApproverName string
	QRCode       string
}

type rejectionJob struct {
	Visitor models.Visitor
	Reason  *string
}

// NotificationService fans out visit events to hosts and visitors over
// SMS and email. Delivery runs on a background queue so intake and
// decision requests never block on Twilio or SMTP.
type NotificationService struct {
	sender       sms.Sender
	mailer       *mailer.Mailer
	approvers    notificationApproverRepo
	appointments notificationAppointmentRepo
	dashboardURL string
	logger       *zap.Logger
	queue        *jobs.Queue
}

// NewNotificationService constructs the dispatcher and its queue.
func NewNotificationService(
	sender sms.Sender,
	m *mailer.Mailer,
	approvers notificationApproverRepo,
	appointments notificationAppointmentRepo,
	dashboardURL string,
	queueCfg jobs.QueueConfig,
	logger *zap.Logger,
) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		sender:       sender,
		mailer:       m,
		approvers:    approvers,
		appointments: appointments,
		dashboardURL: strings.TrimRight(dashboardURL, "/"),
		logger:       logger,
	}
	if queueCfg.Logger == nil {
		queueCfg.Logger = logger
	}
	s.queue = jobs.NewQueue(notifyQueue, s.handle, queueCfg)
	return s
}

// Start begins background delivery.
func (s *NotificationService) Start(ctx context.Context) { s.queue.Start(ctx) }

// Stop drains the workers.
func (s *NotificationService) Stop() { s.queue.Stop() }

// NotifyCheckIn queues the new-visit alert for the host and superusers.
func (s *NotificationService) NotifyCheckIn(v models.Visitor) {
	s.enqueue(jobCheckInSMS, checkInJob{Visitor: v})
}

// NotifyApproval queues the visitor-facing approval SMS and, for
// appointments, the QR code email.
func (s *NotificationService) NotifyApproval(v models.Visitor, approverName, qrCode string) {
	s.enqueue(jobApproval, approvalJob{Visitor: v, ApproverName: approverName, QRCode: qrCode})
}

// NotifyRejection queues the appointment rejection email.
func (s *NotificationService) NotifyRejection(v models.Visitor, reason *string) {
	s.enqueue(jobRejection, rejectionJob{Visitor: v, Reason: reason})
}

func (s *NotificationService) enqueue(jobType string, payload interface{}) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobType,
		Payload: payload,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("type", jobType), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	switch payload := job.Payload.(type) {
	case checkInJob:
		return s.sendCheckInAlerts(ctx, payload.Visitor)
	case approvalJob:
		return s.sendApprovalNotices(ctx, payload)
	case rejectionJob:
		return s.sendRejectionNotice(payload)
	default:
		s.logger.Warn("unknown notification job", zap.String("type", job.Type))
		return nil
	}
}

// sendCheckInAlerts notifies the matched host plus every superuser so
// front-desk escalations are visible to administrators.
func (s *NotificationService) sendCheckInAlerts(ctx context.Context, v models.Visitor) error {
	if s.sender == nil {
		return nil
	}

	hostName := v.PersonToMeet
	phones := make([]string, 0, 4)

	approver, err := s.approvers.FindByUsernameOrName(ctx, strings.TrimSpace(v.PersonToMeet))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("resolve host for notification: %w", err)
	}
	if approver != nil {
		hostName = approver.Name
		if approver.PhNo != nil && *approver.PhNo != "" {
			phones = append(phones, *approver.PhNo)
		}
	}

	superPhones, err := s.approvers.SuperuserPhones(ctx)
	if err != nil {
		s.logger.Warn("failed to load superuser phones", zap.Error(err))
	}
	for _, phone := range superPhones {
		if !containsPhone(phones, phone) {
			phones = append(phones, phone)
		}
	}

	if len(phones) == 0 {
		s.logger.Warn("no recipient for check-in alert",
			zap.Int64("visitor_id", v.ID),
			zap.String("person_to_meet", v.PersonToMeet))
		return nil
	}

	body := s.buildCheckInSMS(v, hostName)
	var lastErr error
	for _, phone := range phones {
		if err := s.sender.Send(phone, body); err != nil {
			s.logger.Warn("check-in alert failed",
				zap.String("to", phone),
				zap.Int64("visitor_id", v.ID),
				zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

func (s *NotificationService) sendApprovalNotices(ctx context.Context, job approvalJob) error {
	v := job.Visitor

	if s.sender != nil {
		body := s.buildApprovalSMS(v, job.ApproverName)
		if err := s.sender.Send(v.MobileNumber, body); err != nil {
			s.logger.Warn("approval sms failed",
				zap.Int64("visitor_id", v.ID),
				zap.Error(err))
		}
	}

	if s.mailer == nil || !v.IsAppointment() || job.QRCode == "" {
		return nil
	}
	if v.EmailAddress == nil || *v.EmailAddress == "" {
		s.logger.Warn("approved appointment has no email, skipping qr mail", zap.Int64("visitor_id", v.ID))
		return nil
	}

	extras := v.Extras()
	mail := mailer.QRMail{
		To:            *v.EmailAddress,
		VisitorName:   v.VisitorName,
		QRCode:        job.QRCode,
		VisitorNumber: v.VisitorNumber(),
		ApproverName:  job.ApproverName,
	}
	if extras.DateOfVisit != nil {
		mail.Date = *extras.DateOfVisit
	}
	if extras.TimeSlot != nil {
		mail.TimeSlot = *extras.TimeSlot
	}

	if err := s.mailer.SendAppointmentQR(mail); err != nil {
		return fmt.Errorf("send qr email: %w", err)
	}
	if err := s.appointments.MarkQRSent(ctx, v.ID); err != nil {
		s.logger.Warn("failed to record qr delivery", zap.Int64("visitor_id", v.ID), zap.Error(err))
	}
	return nil
}

func (s *NotificationService) sendRejectionNotice(job rejectionJob) error {
	v := job.Visitor
	if s.mailer == nil || !v.IsAppointment() {
		return nil
	}
	if v.EmailAddress == nil || *v.EmailAddress == "" {
		return nil
	}

	extras := v.Extras()
	mail := mailer.RejectionMail{
		To:          *v.EmailAddress,
		VisitorName: v.VisitorName,
	}
	if extras.DateOfVisit != nil {
		mail.Date = *extras.DateOfVisit
	}
	if extras.TimeSlot != nil {
		mail.TimeSlot = *extras.TimeSlot
	}
	if job.Reason != nil {
		mail.Reason = *job.Reason
	}

	if err := s.mailer.SendAppointmentRejection(mail); err != nil {
		return fmt.Errorf("send rejection email: %w", err)
	}
	return nil
}

func (s *NotificationService) buildCheckInSMS(v models.Visitor, hostName string) string {
	header := "🔔 New Visitor Check-In"
	if v.IsAppointment() {
		header = "🔔 New Appointment Request"
	}

	parts := []string{
		header,
		"",
		"Visitor Name: " + v.VisitorName,
		"Mobile: " + v.MobileNumber,
	}
	if v.EmailAddress != nil && *v.EmailAddress != "" {
		parts = append(parts, "Email: "+*v.EmailAddress)
	}
	if v.Company != nil && *v.Company != "" {
		parts = append(parts, "Company: "+*v.Company)
	}
	if hostName != "" {
		parts = append(parts, "Coming to Meet: "+hostName)
	}

	if v.IsAppointment() {
		extras := v.Extras()
		parts = append(parts, "", "📅 Appointment Details:")
		if extras.DateOfVisit != nil && *extras.DateOfVisit != "" {
			parts = append(parts, "Date: "+*extras.DateOfVisit)
		}
		if extras.TimeSlot != nil && *extras.TimeSlot != "" {
			parts = append(parts, "Time: "+*extras.TimeSlot)
		}
		parts = append(parts, "Purpose: "+v.Purpose())
	} else {
		parts = append(parts, "Reason: "+v.ReasonToVisit)
	}

	parts = append(parts, "Visitor ID: "+v.VisitorNumber())
	if v.Warehouse != nil && *v.Warehouse != "" {
		parts = append(parts, "Warehouse: "+*v.Warehouse)
	}

	parts = append(parts,
		"",
		"Please review and approve/reject the visitor request.",
		"",
		"Click here to view dashboard:",
		s.dashboardURL,
		"",
		"Login with your credentials if not already logged in.",
	)
	return strings.Join(parts, "\n")
}

func (s *NotificationService) buildApprovalSMS(v models.Visitor, approverName string) string {
	parts := []string{
		"✅ Your visit request has been approved!",
		"",
		"Dear " + v.VisitorName + ",",
		"",
	}

	if v.IsAppointment() {
		parts = append(parts, "Your appointment request has been approved. Please come and visit us.")
		extras := v.Extras()
		if extras.DateOfVisit != nil && *extras.DateOfVisit != "" {
			parts = append(parts, "📅 Date: "+*extras.DateOfVisit)
		}
		if extras.TimeSlot != nil && *extras.TimeSlot != "" {
			parts = append(parts, "🕐 Time: "+*extras.TimeSlot)
		}
	} else {
		parts = append(parts, "Your visit request has been approved. Please come and visit us at your convenience.")
	}

	if approverName != "" {
		parts = append(parts, "👤 Meeting with: "+approverName)
	}
	parts = append(parts, "🆔 Visitor ID: "+v.VisitorNumber())

	parts = append(parts,
		"",
		"We look forward to seeing you!",
		"",
		"Thank you,",
		teamSignature,
	)
	return strings.Join(parts, "\n")
}

func containsPhone(phones []string, phone string) bool {
	for _, p := range phones {
		if p == phone {
			return true
		}
	}
	return false
}
