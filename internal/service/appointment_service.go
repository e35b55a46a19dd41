package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gatewise/vms-api/internal/models"
	appErrors "github.com/gatewise/vms-api/pkg/errors"
)

type appointmentRepository interface {
	GetByVisitorID(ctx context.Context, visitorID int64) (*models.Appointment, error)
	GetByQRCode(ctx context.Context, qrCode string) (*models.Appointment, error)
	List(ctx context.Context, limit, offset int) ([]models.Appointment, error)
}

// AppointmentService exposes read access to appointment rows, mainly
// for gate-side QR verification.
type AppointmentService struct {
	repo   appointmentRepository
	logger *zap.Logger
}

// NewAppointmentService constructs an AppointmentService instance.
func NewAppointmentService(repo appointmentRepository, logger *zap.Logger) *AppointmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentService{repo: repo, logger: logger}
}

// List returns appointments, newest first.
func (s *AppointmentService) List(ctx context.Context, limit, offset int) ([]models.Appointment, error) {
	appointments, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	return appointments, nil
}

// GetByVisitor fetches the appointment for a visit.
func (s *AppointmentService) GetByVisitor(ctx context.Context, visitorID int64) (*models.Appointment, error) {
	appointment, err := s.repo.GetByVisitorID(ctx, visitorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no appointment for visitor %d", visitorID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch appointment")
	}
	return appointment, nil
}

// VerifyQRCode resolves a scanned QR token to its appointment. Only a
// CONFIRMED appointment passes the gate.
func (s *AppointmentService) VerifyQRCode(ctx context.Context, qrCode string) (*models.Appointment, error) {
	qrCode = strings.TrimSpace(qrCode)
	if qrCode == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "qr code required")
	}

	appointment, err := s.repo.GetByQRCode(ctx, qrCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invalid or unknown QR code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify qr code")
	}
	if appointment.Status != models.AppointmentConfirmed {
		return nil, appErrors.Clone(appErrors.ErrForbidden,
			fmt.Sprintf("appointment is %s, entry not permitted", appointment.Status))
	}

	s.logger.Info("qr code verified",
		zap.Int64("visitor_id", appointment.VisitorID),
		zap.String("qr_code", qrCode))
	return appointment, nil
}
