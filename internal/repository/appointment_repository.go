package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gatewise/vms-api/internal/models"
)

const appointmentColumns = `id, visitor_id, visitor_name, mobile_number, email_address, company,
person_to_meet, purpose, date_of_visit, preferred_time_slot, carrying_items, additional_remarks,
source, status, qr_code, qr_code_sent, created_at, updated_at`

// AppointmentRepository persists appointment rows. Each visit owns at
// most one row, enforced by a unique index on visitor_id.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs the repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// UpsertForVisitor inserts the appointment or, when the visit already
// has one, replaces its decision state and QR code.
func (r *AppointmentRepository) UpsertForVisitor(ctx context.Context, a *models.Appointment) error {
	const query = `INSERT INTO appointments (visitor_id, visitor_name, mobile_number, email_address,
company, person_to_meet, purpose, date_of_visit, preferred_time_slot, carrying_items,
additional_remarks, source, status, qr_code, qr_code_sent, created_at, updated_at)
VALUES (:visitor_id, :visitor_name, :mobile_number, :email_address,
:company, :person_to_meet, :purpose, :date_of_visit, :preferred_time_slot, :carrying_items,
:additional_remarks, :source, :status, :qr_code, :qr_code_sent, :created_at, :updated_at)
ON CONFLICT (visitor_id)
DO UPDATE SET status = EXCLUDED.status, qr_code = EXCLUDED.qr_code,
              qr_code_sent = EXCLUDED.qr_code_sent, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("upsert appointment: %w", err)
	}
	return nil
}

// GetByVisitorID fetches the appointment for a visit.
func (r *AppointmentRepository) GetByVisitorID(ctx context.Context, visitorID int64) (*models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE visitor_id = $1`, appointmentColumns)
	var a models.Appointment
	if err := r.db.GetContext(ctx, &a, query, visitorID); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByQRCode fetches an appointment by its QR token.
func (r *AppointmentRepository) GetByQRCode(ctx context.Context, qrCode string) (*models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE qr_code = $1`, appointmentColumns)
	var a models.Appointment
	if err := r.db.GetContext(ctx, &a, query, qrCode); err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns appointments, newest first.
func (r *AppointmentRepository) List(ctx context.Context, limit, offset int) ([]models.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM appointments ORDER BY created_at DESC LIMIT $1 OFFSET $2`, appointmentColumns)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

// MarkQRSent records that the QR email was delivered.
func (r *AppointmentRepository) MarkQRSent(ctx context.Context, visitorID int64) error {
	const query = `UPDATE appointments SET qr_code_sent = TRUE, updated_at = $2 WHERE visitor_id = $1`
	if _, err := r.db.ExecContext(ctx, query, visitorID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark qr sent: %w", err)
	}
	return nil
}
