package models

import "time"

// AppointmentStatus tracks the appointment row lifecycle.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "PENDING"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
)

// Appointment mirrors an appointment-form visit. Each visit owns at
// most one appointment row; approvals upsert rather than insert.
type Appointment struct {
	ID                int               `db:"id" json:"id"`
	VisitorID         int64             `db:"visitor_id" json:"visitor_id"`
	VisitorName       string            `db:"visitor_name" json:"visitor_name"`
	MobileNumber      string            `db:"mobile_number" json:"mobile_number"`
	EmailAddress      *string           `db:"email_address" json:"email_address,omitempty"`
	Company           *string           `db:"company" json:"company,omitempty"`
	PersonToMeet      string            `db:"person_to_meet" json:"person_to_meet"`
	Purpose           string            `db:"purpose" json:"purpose"`
	DateOfVisit       *string           `db:"date_of_visit" json:"date_of_visit,omitempty"`
	PreferredTimeSlot *string           `db:"preferred_time_slot" json:"preferred_time_slot,omitempty"`
	CarryingItems     *string           `db:"carrying_items" json:"carrying_items,omitempty"`
	AdditionalRemarks *string           `db:"additional_remarks" json:"additional_remarks,omitempty"`
	Source            string            `db:"source" json:"source"`
	Status            AppointmentStatus `db:"status" json:"status"`
	QRCode            *string           `db:"qr_code" json:"qr_code,omitempty"`
	QRCodeSent        bool              `db:"qr_code_sent" json:"qr_code_sent"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}
