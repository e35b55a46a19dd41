package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// VisitorStatus represents the approval state of a visit.
type VisitorStatus string

const (
	StatusWaiting  VisitorStatus = "WAITING"
	StatusApproved VisitorStatus = "APPROVED"
	StatusRejected VisitorStatus = "REJECTED"
)

// AppointmentReasonPrefix marks visits that originated from the
// appointment request form.
const AppointmentReasonPrefix = "[APPOINTMENT]"

// Visitor represents a single visit record. The primary key doubles as
// the visitor number handed to the visitor (YYYYMMDDHHMMSS of check-in).
type Visitor struct {
	ID              int64         `db:"id" json:"id"`
	VisitorName     string        `db:"visitor_name" json:"visitor_name"`
	MobileNumber    string        `db:"mobile_number" json:"mobile_number"`
	EmailAddress    *string       `db:"email_address" json:"email_address,omitempty"`
	Company         *string       `db:"company" json:"company,omitempty"`
	PersonToMeet    string        `db:"person_to_meet" json:"person_to_meet"`
	ReasonToVisit   string        `db:"reason_to_visit" json:"reason_to_visit"`
	Warehouse       *string       `db:"warehouse" json:"warehouse,omitempty"`
	ExtraData       *string       `db:"extra_data" json:"extra_data,omitempty"`
	Status          VisitorStatus `db:"status" json:"status"`
	ImgURL          *string       `db:"img_url" json:"img_url,omitempty"`
	RejectionReason *string       `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CheckInTime     time.Time     `db:"check_in_time" json:"check_in_time"`
	CheckOutTime    *time.Time    `db:"check_out_time" json:"check_out_time,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// IsAppointment reports whether the visit came in through the
// appointment form.
func (v *Visitor) IsAppointment() bool {
	return strings.HasPrefix(v.ReasonToVisit, AppointmentReasonPrefix)
}

// Purpose strips the appointment marker from the stored reason.
func (v *Visitor) Purpose() string {
	return strings.TrimSpace(strings.TrimPrefix(v.ReasonToVisit, AppointmentReasonPrefix))
}

// VisitorNumber formats the primary key as the 14-digit visitor number.
func (v *Visitor) VisitorNumber() string {
	return fmt.Sprintf("%d", v.ID)
}

// VisitExtras holds the appointment-form details stored as JSON in the
// visit's extra_data column.
type VisitExtras struct {
	DateOfVisit       *string `json:"date_of_visit,omitempty"`
	TimeSlot          *string `json:"time_slot,omitempty"`
	CarryingItems     *string `json:"carrying_items,omitempty"`
	AdditionalRemarks *string `json:"additional_remarks,omitempty"`
	Source            string  `json:"source,omitempty"`
	SheetName         *string `json:"sheet_name,omitempty"`
	RowNumber         *int    `json:"row_number,omitempty"`
	SubmittedAt       *string `json:"submitted_at,omitempty"`
}

// Extras decodes the stored extra data. A missing or malformed blob
// yields the zero value.
func (v *Visitor) Extras() VisitExtras {
	var extras VisitExtras
	if v.ExtraData == nil || *v.ExtraData == "" {
		return extras
	}
	_ = json.Unmarshal([]byte(*v.ExtraData), &extras)
	return extras
}

// VisitorFilter captures filtering criteria for listing visits.
type VisitorFilter struct {
	Status       *VisitorStatus
	PersonToMeet string
	Warehouse    string
	Search       string
	Page         int
	PageSize     int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// CheckInRequest is the walk-in intake payload.
type CheckInRequest struct {
	VisitorName   string  `json:"visitor_name" form:"visitor_name" validate:"required"`
	MobileNumber  string  `json:"mobile_number" form:"mobile_number" validate:"required"`
	EmailAddress  *string `json:"email_address" form:"email_address" validate:"omitempty,email"`
	Company       *string `json:"company" form:"company"`
	PersonToMeet  string  `json:"person_to_meet" form:"person_to_meet" validate:"required"`
	ReasonToVisit string  `json:"reason_to_visit" form:"reason_to_visit" validate:"required"`
	Warehouse     *string `json:"warehouse" form:"warehouse"`
}

// FormIntakeRequest is the appointment-form intake payload. The host is
// given as a free-text name and resolved against registered approvers.
type FormIntakeRequest struct {
	VisitorName       string  `json:"visitor_name" validate:"required"`
	MobileNumber      string  `json:"mobile_number" validate:"required"`
	EmailAddress      *string `json:"email_address" validate:"omitempty,email"`
	Company           *string `json:"company"`
	PersonToMeet      string  `json:"person_to_meet" validate:"required"`
	Purpose           string  `json:"purpose" validate:"required"`
	DateOfVisit       *string `json:"date_of_visit"`
	TimeSlot          *string `json:"time_slot"`
	CarryingItems     *string `json:"carrying_items"`
	AdditionalRemarks *string `json:"additional_remarks"`
	Source            string  `json:"source"`
	SheetName         *string `json:"sheet_name"`
	RowNumber         *int    `json:"row_number"`
	SubmittedAt       *string `json:"submitted_at"`
}

// UpdateVisitorRequest carries optional field updates for a visit.
type UpdateVisitorRequest struct {
	VisitorName   *string `json:"visitor_name"`
	MobileNumber  *string `json:"mobile_number"`
	EmailAddress  *string `json:"email_address" validate:"omitempty,email"`
	Company       *string `json:"company"`
	PersonToMeet  *string `json:"person_to_meet"`
	ReasonToVisit *string `json:"reason_to_visit"`
	Warehouse     *string `json:"warehouse"`
}

// DecisionRequest moves a WAITING visit to its final state.
type DecisionRequest struct {
	Status          VisitorStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	RejectionReason *string       `json:"rejection_reason"`
}

// VisitorStats aggregates visit counts for the dashboard.
type VisitorStats struct {
	Total      int `db:"total" json:"total"`
	Waiting    int `db:"waiting" json:"waiting"`
	Approved   int `db:"approved" json:"approved"`
	Rejected   int `db:"rejected" json:"rejected"`
	CheckedOut int `db:"checked_out" json:"checked_out"`
	Today      int `db:"today" json:"today"`
}

// NewVisitorID derives the visit identifier from its check-in time.
func NewVisitorID(t time.Time) int64 {
	var id int64
	_, _ = fmt.Sscanf(t.Format("20060102150405"), "%d", &id)
	return id
}

// ParseVisitorID validates an incoming visitor identifier. A 14-digit
// value must encode a real calendar timestamp; numeric values of any
// other length pass through untouched.
func ParseVisitorID(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("visitor id required")
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("visitor id must be numeric")
		}
	}

	var id int64
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid visitor id: %w", err)
	}

	if len(raw) == 14 {
		ts, err := time.Parse("20060102150405", raw)
		if err != nil {
			return 0, fmt.Errorf("visitor id does not encode a valid timestamp")
		}
		if ts.Year() < 1900 || ts.Year() > 2100 {
			return 0, fmt.Errorf("visitor id year out of range")
		}
	}

	return id, nil
}
