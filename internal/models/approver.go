package models

import "time"

// Approver represents a host who can approve or reject visits.
// Admin-table users are mapped into the same shape at login with
// Admin=true, Superuser=false and no phone number.
type Approver struct {
	ID             int       `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	Email          string    `db:"email" json:"email"`
	Name           string    `db:"name" json:"name"`
	PhNo           *string   `db:"ph_no" json:"ph_no,omitempty"`
	Warehouse      *string   `db:"warehouse" json:"warehouse,omitempty"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	Superuser      bool      `db:"superuser" json:"superuser"`
	Admin          bool      `db:"admin" json:"admin"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ApproverSimple is the public selection-list projection.
type ApproverSimple struct {
	Username string  `db:"username" json:"username"`
	Name     string  `db:"name" json:"name"`
	Email    string  `db:"email" json:"email"`
	PhNo     *string `db:"ph_no" json:"ph_no,omitempty"`
}

// CreateApproverRequest is the superuser-only creation payload.
type CreateApproverRequest struct {
	Username  string  `json:"username" validate:"required"`
	Email     string  `json:"email" validate:"required,email"`
	Name      string  `json:"name" validate:"required"`
	Password  string  `json:"password" validate:"required,min=6"`
	PhNo      *string `json:"ph_no"`
	Warehouse *string `json:"warehouse"`
	Superuser bool    `json:"superuser"`
	Admin     bool    `json:"admin"`
}

// UpdateApproverRequest carries optional field updates for an approver.
type UpdateApproverRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	Name      *string `json:"name"`
	Password  *string `json:"password" validate:"omitempty,min=6"`
	PhNo      *string `json:"ph_no"`
	Warehouse *string `json:"warehouse"`
	Superuser *bool   `json:"superuser"`
	Admin     *bool   `json:"admin"`
	IsActive  *bool   `json:"is_active"`
}
