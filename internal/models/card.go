package models

import "time"

// Card represents a physical visitor badge. At most one visit holds a
// card at a time; OccupiedBy points at the holding visit.
type Card struct {
	ID         int       `db:"id" json:"id"`
	CardName   string    `db:"card_name" json:"card_name"`
	Occupied   bool      `db:"occupied" json:"occupied"`
	OccupiedBy *int64    `db:"occupied_by" json:"occupied_by,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CreateCardRequest registers a new badge.
type CreateCardRequest struct {
	CardName string `json:"card_name" validate:"required"`
}

// UpdateCardRequest renames a badge.
type UpdateCardRequest struct {
	CardName string `json:"card_name" validate:"required"`
}

// AssignCardRequest binds a badge to a visit.
type AssignCardRequest struct {
	VisitorID string `json:"visitor_id" validate:"required"`
}

// CardStats aggregates badge pool occupancy.
type CardStats struct {
	Total     int `db:"total" json:"total"`
	Occupied  int `db:"occupied" json:"occupied"`
	Available int `db:"available" json:"available"`
}
