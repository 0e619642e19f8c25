package models

import (
	"time"
)

const (
	ReservationStatusActive    = "active"
	ReservationStatusCancelled = "cancelled"
)

type Reservation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	Spots     int       `json:"spots"`
	Status    string    `json:"status"` // active, cancelled
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the reservation still counts toward the
// user's capacity totals.
func (r *Reservation) Active() bool {
	return r.Status == ReservationStatusActive
}

type ReservationPage struct {
	Items      []*Reservation `json:"items"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalItems int            `json:"total_items"`
	TotalPages int            `json:"total_pages"`
}
