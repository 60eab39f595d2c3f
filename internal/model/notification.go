package model

import "time"

// Notification is an admin-facing event row. The backup engine writes one
// per lifecycle transition of automatic jobs; manual triggers are visible
// synchronously to their initiator and produce none.
type Notification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	IsRead    bool      `json:"is_read"`
}
