package model

import "time"

// Notification is a persisted, user-facing record of a job transition.
type Notification struct {
	ID        string             `json:"id"`
	Message   string             `json:"message"`
	Status    NotificationStatus `json:"status"`
	IsRead    bool               `json:"isRead"`
	CreatedAt time.Time          `json:"timestamp"`
}
