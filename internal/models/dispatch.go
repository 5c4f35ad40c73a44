package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DispatchPending = "pending"
	DispatchSent    = "sent"
	DispatchFailed  = "failed"
)

// Dispatch records one notification attempt for an alert.
type Dispatch struct {
	ID        uuid.UUID  `json:"id"`
	AlertID   uuid.UUID  `json:"alert_id"`
	Recipient string     `json:"recipient"`
	Status    string     `json:"status"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}
