package models

import "time"

// SessionStatus is the latest self-reported state for one session in a
// conversation. One row per (conversation, session), upserted on every
// update. Liveness is derived from heartbeat age, never stored.
type SessionStatus struct {
	ConversationID string `gorm:"primaryKey;size:32"`
	SessionID      string `gorm:"primaryKey;size:8"`
	Status         string `gorm:"size:16;not null"`
	LastHeartbeat  time.Time
}
