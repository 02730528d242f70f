package models

import "time"

// AuditEntry records one state-changing or denied operation. Append-only;
// the bridge never mutates or deletes entries.
type AuditEntry struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ConversationID string `gorm:"size:32;index"`
	SessionID      string `gorm:"size:8"`
	Action         string `gorm:"size:64;not null"`
	Details        string `gorm:"type:json"`
	CreatedAt      time.Time
}
