package models

import "time"

// Conversation pairs exactly two sessions, addressed as "a" and "b".
// Tokens are issued once at creation and never reused across conversations.
type Conversation struct {
	ID            string `gorm:"primaryKey;size:32"`
	SessionARole  string `gorm:"size:100;not null"`
	SessionBRole  string `gorm:"size:100;not null"`
	SessionAToken string `gorm:"size:64;not null"`
	SessionBToken string `gorm:"size:64;not null"`
	CreatedAt     time.Time
	ExpiresAt     time.Time `gorm:"index"`

	Messages []Message `gorm:"foreignKey:ConversationID"`
}
