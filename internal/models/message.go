package models

import "time"

// Message is one redacted payload from one session to the other. The read
// flag moves false to true exactly once; a message is delivered at most once.
type Message struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	ConversationID string    `gorm:"size:32;not null;index"`
	FromSession    string    `gorm:"size:8;not null"`
	ToSession      string    `gorm:"size:8;not null;index:idx_to_unread"`
	Body           string    `gorm:"type:text"`
	Metadata       string    `gorm:"type:json"`
	Timestamp      time.Time
	Read           bool `gorm:"default:false;index:idx_to_unread"`
}
