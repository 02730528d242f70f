// Package store persists conversations, messages, session status, and the
// audit trail.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dannystocker/mcp-multiagent-bridge/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewConversationID creates an unguessable conversation ID in
// conv_xxxxxxxxxxxxxxxx format (16-char hex).
func NewConversationID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("store: generate conversation ID: %w", err)
	}
	return "conv_" + hex.EncodeToString(b), nil
}

// CreateConversation inserts a new conversation row. The caller supplies the
// already-issued per-session tokens.
func CreateConversation(db *gorm.DB, conv *models.Conversation) error {
	if conv.ID == "" {
		return fmt.Errorf("store: conversation ID is required")
	}
	if err := db.Create(conv).Error; err != nil {
		return fmt.Errorf("store: create conversation %s: %w", conv.ID, err)
	}
	return nil
}

// GetConversation loads a conversation by ID.
func GetConversation(db *gorm.DB, convID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := db.First(&conv, "id = ?", convID).Error; err != nil {
		return nil, fmt.Errorf("store: conversation %s: %w", convID, err)
	}
	return &conv, nil
}

// ListConversations returns all conversations, newest first.
func ListConversations(db *gorm.DB) ([]models.Conversation, error) {
	var convs []models.Conversation
	if err := db.Order("created_at DESC").Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	return convs, nil
}

// InsertMessage appends a message row.
func InsertMessage(db *gorm.DB, msg *models.Message) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("store: conversation ID is required")
	}
	if err := db.Create(msg).Error; err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}
	return nil
}

// UnreadMessages returns all unread messages addressed to the session, oldest
// first, and marks them read. Select and mark run in a single transaction so
// concurrent receivers of the same session partition the unread set
// disjointly; no message is delivered twice.
func UnreadMessages(db *gorm.DB, convID, sessionID string) ([]models.Message, error) {
	var msgs []models.Message

	err := db.Transaction(func(tx *gorm.DB) error {
		// `read` is reserved in MySQL, so the column is quoted explicitly.
		if err := tx.Clauses(unreadLock(tx)...).
			Where("conversation_id = ? AND to_session = ? AND `read` = ?", convID, sessionID, false).
			Order("timestamp ASC").Find(&msgs).Error; err != nil {
			return fmt.Errorf("select unread: %w", err)
		}
		if len(msgs) == 0 {
			return nil
		}

		ids := make([]uint, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		if err := tx.Model(&models.Message{}).Where("id IN ?", ids).
			Update("read", true).Error; err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: unread messages for %s/%s: %w", convID, sessionID, err)
	}
	return msgs, nil
}

// unreadLock returns a FOR UPDATE clause on MySQL, whose REPEATABLE READ
// snapshot would otherwise let two concurrent receivers select the same
// unread rows before either marks them. sqlite serializes writing
// transactions and rejects the clause, so it gets none.
func unreadLock(tx *gorm.DB) []clause.Expression {
	if tx.Dialector.Name() == "mysql" {
		return []clause.Expression{clause.Locking{Strength: "UPDATE"}}
	}
	return nil
}

// ConversationMessages returns every message in a conversation in delivery
// order, read or not. Inspection use only.
func ConversationMessages(db *gorm.DB, convID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := db.Where("conversation_id = ?", convID).
		Order("timestamp ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("store: messages for %s: %w", convID, err)
	}
	return msgs, nil
}

// UpsertStatus writes the latest status and heartbeat for a session,
// replacing any previous row for the same (conversation, session).
func UpsertStatus(db *gorm.DB, convID, sessionID, status string, heartbeat time.Time) error {
	row := models.SessionStatus{
		ConversationID: convID,
		SessionID:      sessionID,
		Status:         status,
		LastHeartbeat:  heartbeat,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_heartbeat"}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("store: upsert status %s/%s: %w", convID, sessionID, result.Error)
	}
	return nil
}

// GetStatus loads the stored status row for a session, or gorm.ErrRecordNotFound.
func GetStatus(db *gorm.DB, convID, sessionID string) (*models.SessionStatus, error) {
	var row models.SessionStatus
	err := db.Where("conversation_id = ? AND session_id = ?", convID, sessionID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// AppendAudit records one audit entry. Details are serialized as JSON.
func AppendAudit(db *gorm.DB, convID, sessionID, action string, details map[string]interface{}) error {
	if action == "" {
		return fmt.Errorf("store: audit action is required")
	}
	payload := "{}"
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("store: marshal audit details: %w", err)
		}
		payload = string(data)
	}
	entry := models.AuditEntry{
		ConversationID: convID,
		SessionID:      sessionID,
		Action:         action,
		Details:        payload,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("store: append audit: %w", err)
	}
	return nil
}

// RecentAudit returns the newest audit entries, up to limit.
func RecentAudit(db *gorm.DB, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.AuditEntry
	if err := db.Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("store: recent audit: %w", err)
	}
	return entries, nil
}

// PurgeExpired deletes conversations past their expiry along with their
// messages and status rows. Returns the number of conversations removed.
func PurgeExpired(db *gorm.DB, now time.Time) (int64, error) {
	var purged int64

	err := db.Transaction(func(tx *gorm.DB) error {
		var expired []models.Conversation
		if err := tx.Where("expires_at < ?", now).Find(&expired).Error; err != nil {
			return fmt.Errorf("find expired: %w", err)
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]string, len(expired))
		for i, c := range expired {
			ids[i] = c.ID
		}
		if err := tx.Where("conversation_id IN ?", ids).
			Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Where("conversation_id IN ?", ids).
			Delete(&models.SessionStatus{}).Error; err != nil {
			return fmt.Errorf("delete status: %w", err)
		}
		if err := tx.Where("id IN ?", ids).
			Delete(&models.Conversation{}).Error; err != nil {
			return fmt.Errorf("delete conversations: %w", err)
		}
		purged = int64(len(ids))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: purge expired: %w", err)
	}
	return purged, nil
}
