// Package auth issues and verifies per-session HMAC tokens.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dannystocker/mcp-multiagent-bridge/internal/models"
	"gorm.io/gorm"
)

// Authenticator verifies session tokens against the conversation store.
// The signing secret is generated once at construction and lives only in
// process memory: a restart invalidates every outstanding token. That trade
// is intentional; there is no rotation and no persistence.
type Authenticator struct {
	db     *gorm.DB
	secret []byte
	now    func() time.Time
}

// New creates an Authenticator with a fresh 32-byte random secret.
func New(db *gorm.DB) (*Authenticator, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("auth: generate secret: %w", err)
	}
	return &Authenticator{db: db, secret: secret, now: time.Now}, nil
}

// IssueToken derives a session token as an HMAC-SHA256 over the conversation,
// session, and issue instant. The hex digest is 64 characters.
func (a *Authenticator) IssueToken(convID, sessionID string) string {
	mac := hmac.New(sha256.New, a.secret)
	fmt.Fprintf(mac, "%s:%s:%s", convID, sessionID, a.now().UTC().Format(time.RFC3339Nano))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the token matches the one stored for the session.
// A missing conversation, an expired conversation, an unknown session, and a
// wrong token all collapse to the same false; callers learn nothing about
// which check failed.
func (a *Authenticator) Verify(convID, sessionID, token string) bool {
	var conv models.Conversation
	if err := a.db.First(&conv, "id = ?", convID).Error; err != nil {
		return false
	}
	if a.now().After(conv.ExpiresAt) {
		return false
	}

	var expected string
	switch sessionID {
	case "a":
		expected = conv.SessionAToken
	case "b":
		expected = conv.SessionBToken
	default:
		return false
	}

	return hmac.Equal([]byte(token), []byte(expected))
}
