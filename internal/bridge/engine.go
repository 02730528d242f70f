// Package bridge implements authenticated, rate-limited, secret-redacted
// message exchange between two agent sessions.
package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dannystocker/mcp-multiagent-bridge/internal/auth"
	"github.com/dannystocker/mcp-multiagent-bridge/internal/models"
	"github.com/dannystocker/mcp-multiagent-bridge/internal/ratelimit"
	"github.com/dannystocker/mcp-multiagent-bridge/internal/redact"
	"github.com/dannystocker/mcp-multiagent-bridge/internal/store"
	"gorm.io/gorm"
)

// DefaultConversationTTL is the fixed conversation lifetime from creation.
const DefaultConversationTTL = 3 * time.Hour

// heartbeatLiveness is the maximum heartbeat age for a session to count as alive.
const heartbeatLiveness = 120 * time.Second

// Engine wires authentication, rate limiting, and redaction in front of the
// conversation store. All methods are safe for concurrent use.
type Engine struct {
	db      *gorm.DB
	auth    *auth.Authenticator
	limiter *ratelimit.Limiter
	ttl     time.Duration
	now     func() time.Time
}

// New creates an Engine over an already-migrated store.
func New(db *gorm.DB, limiter *ratelimit.Limiter, ttl time.Duration) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("bridge: db is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("bridge: limiter is required")
	}
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	a, err := auth.New(db)
	if err != nil {
		return nil, err
	}
	return &Engine{db: db, auth: a, limiter: limiter, ttl: ttl, now: time.Now}, nil
}

// DB exposes the underlying store connection for collaborators.
func (e *Engine) DB() *gorm.DB { return e.db }

// ConversationGrant is returned from CreateConversation. Each token must be
// handed to its own session over a secure channel.
type ConversationGrant struct {
	ConversationID string
	SessionAToken  string
	SessionBToken  string
	ExpiresAt      time.Time
}

// CreateConversation creates a conversation with fresh tokens for both
// sessions and a fixed expiry.
func (e *Engine) CreateConversation(roleA, roleB string) (*ConversationGrant, error) {
	if err := validateRole(roleA); err != nil {
		return nil, err
	}
	if err := validateRole(roleB); err != nil {
		return nil, err
	}

	convID, err := store.NewConversationID()
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	conv := &models.Conversation{
		ID:            convID,
		SessionARole:  roleA,
		SessionBRole:  roleB,
		SessionAToken: e.auth.IssueToken(convID, "a"),
		SessionBToken: e.auth.IssueToken(convID, "b"),
		CreatedAt:     now,
		ExpiresAt:     now.Add(e.ttl),
	}
	if err := store.CreateConversation(e.db, conv); err != nil {
		return nil, err
	}

	e.audit(convID, "", "create_conversation", map[string]interface{}{
		"roles": []string{roleA, roleB},
	})

	return &ConversationGrant{
		ConversationID: convID,
		SessionAToken:  conv.SessionAToken,
		SessionBToken:  conv.SessionBToken,
		ExpiresAt:      conv.ExpiresAt,
	}, nil
}

// SendResult reports whether redaction altered the stored content. Callers
// should warn the sender when it did.
type SendResult struct {
	Redacted bool
}

// Send delivers a message to the partner session. Checks run in a fixed
// order: rate limit, then authentication, then redaction; a denial
// short-circuits before any persistence or redaction work.
func (e *Engine) Send(convID, sessionID, token, body string, metadata map[string]interface{}) (*SendResult, error) {
	if err := validateCaller(convID, sessionID, token); err != nil {
		return nil, err
	}
	if len(body) > maxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrValidation, maxMessageLength)
	}

	if allowed, reason := e.limiter.Check(sessionID); !allowed {
		e.audit(convID, sessionID, "rate_limit_exceeded", map[string]interface{}{
			"reason": reason,
		})
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, reason)
	}

	if !e.auth.Verify(convID, sessionID, token) {
		e.audit(convID, sessionID, "auth_failed", map[string]interface{}{
			"operation": "send_message",
		})
		return nil, ErrAuthentication
	}

	redactedBody := redact.Redact(body)

	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	rawMeta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("bridge: marshal metadata: %w", err)
	}
	redactedMeta := redact.Redact(string(rawMeta))

	changed := redactedBody != body || redactedMeta != string(rawMeta)

	msg := &models.Message{
		ConversationID: convID,
		FromSession:    sessionID,
		ToSession:      other(sessionID),
		Body:           redactedBody,
		Metadata:       redactedMeta,
		Timestamp:      e.now().UTC(),
	}
	if err := store.InsertMessage(e.db, msg); err != nil {
		return nil, err
	}

	e.audit(convID, sessionID, "send_message", map[string]interface{}{
		"to":             msg.ToSession,
		"message_length": len(redactedBody),
		"redacted":       changed,
	})

	return &SendResult{Redacted: changed}, nil
}

// IncomingMessage is one delivered message with parsed metadata.
type IncomingMessage struct {
	ID        uint
	From      string
	Body      string
	Metadata  map[string]interface{}
	Timestamp time.Time
}

// Receive returns every unread message addressed to the session and marks it
// read. Calling again immediately returns an empty slice; no message is ever
// delivered by two separate calls.
func (e *Engine) Receive(convID, sessionID, token string) ([]IncomingMessage, error) {
	if err := validateCaller(convID, sessionID, token); err != nil {
		return nil, err
	}
	if !e.auth.Verify(convID, sessionID, token) {
		e.audit(convID, sessionID, "auth_failed", map[string]interface{}{
			"operation": "get_messages",
		})
		return nil, ErrAuthentication
	}

	rows, err := store.UnreadMessages(e.db, convID, sessionID)
	if err != nil {
		return nil, err
	}

	msgs := make([]IncomingMessage, 0, len(rows))
	for _, row := range rows {
		meta := map[string]interface{}{}
		if row.Metadata != "" {
			// Metadata was marshaled by the bridge; a parse failure would
			// mean store corruption, so fall back to the raw string.
			if err := json.Unmarshal([]byte(row.Metadata), &meta); err != nil {
				meta = map[string]interface{}{"raw": row.Metadata}
			}
		}
		msgs = append(msgs, IncomingMessage{
			ID:        row.ID,
			From:      row.FromSession,
			Body:      row.Body,
			Metadata:  meta,
			Timestamp: row.Timestamp,
		})
	}

	e.audit(convID, sessionID, "get_messages", map[string]interface{}{
		"count": len(msgs),
	})

	return msgs, nil
}

// UpdateStatus upserts the session's status row with a fresh heartbeat.
func (e *Engine) UpdateStatus(convID, sessionID, token, status string) error {
	if err := validateCaller(convID, sessionID, token); err != nil {
		return err
	}
	if err := validateStatus(status); err != nil {
		return err
	}
	if !e.auth.Verify(convID, sessionID, token) {
		e.audit(convID, sessionID, "auth_failed", map[string]interface{}{
			"operation": "update_status",
		})
		return ErrAuthentication
	}

	if err := store.UpsertStatus(e.db, convID, sessionID, status, e.now().UTC()); err != nil {
		return err
	}

	e.audit(convID, sessionID, "update_status", map[string]interface{}{
		"status": status,
	})
	return nil
}

// PartnerStatus is the partner session's latest reported state. Alive is
// derived from heartbeat age at read time.
type PartnerStatus struct {
	Status        string
	LastHeartbeat time.Time
	AgeSeconds    int
	Alive         bool
}

// GetPartnerStatus reports the other session's status and liveness. A partner
// that never reported yields status "unknown" and Alive false.
func (e *Engine) GetPartnerStatus(convID, sessionID, token string) (*PartnerStatus, error) {
	if err := validateCaller(convID, sessionID, token); err != nil {
		return nil, err
	}
	if !e.auth.Verify(convID, sessionID, token) {
		e.audit(convID, sessionID, "auth_failed", map[string]interface{}{
			"operation": "check_partner_status",
		})
		return nil, ErrAuthentication
	}

	row, err := store.GetStatus(e.db, convID, other(sessionID))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &PartnerStatus{Status: "unknown"}, nil
		}
		return nil, fmt.Errorf("bridge: partner status: %w", err)
	}

	age := e.now().UTC().Sub(row.LastHeartbeat)
	return &PartnerStatus{
		Status:        row.Status,
		LastHeartbeat: row.LastHeartbeat,
		AgeSeconds:    int(age.Seconds()),
		Alive:         age < heartbeatLiveness,
	}, nil
}

// Verify exposes session authentication to collaborators such as the
// command pipeline.
func (e *Engine) Verify(convID, sessionID, token string) bool {
	return e.auth.Verify(convID, sessionID, token)
}

// audit appends an entry, ignoring storage errors: a failed audit write must
// not turn a completed operation into a failure.
func (e *Engine) audit(convID, sessionID, action string, details map[string]interface{}) {
	_ = store.AppendAudit(e.db, convID, sessionID, action, details)
}
