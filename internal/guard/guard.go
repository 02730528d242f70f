// Package guard gates command execution behind human confirmation and
// single-use, time-limited approval tokens. Its state is deliberately
// separate from the conversation store: tokens live in a small keyed file
// readable only by the owning user, and every outcome is journaled to an
// append-only log of its own.
package guard

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DefaultTokenTTL is the approval token lifetime when none is given.
const DefaultTokenTTL = 300 * time.Second

// ConfirmationPhrase must be typed exactly during interactive enablement.
const ConfirmationPhrase = "I UNDERSTAND THE RISKS"

// EnvFlag is the environment variable that opts in to command execution.
const EnvFlag = "YOLO_MODE"

// tokenRecord is the persisted form of one approval token.
type tokenRecord struct {
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	TTLSeconds int        `json:"ttl_seconds"`
	Used       bool       `json:"used"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
}

// Guard owns the approval-token store and its audit journal. All methods are
// safe for concurrent use; Validate consumes a token atomically so exactly
// one caller wins a race on the same token.
type Guard struct {
	mu          sync.Mutex
	tokenFile   string
	journalFile string
	now         func() time.Time
}

// New creates a Guard persisting to the given token store and journal paths.
func New(tokenFile, journalFile string) *Guard {
	return &Guard{tokenFile: tokenFile, journalFile: journalFile, now: time.Now}
}

// Generate creates a single-use approval token valid for ttl.
func (g *Guard) Generate(ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("guard: generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	g.mu.Lock()
	defer g.mu.Unlock()

	tokens, err := g.loadTokens()
	if err != nil {
		return "", err
	}

	now := g.now()
	expiresAt := now.Add(ttl)
	tokens[token] = tokenRecord{
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
		TTLSeconds: int(ttl.Seconds()),
	}
	if err := g.saveTokens(tokens); err != nil {
		return "", err
	}

	g.journal("TOKEN_GENERATED", map[string]interface{}{
		"token_preview": preview(token),
		"ttl_seconds":   int(ttl.Seconds()),
		"expires_at":    expiresAt.Format(time.RFC3339),
	})

	return token, nil
}

// Validate consumes a token. It returns false for tokens that are absent,
// already used, or expired; otherwise it marks the token used and returns
// true. A second validation of the same token always fails.
func (g *Guard) Validate(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	tokens, err := g.loadTokens()
	if err != nil {
		g.journal("TOKEN_INVALID", map[string]interface{}{
			"token_preview": preview(token),
			"reason":        "store_unreadable",
		})
		return false
	}

	rec, ok := tokens[token]
	if !ok {
		g.journal("TOKEN_INVALID", map[string]interface{}{
			"token_preview": preview(token),
			"reason":        "not_found",
		})
		return false
	}
	if rec.Used {
		g.journal("TOKEN_INVALID", map[string]interface{}{
			"token_preview": preview(token),
			"reason":        "already_used",
		})
		return false
	}

	now := g.now()
	if now.After(rec.ExpiresAt) {
		g.journal("TOKEN_INVALID", map[string]interface{}{
			"token_preview": preview(token),
			"reason":        "expired",
			"expired_at":    rec.ExpiresAt.Format(time.RFC3339),
		})
		return false
	}

	rec.Used = true
	rec.UsedAt = &now
	tokens[token] = rec
	if err := g.saveTokens(tokens); err != nil {
		g.journal("TOKEN_INVALID", map[string]interface{}{
			"token_preview": preview(token),
			"reason":        "store_unwritable",
		})
		return false
	}

	g.journal("TOKEN_VALIDATED", map[string]interface{}{
		"token_preview": preview(token),
		"created_at":    rec.CreatedAt.Format(time.RFC3339),
		"used_at":       now.Format(time.RFC3339),
	})
	return true
}

// Cleanup removes expired tokens from the store and returns how many were purged.
func (g *Guard) Cleanup() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tokens, err := g.loadTokens()
	if err != nil {
		return 0, err
	}

	now := g.now()
	removed := 0
	for token, rec := range tokens {
		if now.After(rec.ExpiresAt) {
			delete(tokens, token)
			removed++
		}
	}
	if removed > 0 {
		if err := g.saveTokens(tokens); err != nil {
			return 0, err
		}
		g.journal("TOKENS_CLEANED", map[string]interface{}{"count": removed})
	}
	return removed, nil
}

// TokenInfo describes an active token without revealing it.
type TokenInfo struct {
	Preview    string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	TTLSeconds int
}

// Active lists unused, unexpired tokens, oldest first.
func (g *Guard) Active() ([]TokenInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tokens, err := g.loadTokens()
	if err != nil {
		return nil, err
	}

	now := g.now()
	var active []TokenInfo
	for token, rec := range tokens {
		if !rec.Used && !now.After(rec.ExpiresAt) {
			active = append(active, TokenInfo{
				Preview:    preview(token),
				CreatedAt:  rec.CreatedAt,
				ExpiresAt:  rec.ExpiresAt,
				TTLSeconds: rec.TTLSeconds,
			})
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })
	return active, nil
}

// loadTokens reads the token store. A missing or corrupted file yields an
// empty map; corruption means starting fresh rather than failing closed on
// generation (validation of unknown tokens still fails).
func (g *Guard) loadTokens() (map[string]tokenRecord, error) {
	data, err := os.ReadFile(g.tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]tokenRecord{}, nil
		}
		return nil, fmt.Errorf("guard: read token store: %w", err)
	}
	tokens := map[string]tokenRecord{}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return map[string]tokenRecord{}, nil
	}
	return tokens, nil
}

// saveTokens writes the token store with owner-only permissions.
func (g *Guard) saveTokens(tokens map[string]tokenRecord) error {
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("guard: marshal token store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(g.tokenFile), 0o700); err != nil {
		return fmt.Errorf("guard: create token directory: %w", err)
	}
	if err := os.WriteFile(g.tokenFile, data, 0o600); err != nil {
		return fmt.Errorf("guard: write token store: %w", err)
	}
	return nil
}

// journal appends one JSONL entry to the guard's own audit log. Failures are
// swallowed: the journal must never block a validation decision.
func (g *Guard) journal(action string, details map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": g.now().Format(time.RFC3339),
		"action":    action,
		"details":   details,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(g.journalFile), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(g.journalFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(append(data, '\n'))
}

// preview truncates a token for journaling; full tokens never reach the log.
func preview(token string) string {
	if len(token) <= 10 {
		return token + "..."
	}
	return token[:10] + "..."
}
