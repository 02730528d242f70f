package bridge

import (
	"fmt"
	"regexp"
)

const (
	maxMessageLength = 50000
	minRoleLength    = 3
	maxRoleLength    = 100
	tokenLength      = 64
)

var conversationIDPattern = regexp.MustCompile(`^conv_[a-f0-9]{16}$`)

// validStatuses are the session states a party may report.
var validStatuses = map[string]bool{
	"working":  true,
	"waiting":  true,
	"blocked":  true,
	"complete": true,
}

func validateConversationID(convID string) error {
	if !conversationIDPattern.MatchString(convID) {
		return fmt.Errorf("%w: malformed conversation ID", ErrValidation)
	}
	return nil
}

func validateSessionID(sessionID string) error {
	if sessionID != "a" && sessionID != "b" {
		return fmt.Errorf("%w: session ID must be \"a\" or \"b\"", ErrValidation)
	}
	return nil
}

func validateToken(token string) error {
	if len(token) != tokenLength {
		return fmt.Errorf("%w: token must be %d characters", ErrValidation, tokenLength)
	}
	return nil
}

func validateRole(role string) error {
	if len(role) < minRoleLength || len(role) > maxRoleLength {
		return fmt.Errorf("%w: role must be %d-%d characters", ErrValidation, minRoleLength, maxRoleLength)
	}
	return nil
}

func validateStatus(status string) error {
	if !validStatuses[status] {
		return fmt.Errorf("%w: status must be one of working, waiting, blocked, complete", ErrValidation)
	}
	return nil
}

func validateCaller(convID, sessionID, token string) error {
	if err := validateConversationID(convID); err != nil {
		return err
	}
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	return validateToken(token)
}

// other returns the partner of a session.
func other(sessionID string) string {
	if sessionID == "a" {
		return "b"
	}
	return "a"
}
