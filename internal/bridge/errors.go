package bridge

import "errors"

// Sentinel errors for the bridge's failure taxonomy. Callers match with
// errors.Is; wrapped messages carry the human-readable detail.
var (
	// ErrAuthentication covers missing conversations, expired conversations,
	// and wrong tokens alike. The message never says which.
	ErrAuthentication = errors.New("bridge: authentication failed")

	// ErrRateLimited is wrapped with a remaining-time reason. The bridge
	// never retries on the caller's behalf.
	ErrRateLimited = errors.New("bridge: rate limit exceeded")

	// ErrValidation marks malformed input against declared constraints.
	ErrValidation = errors.New("bridge: invalid input")
)
