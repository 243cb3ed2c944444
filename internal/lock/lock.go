// Package lock implements the advisory editing lock stored in the lock
// column of nodes and content rows. The lock is cooperative: it blocks a
// second editor from completing a save, not from reading. There is no
// expiry; a stale lock is cleared by the holder's next successful save.
package lock

import (
	"encoding/json"
	"time"
)

// Token is the JSON blob stored in a lock column. Empty column = unlocked.
type Token struct {
	UserID    uint64 `json:"user_id"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// New returns the encoded lock token for the acting user.
func New(userID uint64, username string) string {
	buf, _ := json.Marshal(Token{
		UserID:    userID,
		Username:  username,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return string(buf)
}

// Parse decodes a lock column value. Empty input means unlocked and yields
// a nil token without error.
func Parse(raw string) (*Token, error) {
	if raw == "" {
		return nil, nil
	}
	var token Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// IsLockedByOther reports whether raw holds a lock owned by someone other
// than userID, returning the holder so callers can surface it. The owner
// always passes. A token that cannot be decoded counts as locked by an
// unknown holder rather than silently unlocked.
func IsLockedByOther(raw string, userID uint64) (bool, *Token) {
	token, err := Parse(raw)
	if err != nil {
		return true, &Token{Username: "unknown"}
	}
	if token == nil {
		return false, nil
	}
	if token.UserID == userID {
		return false, token
	}
	return true, token
}
