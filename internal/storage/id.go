package storage

import (
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"regexp"

	"github.com/google/uuid"
)

const (
	// SHA1Short is the id length shown in listings.
	SHA1Short = 7
	// SHA1MinLen is the shortest prefix matched against ids.
	SHA1MinLen = 4
)

// SHA1Regexp matches a full conversation id.
var SHA1Regexp = regexp.MustCompile(`\b[0-9a-f]{40}\b`)

// NewConversationID returns a new 40 character hex id.
func NewConversationID() string {
	u := uuid.New()
	sum := sha1.Sum(u[:]) //nolint:gosec // identifier, not a secret
	return hex.EncodeToString(sum[:])
}
