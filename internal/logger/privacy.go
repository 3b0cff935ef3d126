package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// MinHashSaltLength is the shortest LOG_HASH_SALT accepted by InitHashSalt.
const MinHashSaltLength = 32

var hashSalt string

// InitHashSalt loads LOG_HASH_SALT. It panics when the salt is missing or
// shorter than MinHashSaltLength, since hashed ids would be trivially reversible.
func InitHashSalt() {
	salt := os.Getenv("LOG_HASH_SALT")
	if salt == "" {
		panic("LOG_HASH_SALT is required")
	}
	if len(salt) < MinHashSaltLength {
		panic(fmt.Sprintf("LOG_HASH_SALT must be at least %d characters", MinHashSaltLength))
	}
	hashSalt = salt
}

// InitHashSaltForTesting sets the salt directly.
func InitHashSaltForTesting(salt string) {
	hashSalt = salt
}

// HashUserID creates a privacy-preserving hash of a user ID.
// This allows tracking user actions without exposing actual user IDs.
func HashUserID(userID int64) string {
	return hashID(userID)
}

// HashChatID creates a privacy-preserving hash of a chat ID.
func HashChatID(chatID int64) string {
	return hashID(chatID)
}

func hashID(id int64) string {
	data := fmt.Sprintf("%d:%s", id, hashSalt)
	hash := sha256.Sum256([]byte(data))
	// First 8 hex characters for readability.
	return hex.EncodeToString(hash[:])[:8]
}

// SanitizeText is a general-purpose sanitizer for any user-provided text.
func SanitizeText(text string) string {
	if text == "" {
		return "<empty>"
	}

	runes := []rune(text)
	if len(runes) <= 10 {
		return fmt.Sprintf("<%d chars>", len(runes))
	}

	return fmt.Sprintf("%s...<%d chars>", string(runes[:3]), len(runes))
}
