package helper

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GetTimestamp returns the current unix timestamp in milliseconds.
func GetTimestamp() int64 {
	return time.Now().UnixMilli()
}

// GenRequestID returns a fresh identifier for tracking records and sessions.
func GenRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// MaskAPIKey returns a masked version of an API key for safe logging.
// It shows the first 6 characters and last 4 characters, with "..." in between.
// For short keys (less than 12 chars), it returns "***" to avoid exposing too much.
func MaskAPIKey(key string) string {
	if len(key) < 12 {
		return "***"
	}
	return key[:6] + "..." + key[len(key)-4:]
}
