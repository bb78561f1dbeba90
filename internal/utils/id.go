package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewID returns a unique identifier for a connection.
func NewID() string {
	return uuid.NewString()
}

// RandomSuffix returns a short random hex string for file names.
func RandomSuffix() string {
	const size = 8

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	// Fallback to timestamp if crypto/rand is unavailable.
	return strconv.FormatInt(time.Now().UnixNano()%1_000_000_000, 36)
}
