package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}

// RandomSuffix returns a short random token: the first eight hex digits of a UUID.
func RandomSuffix() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}
