package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier string
func GenerateID() string {
	return uuid.New().String()
}

// ParticipantID returns a short connection-scoped handle, e.g. "buyer-1f3a9c2e"
func ParticipantID(prefix string) string {
	id := uuid.New().String()
	return prefix + "-" + id[:8]
}
