package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateID generates a random ID with prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// GenerateClientID identifies one session client instance in logs and mirrored events.
func GenerateClientID() string {
	return GenerateID("client")
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return GenerateID("req")
}
