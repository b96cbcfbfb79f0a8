package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxChatMessageLength = 2000
	MaxTitleLength       = 100
	MaxParticipantsLimit = 1000
	maxIDLength          = 128
)

var (
	// StreamIDRegex validates stream ID format. Server ids may be uuids,
	// slugs or namespaced keys such as "live:1234".
	StreamIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

	// ParticipantIDRegex validates participant ID format
	ParticipantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
)

// ValidateStreamID validates stream ID
func ValidateStreamID(streamID string) error {
	if streamID == "" {
		return fmt.Errorf("stream ID is required")
	}
	if len(streamID) > maxIDLength {
		return fmt.Errorf("stream ID is too long (max %d characters)", maxIDLength)
	}
	if !StreamIDRegex.MatchString(streamID) {
		return fmt.Errorf("invalid stream ID format")
	}
	return nil
}

// ValidateParticipantID validates participant ID
func ValidateParticipantID(participantID string) error {
	if participantID == "" {
		return fmt.Errorf("participant ID is required")
	}
	if len(participantID) > maxIDLength {
		return fmt.Errorf("participant ID is too long (max %d characters)", maxIDLength)
	}
	if !ParticipantIDRegex.MatchString(participantID) {
		return fmt.Errorf("invalid participant ID format")
	}
	return nil
}

// ValidateChatMessage validates outgoing chat text
func ValidateChatMessage(text string) error {
	if err := validateNonEmptyString(text, "message"); err != nil {
		return err
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid characters")
	}
	return validateStringLength(text, 1, MaxChatMessageLength, "message")
}

// ValidateStreamTitle validates stream title
func ValidateStreamTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("stream title is required")
	}
	if !utf8.ValidString(title) {
		return fmt.Errorf("stream title contains invalid characters")
	}
	return validateStringLength(title, 1, MaxTitleLength, "stream title")
}

// ValidateMaxParticipants validates the participant cap of a new stream
func ValidateMaxParticipants(maxParticipants int) error {
	if maxParticipants < 1 {
		return fmt.Errorf("max participants must be at least 1")
	}
	if maxParticipants > MaxParticipantsLimit {
		return fmt.Errorf("max participants is too high (max %d)", MaxParticipantsLimit)
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// validateNonEmptyString validates that string is not empty after trimming
func validateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// validateStringLength validates string length
func validateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
