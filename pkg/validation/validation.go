package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// SessionIDRegex validates realtime session ids supplied by viewers.
	SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

	// YouTubeVideoIDRegex matches the 11-character YouTube video id alphabet.
	YouTubeVideoIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

	// TikTokUniqueIDRegex matches TikTok handles without the leading '@'.
	TikTokUniqueIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)
)

const (
	MinFPS = 1
	MaxFPS = 60
)

// ValidateSessionID validates a realtime session id
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session_id is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("session_id is too long (max 128 characters)")
	}
	if !SessionIDRegex.MatchString(id) {
		return fmt.Errorf("invalid session_id format")
	}
	return nil
}

// ValidateFPS validates a target frame rate
func ValidateFPS(fps int) error {
	if fps < MinFPS || fps > MaxFPS {
		return fmt.Errorf("fps must be between %d and %d", MinFPS, MaxFPS)
	}
	return nil
}

// ValidateYouTubeVideoID validates a YouTube live video id.
func ValidateYouTubeVideoID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("video id is required")
	}
	if !YouTubeVideoIDRegex.MatchString(id) {
		return fmt.Errorf("video id must be 11 characters of [A-Za-z0-9_-]")
	}
	return nil
}

// NormalizeTikTokUniqueID strips '@' and whitespace and validates what is left.
func NormalizeTikTokUniqueID(id string) (string, error) {
	id = strings.TrimSpace(strings.ReplaceAll(id, "@", ""))
	if err := ValidateStringLength(id, 2, 24, "tiktok username"); err != nil {
		return "", err
	}
	if !TikTokUniqueIDRegex.MatchString(id) {
		return "", fmt.Errorf("tiktok username contains invalid characters")
	}
	return id, nil
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

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length in runes
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
