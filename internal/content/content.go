package content

import (
	"errors"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	chatPolicy = bluemonday.UGCPolicy()
	namePolicy = bluemonday.StrictPolicy()

	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

const MaxMessageLength = 4096

// SanitizeMessage removes unsafe HTML from a chat message before it is
// persisted or broadcast. Overlong messages are truncated, not rejected.
func SanitizeMessage(input string) string {
	out := chatPolicy.Sanitize(input)
	if len(out) > MaxMessageLength {
		out = out[:MaxMessageLength]
	}
	return strings.TrimSpace(out)
}

// SanitizeName strips all markup from a display name.
func SanitizeName(input string) string {
	return strings.TrimSpace(namePolicy.Sanitize(input))
}

// ValidateUsername checks if the username contains only allowed characters
// (alphanumeric, dot, dash, underscore) and is not empty.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}
