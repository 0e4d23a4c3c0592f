// Package utils holds small input-validation helpers shared by the
// transport layer.
package utils

import (
	"regexp"
	"strings"

	"classhub/pkg/models"
)

var (
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	// Namespace and lesson titles become path segments of the room name,
	// so slashes are excluded.
	titleRegex = regexp.MustCompile(`^[^/\x00]{1,255}$`)
)

// ValidateEmail checks the shape of an email address.
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return models.ErrInvalidInput
	}
	return nil
}

// ValidateTitlePart checks a namespace or lesson title used in a room name.
func ValidateTitlePart(title string) error {
	if !titleRegex.MatchString(strings.TrimSpace(title)) {
		return models.ErrInvalidInput
	}
	return nil
}

// ValidateChatName checks a local chat name. Colons are reserved for the
// qualified "<room>:<chat>" form.
func ValidateChatName(name string) error {
	if name == "" || len(name) > 255 || strings.Contains(name, ":") {
		return models.ErrInvalidInput
	}
	return nil
}
