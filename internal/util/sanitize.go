package util

import (
	"net/http"
	"strings"
	"unicode"

	"go-auth-service/pkg/apierror"
)

const MaxDisplayNameLength = 100

// SanitizeDisplayName strips control and invisible characters, collapses runs of
// whitespace and rejects names longer than MaxDisplayNameLength runes. An empty
// name is allowed.
func SanitizeDisplayName(name string) (string, error) {
	if strings.Contains(name, "\x00") {
		return "", apierror.New("VALIDATION_ERROR", "name contains null bytes", "name", http.StatusBadRequest)
	}

	builder := strings.Builder{}
	builder.Grow(len(name))

	pendingSpace := false
	for _, char := range name {
		if unicode.IsSpace(char) {
			pendingSpace = builder.Len() > 0
			continue
		}
		if unicode.IsControl(char) || isInvisibleUnicode(char) {
			continue
		}

		if pendingSpace {
			builder.WriteByte(' ')
			pendingSpace = false
		}
		builder.WriteRune(char)
	}

	cleaned := builder.String()
	if len([]rune(cleaned)) > MaxDisplayNameLength {
		return "", apierror.New("VALIDATION_ERROR", "name is too long", "name", http.StatusBadRequest)
	}

	return cleaned, nil
}

// isInvisibleUnicode returns true for zero-width, formatting, and other
// invisible Unicode characters.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u200E', // Left-to-Right Mark
		'\u200F', // Right-to-Left Mark
		'\u2060', // Word Joiner
		'\uFEFF', // Zero-Width No-Break Space / BOM
		'\uFFF9', // Interlinear Annotation Anchor
		'\uFFFA', // Interlinear Annotation Separator
		'\uFFFB': // Interlinear Annotation Terminator
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
