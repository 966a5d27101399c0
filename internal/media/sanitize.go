// Package media holds the pure helpers for turning telegram messages into
// local files: filename sanitation and media type classification.
package media

import "strings"

// maxNameLen limits sanitized names to keep paths well under filesystem limits.
const maxNameLen = 150

// fallbackName is used when sanitation leaves nothing usable.
const fallbackName = "file"

// SanitizeFilename turns arbitrary caption text into a safe filesystem name.
// Reserved filesystem characters and control whitespace are stripped, space
// runs collapse to single spaces, and the result is truncated to 150 runes.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*', '\n', '\r', '\t':
			return -1
		}
		return r
	}, name)

	// strings.Fields splits on whitespace runs, so joining with a single
	// space both collapses runs and trims the ends
	name = strings.Join(strings.Fields(name), " ")

	if name == "" {
		return fallbackName
	}

	// truncate by rune count so multi-byte characters are never split
	runes := []rune(name)
	if len(runes) > maxNameLen {
		name = string(runes[:maxNameLen])
	}

	return name
}
