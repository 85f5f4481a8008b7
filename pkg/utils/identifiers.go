// Package utils provides identifier sanitizing and token counting helpers.
package utils

import "strings"

// shortIDLength is the number of task-id characters used in container and
// branch names. Matches the width of a UUID's first two groups.
const shortIDLength = 12

// SanitizeIdentifier makes an identifier safe for container names and
// filesystem paths. Docker container names must match [a-zA-Z0-9][a-zA-Z0-9_.-]*.
func SanitizeIdentifier(id string) string {
	sanitized := strings.ReplaceAll(id, ":", "-")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	sanitized = strings.ReplaceAll(sanitized, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, "\\", "-")
	return sanitized
}

// ShortID returns a truncated, sanitized form of a task ID suitable for
// container names and synthesized branch names.
func ShortID(taskID string) string {
	id := SanitizeIdentifier(taskID)
	if len(id) > shortIDLength {
		id = id[:shortIDLength]
	}
	return id
}
