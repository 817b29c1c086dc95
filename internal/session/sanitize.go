package session

import (
	"regexp"
	"strings"
)

var unsafeNameChars = regexp.MustCompile(`[<>:"/\\|?*\s]+`)

// SanitizeName makes a recording name safe to use as a directory and file
// name. Runs of unsafe characters collapse into single underscores.
func SanitizeName(name string) string {
	safe := strings.Trim(unsafeNameChars.ReplaceAllString(name, "_"), "_")
	if safe == "" {
		return "Unnamed_Webinar"
	}
	return safe
}
