package middleware

import (
	"strings"
	"unicode/utf8"
)

// maxFilenameRunes bounds the client-supplied name echoed back in reports.
const maxFilenameRunes = 255

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ToValidUTF8(input, "")
	var result strings.Builder
	for _, r := range input {
		if (r >= 32 && r != 127) || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// SanitizeFilename reduces a client-supplied upload name to its last path
// element without control characters. It returns "" when nothing usable is
// left, which the analyze use-case reports as a missing file.
func SanitizeFilename(name string) string {
	name = SanitizeString(strings.NewReplacer("\t", " ", "\n", " ").Replace(name))
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "." || name == ".." {
		return ""
	}
	if utf8.RuneCountInString(name) > maxFilenameRunes {
		name = string([]rune(name)[:maxFilenameRunes])
	}
	return name
}
