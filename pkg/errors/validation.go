package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// ValidateLayerName validates a layer name. Layer names become artifact
// filenames under the output directory, so anything that could escape
// the directory or break a path is rejected.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path separators or traversal sequences
//   - Maximum length of 64 characters
func ValidateLayerName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidConfig, "layer name cannot be empty")
	}

	if len(name) > 64 {
		return New(ErrCodeInvalidConfig, "layer name too long (max 64 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidConfig, "layer name contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"/",    // Path separator
		"\x00", // Null byte
		"\\",   // Backslash (Windows path)
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidConfig, "layer name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// codePrefixRegex matches valid category code prefixes: letters and
// digits only, starting with a letter.
var codePrefixRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// ValidateCodePrefix validates a layer's category code prefix. The
// legend encodes labels as prefix, underscore, attribute value, and
// splits them back on the first underscore when read, so a prefix must
// never contain one. Commas would break the legend CSV the same way.
func ValidateCodePrefix(prefix string) error {
	if prefix == "" {
		return New(ErrCodeInvalidConfig, "code prefix cannot be empty")
	}

	if len(prefix) > 16 {
		return New(ErrCodeInvalidConfig, "code prefix too long (max 16 characters)")
	}

	if !codePrefixRegex.MatchString(prefix) {
		return New(ErrCodeInvalidConfig, "invalid code prefix %q: letters and digits only", prefix)
	}

	return nil
}

// ValidateProj4 validates a proj4 projection string. Full grammar
// checking is left to the projection library; this catches strings
// that cannot possibly be a projection before any geometry is loaded.
func ValidateProj4(s string) error {
	if s == "" {
		return New(ErrCodeInvalidConfig, "proj4 string cannot be empty")
	}

	if !strings.Contains(s, "+proj=") {
		return New(ErrCodeInvalidConfig, "proj4 string must contain a +proj= term")
	}

	for _, r := range s {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidConfig, "proj4 string contains invalid control characters")
		}
	}

	return nil
}

// ValidateInputPath validates a configured input file path.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
func ValidateInputPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidConfig, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidConfig, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidConfig, "path contains invalid characters")
		}
	}

	return nil
}
