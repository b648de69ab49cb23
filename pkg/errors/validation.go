package errors

import (
	"strings"
	"unicode"
)

// ValidateRepoName validates a repository name before it is used as part of
// a local directory name. Names coming back from the search API are trusted
// only after this check.
//
// Rules:
//   - No empty names
//   - Maximum length of 100 characters (GitHub's own limit)
//   - No control characters or null bytes
//   - No path separators or traversal sequences
func ValidateRepoName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "repository name cannot be empty")
	}

	if len(name) > 100 {
		return New(ErrCodeInvalidInput, "repository name too long (max 100 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "repository name contains invalid control characters")
		}
	}

	if name == "." || strings.Contains(name, "..") {
		return New(ErrCodeInvalidPath, "repository name cannot contain path traversal sequences")
	}
	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidPath, "repository name cannot contain path separators")
	}

	return nil
}

// ValidateSearchTerm validates a term used to search package.json files.
func ValidateSearchTerm(term string) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return New(ErrCodeInvalidInput, "search term cannot be empty")
	}
	if len(term) > 128 {
		return New(ErrCodeInvalidInput, "search term too long (max 128 characters)")
	}
	if strings.ContainsAny(term, "\"\n\r\t") {
		return New(ErrCodeInvalidInput, "search term contains invalid characters: %q", term)
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
