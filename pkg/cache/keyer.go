package cache

import "strings"

// Keyer builds cache keys for the values packscan caches.
type Keyer interface {
	// ContributorsKey keys the contributor count of one repository.
	ContributorsKey(owner, repo string) string
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default key scheme.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ContributorsKey hashes the lower-cased owner/repo pair, since GitHub
// repository names are case-insensitive.
func (DefaultKeyer) ContributorsKey(owner, repo string) string {
	return hashKey("contributors", strings.ToLower(owner), strings.ToLower(repo))
}
