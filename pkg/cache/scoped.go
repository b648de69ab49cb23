package cache

// ScopedKeyer wraps a Keyer with a prefix, isolating entries of different
// API hosts (github.com and an Enterprise instance) that share one backend.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "ghe.example.com:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// ContributorsKey generates a prefixed contributor-count key.
func (k *ScopedKeyer) ContributorsKey(owner, repo string) string {
	return k.prefix + k.inner.ContributorsKey(owner, repo)
}
