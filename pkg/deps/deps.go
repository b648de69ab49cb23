package deps

import (
	"maps"
	"slices"
)

// DefaultMaxDepth caps how deep readers descend when searching for manifests.
const DefaultMaxDepth = 32

// Section identifies a manifest dependency section.
type Section string

const (
	SectionProduction Section = "dependencies"
	SectionDev        Section = "devDependencies"
	SectionPeer       Section = "peerDependencies"
	SectionOptional   Section = "optionalDependencies"
)

// Sections lists every section in merge order.
var Sections = []Section{SectionProduction, SectionDev, SectionPeer, SectionOptional}

// Options configures manifest reading.
type Options struct {
	MaxDepth int                  // Maximum directory depth to search (default: 32)
	Ignore   []string             // Extra directory globs to skip
	Logger   func(string, ...any) // Warning callback (optional)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Logger == nil {
		opts.Logger = func(string, ...any) {}
	}
	return opts
}

// Manifest is a single parsed manifest file.
type Manifest struct {
	Path     string                       // File the manifest was read from
	Name     string                       // Declared package name, if any
	Version  string                       // Declared package version, if any
	Sections map[Section]map[string]string // Dependency name to version range
}

// Set is the merged dependency view of a repository.
// The zero value is not usable; call [NewSet].
type Set struct {
	Sections  map[Section]map[string]string
	Manifests []string // Paths merged into the set, in merge order
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{Sections: make(map[Section]map[string]string)}
}

// Merge folds m into the set. Entries in m override existing entries of the
// same section.
func (s *Set) Merge(m *Manifest) {
	if m == nil {
		return
	}
	for _, sec := range Sections {
		entries := m.Sections[sec]
		if len(entries) == 0 {
			continue
		}
		dst := s.Sections[sec]
		if dst == nil {
			dst = make(map[string]string, len(entries))
			s.Sections[sec] = dst
		}
		maps.Copy(dst, entries)
	}
	if m.Path != "" {
		s.Manifests = append(s.Manifests, m.Path)
	}
}

// Section returns the entries of one section. The result must not be modified.
func (s *Set) Section(sec Section) map[string]string {
	if s == nil {
		return nil
	}
	return s.Sections[sec]
}

// Production returns the production dependency section.
func (s *Set) Production() map[string]string {
	return s.Section(SectionProduction)
}

// All flattens every section into one name to version map.
func (s *Set) All() map[string]string {
	out := make(map[string]string, s.Len())
	if s == nil {
		return out
	}
	for _, sec := range Sections {
		maps.Copy(out, s.Sections[sec])
	}
	return out
}

// Has reports whether name is declared in any section.
func (s *Set) Has(name string) bool {
	if s == nil {
		return false
	}
	for _, entries := range s.Sections {
		if _, ok := entries[name]; ok {
			return true
		}
	}
	return false
}

// HasAny reports whether any of names is declared in any section.
func (s *Set) HasAny(names ...string) bool {
	return slices.ContainsFunc(names, s.Has)
}

// Len returns the number of distinct dependency names across all sections.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	seen := make(map[string]struct{})
	for _, entries := range s.Sections {
		for name := range entries {
			seen[name] = struct{}{}
		}
	}
	return len(seen)
}

// Names returns the sorted distinct names of one section.
func (s *Set) Names(sec Section) []string {
	return slices.Sorted(maps.Keys(s.Section(sec)))
}
