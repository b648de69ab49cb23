package javascript

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/matzehuels/packscan/pkg/deps"
	"github.com/matzehuels/packscan/pkg/errors"
)

// ManifestName is the npm manifest filename.
const ManifestName = "package.json"

// PackageJSON parses package.json files. It extracts dependencies,
// devDependencies, peerDependencies and optionalDependencies.
type PackageJSON struct{}

func (p *PackageJSON) Type() string              { return ManifestName }
func (p *PackageJSON) Supports(name string) bool { return strings.EqualFold(name, ManifestName) }

// Parse reads the manifest at path. Invalid JSON yields an
// [errors.ErrCodeManifestParse] error. Entries whose version is not a string
// (some generators emit objects or null) are dropped rather than failing the file.
func (p *PackageJSON) Parse(path string) (*deps.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var pkg packageFile
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestParse, err, "parse %s", path)
	}

	m := &deps.Manifest{
		Path:     path,
		Name:     pkg.Name.String(),
		Version:  pkg.Version.String(),
		Sections: make(map[deps.Section]map[string]string),
	}
	for sec, raw := range map[deps.Section]map[string]any{
		deps.SectionProduction: pkg.Dependencies,
		deps.SectionDev:        pkg.DevDependencies,
		deps.SectionPeer:       pkg.PeerDependencies,
		deps.SectionOptional:   pkg.OptionalDependencies,
	} {
		if entries := stringEntries(raw); len(entries) > 0 {
			m.Sections[sec] = entries
		}
	}
	return m, nil
}

func stringEntries(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for name, v := range raw {
		if s, ok := v.(string); ok {
			out[name] = s
		}
	}
	return out
}

type packageFile struct {
	Name                 looseString    `json:"name"`
	Version              looseString    `json:"version"`
	Dependencies         map[string]any `json:"dependencies"`
	DevDependencies      map[string]any `json:"devDependencies"`
	PeerDependencies     map[string]any `json:"peerDependencies"`
	OptionalDependencies map[string]any `json:"optionalDependencies"`
}

// looseString accepts any JSON value and keeps it only if it is a string.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var v string
	if json.Unmarshal(b, &v) == nil {
		*s = looseString(v)
	}
	return nil
}

func (s looseString) String() string { return string(s) }
