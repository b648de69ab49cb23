package rules

import (
	_ "embed"
	"fmt"
	"slices"

	"github.com/BurntSushi/toml"
)

//go:embed reference.toml
var embeddedReference []byte

// Reference is the maintained data the checker compares repositories against.
type Reference struct {
	DevDependencies struct {
		MostCommon []string `toml:"most_common"`
	} `toml:"dev_dependencies"`
	Linters struct {
		ConfigMarkers []string `toml:"config_markers"`
		Packages      []string `toml:"packages"`
	} `toml:"linters"`
}

// DefaultReference returns the reference data compiled into the binary.
func DefaultReference() *Reference {
	ref, err := parseReference(embeddedReference)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded reference: %v", err))
	}
	return ref
}

// LoadReference reads reference data from a TOML file. Sections missing from
// the file fall back to the embedded defaults.
func LoadReference(path string) (*Reference, error) {
	def := DefaultReference()
	ref := &Reference{}
	md, err := toml.DecodeFile(path, ref)
	if err != nil {
		return nil, fmt.Errorf("load reference %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load reference %s: unknown keys %v", path, undecoded)
	}
	if !md.IsDefined("dev_dependencies", "most_common") {
		ref.DevDependencies = def.DevDependencies
	}
	if !md.IsDefined("linters", "config_markers") {
		ref.Linters.ConfigMarkers = def.Linters.ConfigMarkers
	}
	if !md.IsDefined("linters", "packages") {
		ref.Linters.Packages = def.Linters.Packages
	}
	return ref, nil
}

func parseReference(data []byte) (*Reference, error) {
	ref := &Reference{}
	if _, err := toml.Decode(string(data), ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// IsCommonDevDependency reports whether name is conventionally a devDependency.
func (r *Reference) IsCommonDevDependency(name string) bool {
	return slices.Contains(r.DevDependencies.MostCommon, name)
}
