package javascript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/packscan/pkg/deps"
	"github.com/matzehuels/packscan/pkg/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPackageJSON_Supports(t *testing.T) {
	parser := &PackageJSON{}

	tests := []struct {
		filename string
		want     bool
	}{
		{"package.json", true},
		{"Package.json", true},
		{"PACKAGE.JSON", true},
		{"package-lock.json", false},
		{"bower.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := parser.Supports(tt.filename); got != tt.want {
				t.Errorf("Supports(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestPackageJSON_Parse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "package.json")
	writeFile(t, path, `{
  "name": "my-package",
  "version": "1.0.0",
  "dependencies": {
    "express": "^4.18.0",
    "lodash": "^4.17.21"
  },
  "devDependencies": {
    "jest": "^29.0.0"
  },
  "peerDependencies": {
    "react": ">=17"
  },
  "optionalDependencies": {
    "fsevents": "2.3.2",
    "weird": {"version": "1"}
  }
}`)

	m, err := (&PackageJSON{}).Parse(path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if m.Name != "my-package" || m.Version != "1.0.0" {
		t.Errorf("Name/Version = %q/%q", m.Name, m.Version)
	}
	want := map[deps.Section]map[string]string{
		deps.SectionProduction: {"express": "^4.18.0", "lodash": "^4.17.21"},
		deps.SectionDev:        {"jest": "^29.0.0"},
		deps.SectionPeer:       {"react": ">=17"},
		deps.SectionOptional:   {"fsevents": "2.3.2"},
	}
	if diff := cmp.Diff(want, m.Sections); diff != "" {
		t.Errorf("Sections mismatch (-want +got):\n%s", diff)
	}
}

func TestPackageJSON_ParseLoose(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"empty object", `{}`, false},
		{"byte order mark", "\xef\xbb\xbf{\"dependencies\":{\"a\":\"1\"}}", false},
		{"non-string name", `{"name": 5, "dependencies": {"a": "1"}}`, false},
		{"truncated", `{"dependencies": {`, true},
		{"not json", `module.exports = {}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "package.json")
			writeFile(t, path, tt.content)

			_, err := (&PackageJSON{}).Parse(path)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrCodeManifestParse) {
					t.Errorf("err = %v, want MANIFEST_PARSE", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Parse: %v", err)
			}
		})
	}
}
