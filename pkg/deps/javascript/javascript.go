package javascript

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/packscan/pkg/deps"
	"github.com/matzehuels/packscan/pkg/errors"
	"github.com/matzehuels/packscan/pkg/walk"
)

// Reader collects and merges every package.json below a repository root.
type Reader struct {
	opts    deps.Options
	parsers []deps.ManifestParser
}

// NewReader creates a Reader. Zero-valued options take package defaults.
func NewReader(opts deps.Options) *Reader {
	return &Reader{
		opts:    opts.WithDefaults(),
		parsers: []deps.ManifestParser{&PackageJSON{}},
	}
}

// Read walks root and merges every manifest it finds into one [deps.Set].
//
// Manifests are merged deepest-first, ties broken by path, so the
// repository-root manifest is applied last and wins on collisions. A manifest
// that fails to parse is logged and contributes nothing. If no manifest exists
// at all, Read returns an [errors.ErrCodeManifestNotFound] error.
func (r *Reader) Read(ctx context.Context, root string) (*deps.Set, error) {
	files, err := walk.Files(ctx, root,
		walk.WithIgnore(r.opts.Ignore...),
		walk.WithMaxDepth(r.opts.MaxDepth),
		walk.WithLogger(r.opts.Logger),
	)
	if err != nil {
		return nil, err
	}

	type found struct {
		path   string
		parser deps.ManifestParser
	}
	var manifests []found
	for _, f := range files {
		if p, err := deps.DetectManifest(f, r.parsers...); err == nil {
			manifests = append(manifests, found{f, p})
		}
	}
	if len(manifests) == 0 {
		return nil, errors.New(errors.ErrCodeManifestNotFound, "no %s under %s", ManifestName, root)
	}

	slices.SortStableFunc(manifests, func(a, b found) int {
		da, db := strings.Count(a.path, string(filepath.Separator)), strings.Count(b.path, string(filepath.Separator))
		if da != db {
			return db - da
		}
		return strings.Compare(a.path, b.path)
	})

	set := deps.NewSet()
	for _, m := range manifests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parsed, err := m.parser.Parse(m.path)
		if err != nil {
			r.opts.Logger("skipping manifest %s: %v", m.path, err)
			continue
		}
		set.Merge(parsed)
	}
	return set, nil
}

// SourceExtensions lists the file extensions counted as source code.
var SourceExtensions = []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", ".vue"}

// CountLines estimates lines of code by counting newline-terminated lines in
// every source file under root, skipping the same directories as Read.
func (r *Reader) CountLines(ctx context.Context, root string) (int, error) {
	files, err := walk.Files(ctx, root,
		walk.WithIgnore(r.opts.Ignore...),
		walk.WithLogger(r.opts.Logger),
	)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, f := range files {
		if !slices.Contains(SourceExtensions, strings.ToLower(filepath.Ext(f))) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := countFileLines(f)
		if err != nil {
			r.opts.Logger("count lines %s: %v", f, err)
			continue
		}
		total += n
	}
	return total, nil
}

func countFileLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	n, last := 0, byte('\n')
	for {
		c, err := f.Read(buf)
		if c > 0 {
			n += bytes.Count(buf[:c], []byte{'\n'})
			last = buf[c-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		n++
	}
	return n, nil
}
