package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/packscan/pkg/errors"
	"github.com/matzehuels/packscan/pkg/integrations/github"
	"github.com/matzehuels/packscan/pkg/observability"
)

// Layout names inside a local copy.
const (
	SourceDir   = "source"
	DetailsFile = "details.json"

	partialMarker = ".partial-"
)

// Options configures an [Engine].
type Options struct {
	Root    string      // Directory holding every local copy
	Fetcher Fetcher     // How repository content is fetched
	Logger  *log.Logger // Defaults to log.Default()
}

// Engine manages the local copies under a root directory.
type Engine struct {
	root    string
	fetcher Fetcher
	logger  *log.Logger
}

// NewEngine creates an Engine, creating the root directory if needed.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Root == "" {
		return nil, errors.New(errors.ErrCodeInvalidPath, "repositories directory is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "fetcher is required")
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", opts.Root)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{root: opts.Root, fetcher: opts.Fetcher, logger: logger}, nil
}

// Root returns the directory holding every local copy.
func (e *Engine) Root() string { return e.root }

// Named is anything with a deterministic local directory name, such as a
// descriptor or a stored record.
type Named interface {
	DirName() string
}

// Path returns the local copy directory for r.
func (e *Engine) Path(r Named) string {
	return filepath.Join(e.root, r.DirName())
}

// SourcePath returns the directory holding r's fetched content.
func (e *Engine) SourcePath(r Named) string {
	return filepath.Join(e.Path(r), SourceDir)
}

// Exists reports whether a local copy of r is present.
func (e *Engine) Exists(r Named) bool {
	_, err := os.Stat(e.Path(r))
	return err == nil
}

// Acquire ensures a local copy of d exists and returns its directory. An
// existing copy is returned as is, without fetching.
func (e *Engine) Acquire(ctx context.Context, d github.Descriptor) (path string, err error) {
	if err := errors.ValidateRepoName(d.Name); err != nil {
		return "", err
	}
	dir := e.Path(d)
	if _, err := os.Stat(dir); err == nil {
		e.logger.Debug("already downloaded", "repo", d.FullName, "path", dir)
		return dir, nil
	}

	hooks := observability.Pipeline()
	hooks.OnAcquireStart(ctx, d.FullName)
	start := time.Now()
	defer func() { hooks.OnAcquireComplete(ctx, d.FullName, time.Since(start), err) }()

	staging, err := os.MkdirTemp(e.root, "."+d.DirName()+partialMarker)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeAcquisition, err, "stage %s", d)
	}
	defer os.RemoveAll(staging)

	if err := e.fetcher.Fetch(ctx, d, filepath.Join(staging, SourceDir)); err != nil {
		return "", errors.Wrap(errors.ErrCodeAcquisition, err, "fetch %s", d)
	}
	if err := WriteDetails(staging, d); err != nil {
		return "", errors.Wrap(errors.ErrCodeAcquisition, err, "write details for %s", d)
	}
	if err := os.Rename(staging, dir); err != nil {
		// Lost a race with a concurrent acquisition of the same repository.
		if _, statErr := os.Stat(dir); statErr == nil {
			return dir, nil
		}
		return "", errors.Wrap(errors.ErrCodeAcquisition, err, "finalize %s", d)
	}
	return dir, nil
}

// Remove deletes the local copy of r. A missing copy is not an error.
func (e *Engine) Remove(r Named) error {
	return os.RemoveAll(e.Path(r))
}

// RemoveAll deletes every local copy and staging directory under the root,
// leaving the root itself in place.
func (e *Engine) RemoveAll() (int, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(e.root, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Copy is a local copy found on disk.
type Copy struct {
	Dir  string // Absolute or root-relative directory
	Name string // Repository name parsed from the directory name
	ID   int64  // Repository id parsed from the directory name
}

// List returns every local copy under the root. Directories whose name
// does not follow "{name}_{id}" are ignored; staging directories never do
// since their suffix is not an id.
func (e *Engine) List() ([]Copy, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return nil, err
	}
	var copies []Copy
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, id, ok := ParseDirName(entry.Name())
		if !ok {
			continue
		}
		copies = append(copies, Copy{Dir: filepath.Join(e.root, entry.Name()), Name: name, ID: id})
	}
	return copies, nil
}

// RemovePartial deletes staging directories left behind by an interrupted
// run and returns how many were removed.
func (e *Engine) RemovePartial() (int, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if _, _, ok := ParseDirName(name); ok {
			continue
		}
		if entry.IsDir() && strings.HasPrefix(name, ".") && strings.Contains(name, partialMarker) {
			if err := os.RemoveAll(filepath.Join(e.root, name)); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// ParseDirName splits "{name}_{id}". Repository names may themselves
// contain underscores, so the id follows the last one.
func ParseDirName(dir string) (name string, id int64, ok bool) {
	i := strings.LastIndexByte(dir, '_')
	if i <= 0 || i == len(dir)-1 {
		return "", 0, false
	}
	id, err := strconv.ParseInt(dir[i+1:], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	return dir[:i], id, true
}

// WriteDetails writes d as indented JSON to dir/details.json.
func WriteDetails(dir string, d github.Descriptor) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, DetailsFile), data, 0o644)
}

// ReadDetails reads the descriptor snapshot of a local copy.
func ReadDetails(dir string) (github.Descriptor, error) {
	var d github.Descriptor
	data, err := os.ReadFile(filepath.Join(dir, DetailsFile))
	if err != nil {
		return d, err
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parse %s: %w", filepath.Join(dir, DetailsFile), err)
	}
	return d, nil
}
