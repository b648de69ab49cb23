// Package walk lists the regular files of a directory tree.
//
// Directories matching an ignore glob are pruned before they are read, and
// symbolic links are neither listed nor followed, so a walk terminates on any
// tree regardless of link cycles. Globs use doublestar syntax and are matched
// against both the entry name and its slash-separated path relative to the root:
//
//	files, err := walk.Files(ctx, root, walk.WithIgnore("**/fixtures"), walk.WithMaxDepth(8))
package walk

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnore lists directory names that never hold first-party sources:
// package-manager caches, VCS metadata and build output.
var DefaultIgnore = []string{
	"node_modules",
	".git",
	"bower_components",
	"dist",
	"build",
	"coverage",
	".next",
	".nuxt",
	"vendor",
}

// Option configures a walk.
type Option func(*options)

type options struct {
	ignore   []string
	maxDepth int
	logger   func(string, ...any)
}

// WithIgnore adds glob patterns for directories to skip.
func WithIgnore(globs ...string) Option {
	return func(o *options) { o.ignore = append(o.ignore, globs...) }
}

// WithoutDefaults drops DefaultIgnore, keeping only patterns added afterwards.
func WithoutDefaults() Option {
	return func(o *options) { o.ignore = nil }
}

// WithMaxDepth caps traversal depth. Files directly under root are depth 1.
// Zero or negative means unlimited.
func WithMaxDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithLogger receives messages about unreadable directories.
func WithLogger(fn func(string, ...any)) Option {
	return func(o *options) { o.logger = fn }
}

// Files returns every regular file under root in lexical order.
//
// Unreadable subdirectories are logged and skipped. An unreadable root is an
// error, as is a cancelled context.
func Files(ctx context.Context, root string, opts ...Option) ([]string, error) {
	o := options{ignore: append([]string(nil), DefaultIgnore...), logger: func(string, ...any) {}}
	for _, opt := range opts {
		opt(&o)
	}

	info, err := os.Lstat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "walk", Path: root, Err: errors.New("not a directory")}
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			o.logger("skip %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if o.ignored(d.Name(), rel) {
				return fs.SkipDir
			}
			if o.maxDepth > 0 && depth(rel) >= o.maxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if o.maxDepth > 0 && depth(rel) > o.maxDepth {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (o *options) ignored(name, rel string) bool {
	for _, pattern := range o.ignore {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func depth(rel string) int {
	n := 1
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' {
			n++
		}
	}
	return n
}
