// Package rules checks repositories for manifest hygiene signals: whether a
// linter is configured and how many conventional devDependencies are declared
// as production dependencies.
package rules

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/matzehuels/packscan/pkg/deps"
	"github.com/matzehuels/packscan/pkg/walk"
)

// Result holds the rule outcomes for one repository.
type Result struct {
	HasLinter                bool
	MisplacedDevDependencies int
	Misplaced                []string // Names counted in MisplacedDevDependencies, sorted
}

// Checker evaluates rules against a local copy and its merged dependencies.
type Checker struct {
	ref    *Reference
	ignore []string
}

// NewChecker creates a Checker. A nil ref uses [DefaultReference].
func NewChecker(ref *Reference, ignore ...string) *Checker {
	if ref == nil {
		ref = DefaultReference()
	}
	return &Checker{ref: ref, ignore: ignore}
}

// Check computes the rule result for the tree at root.
//
// An empty set short-circuits to the zero Result without touching the
// filesystem. Errors come only from walking root (cancellation or an
// unreadable root); the rule computations themselves cannot fail.
func (c *Checker) Check(ctx context.Context, root string, set *deps.Set) (Result, error) {
	if set.Len() == 0 {
		return Result{}, nil
	}

	res := Result{}
	for _, name := range set.Names(deps.SectionProduction) {
		if c.ref.IsCommonDevDependency(name) {
			res.Misplaced = append(res.Misplaced, name)
		}
	}
	res.MisplacedDevDependencies = len(res.Misplaced)

	if set.HasAny(c.ref.Linters.Packages...) {
		res.HasLinter = true
		return res, nil
	}

	files, err := walk.Files(ctx, root, walk.WithIgnore(c.ignore...))
	if err != nil {
		return Result{}, err
	}
	for _, f := range files {
		if c.isLintConfig(filepath.Base(f)) {
			res.HasLinter = true
			break
		}
	}
	return res, nil
}

func (c *Checker) isLintConfig(name string) bool {
	for _, marker := range c.ref.Linters.ConfigMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}
