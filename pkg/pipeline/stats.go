package pipeline

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/matzehuels/packscan/pkg/classify"
	"github.com/matzehuels/packscan/pkg/deps"
	"github.com/matzehuels/packscan/pkg/pool"
	"github.com/matzehuels/packscan/pkg/store"
)

// DefaultTop is the number of dependencies listed per section in a report.
const DefaultTop = 20

// DependencyCount is the number of repositories declaring a dependency.
type DependencyCount struct {
	Name         string `json:"name" yaml:"name"`
	Repositories int    `json:"repositories" yaml:"repositories"`
}

// Report summarizes the store and the dependencies of the local copies.
type Report struct {
	Total      int                       `json:"total" yaml:"total"`
	Statuses   map[classify.Status]int   `json:"statuses" yaml:"statuses"`
	Categories map[classify.Category]int `json:"categories" yaml:"categories"`
	Scanned    int                       `json:"scanned" yaml:"scanned"` // Local copies whose manifests were read
	Production []DependencyCount         `json:"production" yaml:"production"`
	Dev        []DependencyCount         `json:"dev" yaml:"dev"`
}

// Stats counts records by status and category, and reports the top most
// common production and dev dependencies across every stored repository
// that still has a local copy.
func (r *Runner) Stats(ctx context.Context, top int) (Report, error) {
	if top <= 0 {
		top = DefaultTop
	}
	statuses, categories, err := r.store.Counts(ctx)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Statuses: statuses, Categories: categories}
	for _, n := range statuses {
		rep.Total += n
	}

	records, err := r.store.List(ctx, store.Filter{})
	if err != nil {
		return rep, err
	}

	var mu sync.Mutex
	prod := make(map[string]int)
	dev := make(map[string]int)
	err = pool.Run(ctx, r.opts.Concurrency, records, func(ctx context.Context, rec store.Record) error {
		if !r.engine.Exists(rec) {
			return nil
		}
		set, err := r.reader.Read(ctx, r.engine.SourcePath(rec))
		if err != nil {
			r.logger.Debug("skipping in dependency report", "repo", rec.FullName, "err", err)
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		rep.Scanned++
		for _, name := range set.Names(deps.SectionProduction) {
			prod[name]++
		}
		for _, name := range set.Names(deps.SectionDev) {
			dev[name]++
		}
		return nil
	})
	if err != nil {
		return rep, err
	}

	rep.Production = topCounts(prod, top)
	rep.Dev = topCounts(dev, top)
	return rep, nil
}

// topCounts returns the n largest counts, ties broken by name.
func topCounts(counts map[string]int, n int) []DependencyCount {
	out := make([]DependencyCount, 0, len(counts))
	for name, c := range counts {
		out = append(out, DependencyCount{Name: name, Repositories: c})
	}
	slices.SortFunc(out, func(a, b DependencyCount) int {
		if c := cmp.Compare(b.Repositories, a.Repositories); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
