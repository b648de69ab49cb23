// Package pipeline runs the repository collection pipeline for packscan.
//
// This package wires the search, acquisition, manifest reading,
// classification and rule-checking stages together so that the CLI only
// deals with flags and output. Every repository runs through its own
// independent pipeline on a bounded pool; repositories finish in any order,
// and the stages of one repository always run in sequence.
//
// # Stages
//
//  1. Fetch: search the remote source and download new repositories
//  2. Categorize: read manifests and classify uncategorized repositories
//  3. Analyze: check lint and dependency-hygiene rules of categorized ones
//
// [Runner.Run] chains all three for each repository as soon as it is
// downloaded. Each stage can also be run on its own against what is already
// stored.
//
// # Usage
//
//	runner, err := pipeline.NewRunner(pipeline.Deps{
//	    Store:  st,
//	    Source: src,
//	    Engine: engine,
//	}, pipeline.Options{Concurrency: 10, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	summary, err := runner.Run(ctx, pipeline.FetchOptions{
//	    Terms: []string{"webpack"},
//	    Limit: 100,
//	})
//
// # Failures
//
// Individual repositories that fail are logged, counted in the [Summary],
// and never stop the batch. Only cancellation of the context ends a batch
// early; work not yet started is then skipped.
package pipeline

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/packscan/pkg/acquire"
	"github.com/matzehuels/packscan/pkg/classify"
	"github.com/matzehuels/packscan/pkg/deps"
	"github.com/matzehuels/packscan/pkg/deps/javascript"
	"github.com/matzehuels/packscan/pkg/errors"
	"github.com/matzehuels/packscan/pkg/integrations/github"
	"github.com/matzehuels/packscan/pkg/pool"
	"github.com/matzehuels/packscan/pkg/rules"
	"github.com/matzehuels/packscan/pkg/store"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and library callers
// =============================================================================

const (
	// DefaultConcurrency is the number of repositories processed at once.
	DefaultConcurrency = pool.DefaultLimit

	// DefaultLimit is the number of new repositories a fetch collects.
	DefaultLimit = 10

	// DefaultTerm is the search term used when none is given.
	DefaultTerm = "webpack"
)

// Rule name recorded for repositories without any package.json.
const ruleNoManifest = "no-manifest"

// Source is the remote repository source. [*github.Source] implements it.
type Source interface {
	Search(ctx context.Context, term string, limit int) iter.Seq2[github.Descriptor, error]
	Contributors(ctx context.Context, owner, repo string) (int, error)
}

// Deps holds the collaborators of a [Runner]. Store and Engine are
// required; Source is only needed by Fetch and Run. The remaining fields
// default to the package.json reader, the default classifier and a rule
// checker over the embedded reference data.
type Deps struct {
	Store      *store.Store
	Source     Source
	Engine     *acquire.Engine
	Reader     *javascript.Reader
	Classifier *classify.Classifier
	Checker    *rules.Checker
}

// Options configures a [Runner].
type Options struct {
	Concurrency       int              // Repositories processed at once (default 10)
	KeepMissing       bool             // Leave repositories without package.json uncategorized instead of blacklisting them
	RemoveFolders     bool             // Delete a local copy once its pipeline ends
	RemoveBlacklisted bool             // Delete the local copy of blacklisted repositories
	Logger            *log.Logger      // Defaults to log.Default()
	Progress          func(Progress)   // Called after every finished repository (optional)
	Now               func() time.Time // Clock for summaries (tests)
}

// Runner executes pipeline stages against a store and a directory of local
// copies. A Runner holds no per-batch state and may run stages one after
// the other; running two stages at once on the same store is allowed but
// unordered for records both touch.
type Runner struct {
	store      *store.Store
	source     Source
	engine     *acquire.Engine
	reader     *javascript.Reader
	classifier *classify.Classifier
	checker    *rules.Checker
	opts       Options
	logger     *log.Logger
}

// NewRunner creates a Runner.
func NewRunner(d Deps, opts Options) (*Runner, error) {
	if d.Store == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "pipeline: store is required")
	}
	if d.Engine == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "pipeline: acquisition engine is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if d.Reader == nil {
		d.Reader = javascript.NewReader(deps.Options{Logger: opts.Logger.Debugf})
	}
	if d.Classifier == nil {
		d.Classifier = classify.New(classify.DefaultRules...)
	}
	if d.Checker == nil {
		d.Checker = rules.NewChecker(rules.DefaultReference())
	}
	return &Runner{
		store:      d.Store,
		source:     d.Source,
		engine:     d.Engine,
		reader:     d.Reader,
		classifier: d.Classifier,
		checker:    d.Checker,
		opts:       opts,
		logger:     opts.Logger,
	}, nil
}

// =============================================================================
// Options - Per-command configuration
// =============================================================================

// FetchOptions configures [Runner.Fetch] and [Runner.Run].
type FetchOptions struct {
	Terms []string // Search terms; the limit is split evenly between them
	Limit int      // New repositories to collect across all terms
	Reset bool     // Delete every local copy and stored record first
}

// ValidateAndSetDefaults checks the options and fills in defaults.
func (o *FetchOptions) ValidateAndSetDefaults() error {
	terms := make([]string, 0, len(o.Terms))
	seen := make(map[string]bool)
	for _, t := range o.Terms {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		if err := errors.ValidateSearchTerm(t); err != nil {
			return err
		}
		seen[t] = true
		terms = append(terms, t)
	}
	if len(terms) == 0 {
		terms = []string{DefaultTerm}
	}
	o.Terms = terms

	if o.Limit < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "limit must not be negative, got %d", o.Limit)
	}
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	return nil
}

// ParseTerms splits a comma-separated term list.
func ParseTerms(s string) []string {
	var terms []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// SplitLimit divides limit between n terms, giving the remainder to the
// first ones.
func SplitLimit(limit, n int) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = limit / n
		if i < limit%n {
			out[i]++
		}
	}
	return out
}

// CategorizeOptions configures [Runner.Categorize].
type CategorizeOptions struct {
	Table bool // Write id→category rows to the categorization table instead of record statuses
	Clear bool // Empty the categorization table first (table mode only)
}

// AnalyzeOptions configures [Runner.Analyze].
type AnalyzeOptions struct {
	Category classify.Category // Only analyze this category; empty means all
}

// =============================================================================
// Results
// =============================================================================

// Summary reports the outcome of one batch command.
type Summary struct {
	RunID     string
	Command   string
	Total     int // Repositories considered
	Succeeded int
	Skipped   int // Already done, or left alone by policy
	Failed    int
	Duration  time.Duration
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: %d total, %d succeeded, %d skipped, %d failed in %s",
		s.Command, s.Total, s.Succeeded, s.Skipped, s.Failed, s.Duration.Round(time.Millisecond))
}

// Progress is a snapshot of a running batch.
type Progress struct {
	Command string
	Done    int // Finished repositories, successful or not
	Failed  int
	Total   int // Known so far; grows while a search is still producing results
}

// outcome classifies how one repository's pipeline ended.
type outcome int

const (
	succeeded outcome = iota
	skipped
	failed
)

// tracker accumulates a Summary from concurrent workers and reports
// progress.
type tracker struct {
	mu      sync.Mutex
	summary Summary
	report  func(Progress)
}

func (t *tracker) grow(n int) {
	t.mu.Lock()
	t.summary.Total += n
	p := t.progressLocked()
	t.mu.Unlock()
	if t.report != nil {
		t.report(p)
	}
}

func (t *tracker) done(o outcome) {
	t.mu.Lock()
	switch o {
	case succeeded:
		t.summary.Succeeded++
	case skipped:
		t.summary.Skipped++
	case failed:
		t.summary.Failed++
	}
	p := t.progressLocked()
	t.mu.Unlock()
	if t.report != nil {
		t.report(p)
	}
}

func (t *tracker) progressLocked() Progress {
	s := t.summary
	return Progress{
		Command: s.Command,
		Done:    s.Succeeded + s.Skipped + s.Failed,
		Failed:  s.Failed,
		Total:   s.Total,
	}
}

// batch records a run around fn and returns its summary.
func (r *Runner) batch(ctx context.Context, command string, fn func(ctx context.Context, t *tracker) error) (Summary, error) {
	start := r.opts.Now()
	run, err := r.store.StartRun(ctx, command)
	if err != nil {
		return Summary{}, err
	}
	t := &tracker{summary: Summary{RunID: run.ID, Command: command}, report: r.opts.Progress}

	fnErr := fn(ctx, t)

	t.mu.Lock()
	summary := t.summary
	t.mu.Unlock()
	summary.Duration = r.opts.Now().Sub(start)

	run.Total, run.Succeeded, run.Failed = summary.Total, summary.Succeeded, summary.Failed
	// The run is recorded even when the batch was interrupted.
	if err := r.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn("could not record run", "run", run.ID, "err", err)
	}
	r.logger.Info("batch finished", "command", command, "total", summary.Total,
		"succeeded", summary.Succeeded, "skipped", summary.Skipped, "failed", summary.Failed,
		"duration", summary.Duration.Round(time.Millisecond))
	return summary, fnErr
}

// each runs fn for every record on the pool, feeding outcomes to t.
func (r *Runner) each(ctx context.Context, t *tracker, records []store.Record, fn func(context.Context, store.Record) outcome) error {
	t.grow(len(records))
	return pool.Run(ctx, r.opts.Concurrency, records, func(ctx context.Context, rec store.Record) error {
		t.done(fn(ctx, rec))
		return nil
	})
}
