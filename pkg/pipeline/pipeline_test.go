package pipeline

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/packscan/pkg/acquire"
	"github.com/matzehuels/packscan/pkg/classify"
	"github.com/matzehuels/packscan/pkg/errors"
	"github.com/matzehuels/packscan/pkg/integrations/github"
	"github.com/matzehuels/packscan/pkg/store"
)

// fakeSource serves fixed descriptors per term and honours a known check
// against the store, like the GitHub source wired with store.Exists.
type fakeSource struct {
	mu       sync.Mutex
	results  map[string][]github.Descriptor
	known    func(context.Context, int64) (bool, error)
	searched []string
	failTerm string
	onSearch func()
}

func (f *fakeSource) Search(ctx context.Context, term string, limit int) iter.Seq2[github.Descriptor, error] {
	return func(yield func(github.Descriptor, error) bool) {
		f.mu.Lock()
		f.searched = append(f.searched, term)
		f.mu.Unlock()
		if f.onSearch != nil {
			f.onSearch()
		}
		if term == f.failTerm {
			yield(github.Descriptor{}, fmt.Errorf("search %s: validation failed", term))
			return
		}
		n := 0
		for _, d := range f.results[term] {
			if n >= limit {
				return
			}
			if f.known != nil {
				if ok, _ := f.known(ctx, d.ID); ok {
					continue
				}
			}
			n++
			if !yield(d, nil) {
				return
			}
		}
	}
}

func (f *fakeSource) Contributors(context.Context, string, string) (int, error) {
	return 3, nil
}

// manifestFetcher writes a package.json per repository id; ids without an
// entry get an empty tree and ids in fail are not fetched.
type manifestFetcher struct {
	manifests map[int64]string
	files     map[int64]map[string]string
	fail      map[int64]bool

	mu    sync.Mutex
	calls int
}

func (f *manifestFetcher) Fetch(_ context.Context, d github.Descriptor, dest string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail[d.ID] {
		return fmt.Errorf("connection reset")
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	if m, ok := f.manifests[d.ID]; ok {
		if err := os.WriteFile(filepath.Join(dest, "package.json"), []byte(m), 0o644); err != nil {
			return err
		}
	}
	for name, body := range f.files[d.ID] {
		if err := os.WriteFile(filepath.Join(dest, name), []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func desc(id int64, name string) github.Descriptor {
	return github.Descriptor{ID: id, Name: name, Owner: "acme", FullName: "acme/" + name, Stars: int(id)}
}

type fixture struct {
	runner  *Runner
	store   *store.Store
	engine  *acquire.Engine
	source  *fakeSource
	fetcher *manifestFetcher
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(context.Background(), filepath.Join(dir, "packscan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fetcher := &manifestFetcher{
		manifests: map[int64]string{
			1: `{"dependencies": {"react": "18.0.0", "typescript": "5.0.0"}, "devDependencies": {"webpack": "5.0.0"}}`,
			2: `{"dependencies": {"express": "4.0.0"}}`,
			3: `{"dependencies": {"webpack": "5.0.0", "@angular/core": "17.0.0", "react": "18.0.0"}, "devDependencies": {"eslint": "8.0.0"}}`,
		},
		files: map[int64]map[string]string{
			1: {"index.js": "a\nb\n"},
		},
		fail: map[int64]bool{},
	}
	logger := log.New(io.Discard)
	engine, err := acquire.NewEngine(acquire.Options{
		Root:    filepath.Join(dir, "repositories"),
		Fetcher: fetcher,
		Logger:  logger,
	})
	require.NoError(t, err)

	src := &fakeSource{
		results: map[string][]github.Descriptor{
			"webpack": {desc(1, "spa"), desc(2, "api"), desc(3, "admin"), desc(4, "bare")},
			"react":   {desc(1, "spa"), desc(5, "widget")},
		},
		known: st.Exists,
	}

	opts.Logger = logger
	opts.Concurrency = 2
	runner, err := NewRunner(Deps{Store: st, Source: src, Engine: engine}, opts)
	require.NoError(t, err)

	return &fixture{runner: runner, store: st, engine: engine, source: src, fetcher: fetcher}
}

func (f *fixture) get(t *testing.T, id int64) store.Record {
	t.Helper()
	rec, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func TestFetchOptionsDefaults(t *testing.T) {
	opts := FetchOptions{Terms: []string{" react ", "", "react", "vue"}}
	require.NoError(t, opts.ValidateAndSetDefaults())
	assert.Equal(t, []string{"react", "vue"}, opts.Terms)
	assert.Equal(t, DefaultLimit, opts.Limit)

	empty := FetchOptions{}
	require.NoError(t, empty.ValidateAndSetDefaults())
	assert.Equal(t, []string{DefaultTerm}, empty.Terms)

	bad := FetchOptions{Terms: []string{"x"}, Limit: -1}
	assert.Error(t, bad.ValidateAndSetDefaults())
}

func TestSplitLimit(t *testing.T) {
	tests := []struct {
		limit, n int
		want     []int
	}{
		{10, 1, []int{10}},
		{10, 3, []int{4, 3, 3}},
		{2, 3, []int{1, 1, 0}},
		{0, 2, []int{0, 0}},
		{5, 0, nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, SplitLimit(tt.limit, tt.n)); diff != "" {
			t.Errorf("SplitLimit(%d, %d) mismatch (-want +got):\n%s", tt.limit, tt.n, diff)
		}
	}
}

func TestParseTerms(t *testing.T) {
	assert.Equal(t, []string{"webpack", "react"}, ParseTerms("webpack, react,,"))
	assert.Nil(t, ParseTerms(" "))
}

func TestFetch(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	var mu sync.Mutex
	var last Progress
	f.runner.opts.Progress = func(p Progress) {
		mu.Lock()
		last = p
		mu.Unlock()
	}

	summary, err := f.runner.Fetch(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Succeeded)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, last.Done)

	rec := f.get(t, 1)
	assert.Equal(t, classify.StatusUncategorized, rec.Status)
	assert.Equal(t, 3, rec.Contributors)
	assert.Equal(t, 2, rec.LinesOfCode)
	assert.True(t, f.engine.Exists(rec))

	// A second fetch only yields repositories not yet stored.
	summary, err = f.runner.Fetch(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	ok, err := f.store.Exists(ctx, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, f.fetcher.calls, "stored repositories are never fetched again")

	runs, err := f.store.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestFetchMultipleTermsDedup(t *testing.T) {
	f := newFixture(t, Options{})

	summary, err := f.runner.Fetch(context.Background(), FetchOptions{Terms: []string{"webpack", "react"}, Limit: 4})
	require.NoError(t, err)

	// webpack gets 2 (ids 1, 2); react gets 2 but id 1 is already seen.
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, []string{"webpack", "react"}, f.source.searched)
	ok, err := f.store.Exists(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFetchFailuresDoNotStopBatch(t *testing.T) {
	f := newFixture(t, Options{})
	f.fetcher.fail[2] = true
	f.source.failTerm = "react"

	summary, err := f.runner.Fetch(context.Background(), FetchOptions{Terms: []string{"webpack", "react"}, Limit: 6})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Succeeded)
	ok, err := f.store.Exists(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, ok, "failed acquisitions are not stored")
}

func TestFetchReset(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.runner.Fetch(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 2})
	require.NoError(t, err)

	summary, err := f.runner.Fetch(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 2, Reset: true})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded, "reset forgets known repositories")
	assert.Equal(t, 4, f.fetcher.calls)
}

func TestFetchRequiresSource(t *testing.T) {
	f := newFixture(t, Options{})
	f.runner.source = nil
	_, err := f.runner.Fetch(context.Background(), FetchOptions{})
	assert.True(t, errors.Is(err, errors.ErrCodeFatalStartup))
}

func TestCategorize(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.runner.Fetch(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 4})
	require.NoError(t, err)

	summary, err := f.runner.Categorize(ctx, CategorizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Succeeded)

	tests := []struct {
		id       int64
		category classify.Category
		status   classify.Status
	}{
		{1, classify.CategoryReact, classify.StatusCategorized},
		{2, classify.CategoryNotWebpack, classify.StatusBlacklisted},
		{3, classify.CategoryAngular, classify.StatusCategorized},
		{4, classify.CategoryOther, classify.StatusBlacklisted}, // no package.json
	}
	for _, tt := range tests {
		rec := f.get(t, tt.id)
		assert.Equal(t, tt.category, rec.Category, "id %d", tt.id)
		assert.Equal(t, tt.status, rec.Status, "id %d", tt.id)
	}

	// Nothing left to categorize.
	summary, err = f.runner.Categorize(ctx, CategorizeOptions{})
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
}

func TestCategorizeKeepMissing(t *testing.T) {
	f := newFixture(t, Options{KeepMissing: true, RemoveBlacklisted: true})
	ctx := context.Background()
	_, err := f.runner.Fetch(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 4})
	require.NoError(t, err)

	summary, err := f.runner.Categorize(ctx, CategorizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)

	assert.Equal(t, classify.StatusUncategorized, f.get(t, 4).Status)
	assert.False(t, f.engine.Exists(f.get(t, 2)), "blacklisted copy is removed")
	assert.True(t, f.engine.Exists(f.get(t, 1)))
}

func TestCategorizeTable(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.runner.Fetch(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 4})
	require.NoError(t, err)
	require.NoError(t, f.store.SaveCategorization(ctx, 99, classify.CategoryVue))

	summary, err := f.runner.Categorize(ctx, CategorizeOptions{Table: true, Clear: true})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)

	got, err := f.store.Categorizations(ctx)
	require.NoError(t, err)
	want := map[int64]classify.Category{
		1: classify.CategoryReact,
		2: classify.CategoryExpress,
		3: classify.CategoryAngular,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("categorizations mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, classify.StatusUncategorized, f.get(t, 1).Status, "table mode leaves statuses alone")
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.runner.Fetch(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 4})
	require.NoError(t, err)
	_, err = f.runner.Categorize(ctx, CategorizeOptions{})
	require.NoError(t, err)

	summary, err := f.runner.Analyze(ctx, AnalyzeOptions{Category: classify.CategoryReact})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	spa := f.get(t, 1)
	assert.Equal(t, classify.StatusAnalyzed, spa.Status)
	require.NotNil(t, spa.RuleDevDependencies)
	assert.Equal(t, 1, *spa.RuleDevDependencies, "typescript is a misplaced dev dependency")
	require.NotNil(t, spa.RuleLinter)
	assert.False(t, *spa.RuleLinter)

	assert.Equal(t, classify.StatusCategorized, f.get(t, 3).Status, "other categories untouched")

	_, err = f.runner.Analyze(ctx, AnalyzeOptions{})
	require.NoError(t, err)
	admin := f.get(t, 3)
	assert.Equal(t, classify.StatusAnalyzed, admin.Status)
	require.NotNil(t, admin.RuleLinter)
	assert.True(t, *admin.RuleLinter, "eslint dependency counts as a linter")
	assert.Equal(t, classify.StatusBlacklisted, f.get(t, 2).Status, "blacklisted never analyzed")
}

func TestRun(t *testing.T) {
	f := newFixture(t, Options{RemoveFolders: true})
	ctx := context.Background()

	summary, err := f.runner.Run(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Succeeded)

	assert.Equal(t, classify.StatusAnalyzed, f.get(t, 1).Status)
	assert.Equal(t, classify.StatusAnalyzed, f.get(t, 3).Status)
	assert.Equal(t, classify.StatusBlacklisted, f.get(t, 2).Status)
	assert.Equal(t, classify.StatusBlacklisted, f.get(t, 4).Status)

	for _, id := range []int64{1, 2, 3, 4} {
		assert.False(t, f.engine.Exists(f.get(t, id)), "copy %d removed after its pipeline", id)
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	f.source.onSearch = cancel

	_, err := f.runner.Run(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 4})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.fetcher.calls)

	runs, err := f.store.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].FinishedAt.IsZero(), "interrupted runs are still recorded")
}

func TestSweepValidate(t *testing.T) {
	assert.True(t, errors.Is(SweepOptions{}.Validate(), errors.ErrCodeFatalStartup))
	assert.True(t, errors.Is(SweepOptions{Local: true, DB: true}.Validate(), errors.ErrCodeFatalStartup))
	assert.NoError(t, SweepOptions{DB: true}.Validate())
}

func TestSweepDB(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.runner.Fetch(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 3})
	require.NoError(t, err)

	// Record 1 loses its copy; copy 2 loses its record.
	require.NoError(t, f.engine.Remove(f.get(t, 1)))
	require.NoError(t, f.store.Delete(ctx, 2))

	res, err := f.runner.Sweep(ctx, SweepOptions{DB: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RemovedCopies)
	assert.Equal(t, 1, res.RemovedRecords)

	records, err := f.store.List(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(3), records[0].ID)
	copies, err := f.engine.List()
	require.NoError(t, err)
	require.Len(t, copies, 1)
	assert.Equal(t, int64(3), copies[0].ID)
}

func TestSweepKeepsDotNamedCopies(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.source.results["dotfiles"] = []github.Descriptor{desc(7, ".github")}
	_, err := f.runner.Fetch(ctx, FetchOptions{Terms: []string{"dotfiles"}, Limit: 1})
	require.NoError(t, err)
	rec := f.get(t, 7)
	require.True(t, f.engine.Exists(rec))

	for _, opts := range []SweepOptions{{DB: true}, {Local: true}} {
		res, err := f.runner.Sweep(ctx, opts)
		require.NoError(t, err)
		assert.Zero(t, res.RemovedRecords, "%+v", opts)
		assert.Zero(t, res.RemovedCopies, "%+v", opts)
		assert.True(t, f.engine.Exists(rec), "%+v", opts)
		assert.Equal(t, ".github", f.get(t, 7).Name)
	}
}

func TestSweepLocal(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.runner.Fetch(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 3})
	require.NoError(t, err)
	_, err = f.runner.Categorize(ctx, CategorizeOptions{})
	require.NoError(t, err)

	// Record 2 is lost but its copy remains; record 3 loses its copy.
	require.NoError(t, f.store.Delete(ctx, 2))
	require.NoError(t, f.engine.Remove(f.get(t, 3)))

	res, err := f.runner.Sweep(ctx, SweepOptions{Local: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Restored)
	assert.Equal(t, 1, res.RemovedRecords)

	assert.Equal(t, classify.CategoryReact, f.get(t, 1).Category, "existing classification is kept")
	restored := f.get(t, 2)
	assert.Equal(t, classify.StatusUncategorized, restored.Status)
	assert.Equal(t, "acme/api", restored.FullName)
	_, err = f.store.Get(ctx, 3)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestStats(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.runner.Fetch(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 4})
	require.NoError(t, err)
	_, err = f.runner.Categorize(ctx, CategorizeOptions{})
	require.NoError(t, err)

	rep, err := f.runner.Stats(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 2, rep.Statuses[classify.StatusBlacklisted])
	assert.Equal(t, 1, rep.Categories[classify.CategoryReact])
	assert.Equal(t, 3, rep.Scanned)
	want := []DependencyCount{{Name: "react", Repositories: 2}, {Name: "@angular/core", Repositories: 1}}
	if diff := cmp.Diff(want, rep.Production); diff != "" {
		t.Errorf("production mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []DependencyCount{{Name: "eslint", Repositories: 1}, {Name: "webpack", Repositories: 1}}, rep.Dev)
}

func TestReset(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.runner.Fetch(ctx, FetchOptions{Terms: []string{"webpack"}, Limit: 2})
	require.NoError(t, err)

	removed, err := f.runner.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	records, err := f.store.List(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}
