package pipeline

import (
	"context"

	"github.com/matzehuels/packscan/pkg/classify"
	"github.com/matzehuels/packscan/pkg/deps"
	"github.com/matzehuels/packscan/pkg/errors"
	"github.com/matzehuels/packscan/pkg/integrations/github"
	"github.com/matzehuels/packscan/pkg/observability"
	"github.com/matzehuels/packscan/pkg/pool"
	"github.com/matzehuels/packscan/pkg/rules"
	"github.com/matzehuels/packscan/pkg/store"
)

// Fetch searches for new repositories and downloads them. Each downloaded
// repository is stored as uncategorized together with its contributor
// count and lines-of-code estimate.
func (r *Runner) Fetch(ctx context.Context, opts FetchOptions) (Summary, error) {
	if err := r.prepareFetch(ctx, &opts); err != nil {
		return Summary{}, err
	}
	return r.batch(ctx, "fetch", func(ctx context.Context, t *tracker) error {
		return r.search(ctx, t, opts, func(ctx context.Context, d github.Descriptor) outcome {
			_, skip, err := r.fetchOne(ctx, d)
			switch {
			case err != nil:
				return failed
			case skip:
				return skipped
			}
			return succeeded
		})
	})
}

// Run fetches new repositories and takes each one through the full
// pipeline (download, manifests, classification, rules) as soon as it is
// available.
func (r *Runner) Run(ctx context.Context, opts FetchOptions) (Summary, error) {
	if err := r.prepareFetch(ctx, &opts); err != nil {
		return Summary{}, err
	}
	return r.batch(ctx, "run", func(ctx context.Context, t *tracker) error {
		return r.search(ctx, t, opts, func(ctx context.Context, d github.Descriptor) outcome {
			rec, _, err := r.fetchOne(ctx, d)
			if err != nil {
				return failed
			}
			defer r.cleanup(rec)

			res, set, err := r.categorizeOne(ctx, rec)
			if err != nil {
				return failed
			}
			if res.Status != classify.StatusCategorized {
				return succeeded
			}
			if err := r.analyzeOne(ctx, rec, set); err != nil {
				return failed
			}
			return succeeded
		})
	})
}

func (r *Runner) prepareFetch(ctx context.Context, opts *FetchOptions) error {
	if r.source == nil {
		return errors.New(errors.ErrCodeFatalStartup, "pipeline: no repository source configured")
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return errors.Wrap(errors.ErrCodeFatalStartup, err, "invalid fetch options")
	}
	if opts.Reset {
		removed, err := r.Reset(ctx)
		if err != nil {
			return err
		}
		r.logger.Info("reset local state", "removed", removed)
	}
	return nil
}

// search streams descriptors from every term into the pool. Acquisition
// starts while later pages are still being searched; a full pool pauses
// the search until a slot frees up.
func (r *Runner) search(ctx context.Context, t *tracker, opts FetchOptions, fn func(context.Context, github.Descriptor) outcome) error {
	p, pctx := pool.New(ctx, r.opts.Concurrency)
	limits := SplitLimit(opts.Limit, len(opts.Terms))
	seen := make(map[int64]bool)

terms:
	for i, term := range opts.Terms {
		if limits[i] == 0 {
			continue
		}
		r.logger.Info("searching", "term", term, "limit", limits[i])
		for d, err := range r.source.Search(pctx, term, limits[i]) {
			if err != nil {
				if pctx.Err() != nil {
					break terms
				}
				r.logger.Warn("search failed", "term", term, "err", err)
				break
			}
			// The same repository can match several terms.
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true

			t.grow(1)
			if !p.Go(func(ctx context.Context) error {
				t.done(fn(ctx, d))
				return nil
			}) {
				break terms
			}
		}
	}
	if err := p.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// fetchOne downloads d and stores its record. skip reports that the local
// copy already existed.
func (r *Runner) fetchOne(ctx context.Context, d github.Descriptor) (rec store.Record, skip bool, err error) {
	existed := r.engine.Exists(d)
	if _, err := r.engine.Acquire(ctx, d); err != nil {
		return store.Record{}, false, err
	}

	rec = recordFrom(d)
	if n, err := r.source.Contributors(ctx, d.Owner, d.Name); err != nil {
		r.logger.Warn("could not count contributors", "repo", d.FullName, "err", err)
	} else {
		rec.Contributors = n
	}
	if n, err := r.reader.CountLines(ctx, r.engine.SourcePath(d)); err != nil {
		r.logger.Warn("could not count lines", "repo", d.FullName, "err", err)
	} else {
		rec.LinesOfCode = n
	}

	if err := r.store.Insert(ctx, rec); err != nil {
		r.logger.Error("could not store repository", "repo", d.FullName, "err", err)
		return rec, false, err
	}
	r.logger.Debug("fetched", "repo", d.FullName, "contributors", rec.Contributors, "loc", rec.LinesOfCode)
	return rec, existed, nil
}

// categorizeOne reads the manifests of rec's local copy, classifies them
// and persists the result. The merged dependencies are returned for reuse
// by analysis. A repository without any package.json is blacklisted as
// "other", or left uncategorized when KeepMissing is set.
func (r *Runner) categorizeOne(ctx context.Context, rec store.Record) (classify.Result, *deps.Set, error) {
	if !r.engine.Exists(rec) {
		err := errors.New(errors.ErrCodeNotFound, "no local copy at %s", r.engine.Path(rec))
		r.logger.Warn("cannot categorize", "repo", rec.FullName, "err", err)
		return classify.Result{}, nil, err
	}

	set, err := r.reader.Read(ctx, r.engine.SourcePath(rec))
	var res classify.Result
	switch {
	case errors.Is(err, errors.ErrCodeManifestNotFound):
		if r.opts.KeepMissing {
			r.logger.Info("no package.json, leaving uncategorized", "repo", rec.FullName)
			return classify.Result{Status: classify.StatusUncategorized}, nil, nil
		}
		res = classify.Result{Category: classify.CategoryOther, Status: classify.StatusBlacklisted, Rule: ruleNoManifest}
	case err != nil:
		r.logger.Warn("cannot read manifests", "repo", rec.FullName, "err", err)
		return classify.Result{}, nil, err
	default:
		res = r.classifier.Classify(set)
	}

	if err := r.store.SetClassification(ctx, rec.ID, res); err != nil {
		r.logger.Warn("cannot store classification", "repo", rec.FullName, "err", err)
		return res, set, err
	}
	observability.Pipeline().OnClassified(ctx, rec.FullName, string(res.Category), string(res.Status))
	r.logger.Debug("classified", "repo", rec.FullName, "category", res.Category, "status", res.Status, "rule", res.Rule)
	return res, set, nil
}

// analyzeOne checks the rules for rec and marks it analyzed. set may be nil,
// in which case the manifests are read again.
func (r *Runner) analyzeOne(ctx context.Context, rec store.Record, set *deps.Set) error {
	src := r.engine.SourcePath(rec)
	if set == nil {
		if !r.engine.Exists(rec) {
			err := errors.New(errors.ErrCodeNotFound, "no local copy at %s", r.engine.Path(rec))
			r.logger.Warn("cannot analyze", "repo", rec.FullName, "err", err)
			return err
		}
		var err error
		set, err = r.reader.Read(ctx, src)
		if err != nil && !errors.Is(err, errors.ErrCodeManifestNotFound) {
			r.logger.Warn("cannot read manifests", "repo", rec.FullName, "err", err)
			return err
		}
	}

	var res rules.Result
	// Nothing to check without dependencies.
	if set.Len() > 0 {
		var err error
		if res, err = r.checker.Check(ctx, src, set); err != nil {
			r.logger.Warn("rule check failed", "repo", rec.FullName, "err", err)
			return err
		}
	}

	if err := r.store.SetRules(ctx, rec.ID, res.HasLinter, res.MisplacedDevDependencies); err != nil {
		r.logger.Warn("cannot store rule results", "repo", rec.FullName, "err", err)
		return err
	}
	observability.Pipeline().OnAnalyzed(ctx, rec.FullName, res.HasLinter, res.MisplacedDevDependencies)
	r.logger.Debug("analyzed", "repo", rec.FullName, "linter", res.HasLinter, "misplaced", res.MisplacedDevDependencies)
	return nil
}

// cleanup applies the folder-removal policy once rec's pipeline ended.
func (r *Runner) cleanup(rec store.Record) {
	remove := r.opts.RemoveFolders
	if !remove && r.opts.RemoveBlacklisted {
		if cur, err := r.store.Get(context.Background(), rec.ID); err == nil {
			remove = cur.Status == classify.StatusBlacklisted
		}
	}
	if !remove {
		return
	}
	if err := r.engine.Remove(rec); err != nil {
		r.logger.Warn("could not remove local copy", "repo", rec.FullName, "err", err)
	}
}

func recordFrom(d github.Descriptor) store.Record {
	return store.Record{
		ID:        d.ID,
		Name:      d.Name,
		Owner:     d.Owner,
		FullName:  d.FullName,
		Language:  d.Language,
		Forks:     d.Forks,
		Stars:     d.Stars,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
