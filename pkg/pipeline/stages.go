package pipeline

import (
	"context"

	"github.com/matzehuels/packscan/pkg/classify"
	"github.com/matzehuels/packscan/pkg/errors"
	"github.com/matzehuels/packscan/pkg/store"
)

// Categorize classifies every uncategorized repository from its local
// copy. In table mode it instead writes one id→category row per stored
// repository to the categorization table, using [classify.TableRules], and
// leaves record statuses untouched.
func (r *Runner) Categorize(ctx context.Context, opts CategorizeOptions) (Summary, error) {
	if opts.Table {
		return r.categorizeTable(ctx, opts)
	}
	return r.batch(ctx, "categorize", func(ctx context.Context, t *tracker) error {
		records, err := r.store.List(ctx, store.Filter{Status: classify.StatusUncategorized})
		if err != nil {
			return err
		}
		r.logger.Info("categorizing", "repositories", len(records))
		return r.each(ctx, t, records, func(ctx context.Context, rec store.Record) outcome {
			res, _, err := r.categorizeOne(ctx, rec)
			if err != nil {
				return failed
			}
			if res.Status == classify.StatusBlacklisted && r.opts.RemoveBlacklisted {
				r.cleanup(rec)
			}
			if res.Status == classify.StatusUncategorized {
				return skipped
			}
			return succeeded
		})
	})
}

func (r *Runner) categorizeTable(ctx context.Context, opts CategorizeOptions) (Summary, error) {
	table := classify.New(classify.TableRules...)
	return r.batch(ctx, "categorize-table", func(ctx context.Context, t *tracker) error {
		if opts.Clear {
			if err := r.store.ClearCategorizations(ctx); err != nil {
				return err
			}
		}
		records, err := r.store.List(ctx, store.Filter{})
		if err != nil {
			return err
		}
		return r.each(ctx, t, records, func(ctx context.Context, rec store.Record) outcome {
			if !r.engine.Exists(rec) {
				r.logger.Warn("no local copy", "repo", rec.FullName)
				return failed
			}
			set, err := r.reader.Read(ctx, r.engine.SourcePath(rec))
			if errors.Is(err, errors.ErrCodeManifestNotFound) {
				r.logger.Debug("no package.json", "repo", rec.FullName)
				return skipped
			}
			if err != nil {
				r.logger.Warn("cannot read manifests", "repo", rec.FullName, "err", err)
				return failed
			}
			res := table.Classify(set)
			if err := r.store.SaveCategorization(ctx, rec.ID, res.Category); err != nil {
				r.logger.Warn("cannot store categorization", "repo", rec.FullName, "err", err)
				return failed
			}
			return succeeded
		})
	})
}

// Analyze checks the rules of every categorized repository, optionally
// restricted to one category, and marks each one analyzed.
func (r *Runner) Analyze(ctx context.Context, opts AnalyzeOptions) (Summary, error) {
	return r.batch(ctx, "analyze", func(ctx context.Context, t *tracker) error {
		records, err := r.store.List(ctx, store.Filter{Status: classify.StatusCategorized, Category: opts.Category})
		if err != nil {
			return err
		}
		r.logger.Info("analyzing", "category", categoryLabel(opts.Category), "repositories", len(records))
		return r.each(ctx, t, records, func(ctx context.Context, rec store.Record) outcome {
			if err := r.analyzeOne(ctx, rec, nil); err != nil {
				return failed
			}
			if r.opts.RemoveFolders {
				r.cleanup(rec)
			}
			return succeeded
		})
	})
}

func categoryLabel(c classify.Category) string {
	if c == classify.CategoryNone {
		return "all"
	}
	return string(c)
}
