package pipeline

import (
	"context"

	"github.com/matzehuels/packscan/pkg/acquire"
	"github.com/matzehuels/packscan/pkg/errors"
	"github.com/matzehuels/packscan/pkg/store"
)

// SweepOptions selects the source of truth for [Runner.Sweep]. Exactly one
// field must be set.
type SweepOptions struct {
	Local bool // Local copies are authoritative: rebuild the store from details.json
	DB    bool // The store is authoritative: delete copies and records without a counterpart
}

// Validate rejects zero or both modes.
func (o SweepOptions) Validate() error {
	switch {
	case o.Local && o.DB:
		return errors.New(errors.ErrCodeFatalStartup, "--local and --db cannot be used together")
	case !o.Local && !o.DB:
		return errors.New(errors.ErrCodeFatalStartup, "one of --local or --db is required")
	}
	return nil
}

// SweepResult reports what a consistency sweep changed.
type SweepResult struct {
	Restored       int // Records inserted or refreshed from details.json
	RemovedCopies  int // Local copies without a record
	RemovedRecords int // Records without a local copy
	RemovedPartial int // Staging directories of interrupted downloads
	Unreadable     int // Local copies whose details.json could not be read
}

// Sweep reconciles local copies and stored records.
//
// With Local, every copy with a readable details.json is inserted into the
// store, keeping the status, category and rule fields of records that
// already exist, and records without a local copy are deleted. With DB,
// copies without a record and records without a copy are both deleted.
func (r *Runner) Sweep(ctx context.Context, opts SweepOptions) (SweepResult, error) {
	var res SweepResult
	if err := opts.Validate(); err != nil {
		return res, err
	}

	n, err := r.engine.RemovePartial()
	if err != nil {
		return res, errors.Wrap(errors.ErrCodeInvalidPath, err, "remove partial downloads")
	}
	res.RemovedPartial = n

	copies, err := r.engine.List()
	if err != nil {
		return res, errors.Wrap(errors.ErrCodeInvalidPath, err, "list local copies")
	}
	records, err := r.store.List(ctx, store.Filter{})
	if err != nil {
		return res, err
	}

	onDisk := make(map[int64]bool, len(copies))
	for _, c := range copies {
		onDisk[c.ID] = true
	}

	if opts.Local {
		for _, c := range copies {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if err := r.restore(ctx, c); err != nil {
				r.logger.Warn("cannot restore local copy", "dir", c.Dir, "err", err)
				res.Unreadable++
				onDisk[c.ID] = false
				continue
			}
			res.Restored++
		}
	} else {
		stored := make(map[int64]bool, len(records))
		for _, rec := range records {
			stored[rec.ID] = true
		}
		for _, c := range copies {
			if stored[c.ID] {
				continue
			}
			if err := r.engine.Remove(namedDir(c)); err != nil {
				return res, errors.Wrap(errors.ErrCodeInvalidPath, err, "remove %s", c.Dir)
			}
			r.logger.Debug("removed unsaved local copy", "dir", c.Dir)
			res.RemovedCopies++
		}
	}

	for _, rec := range records {
		if onDisk[rec.ID] && r.engine.Exists(rec) {
			continue
		}
		if err := r.store.Delete(ctx, rec.ID); err != nil {
			return res, err
		}
		r.logger.Debug("removed record without local copy", "repo", rec.FullName)
		res.RemovedRecords++
	}

	r.logger.Info("sweep finished", "restored", res.Restored, "removed_copies", res.RemovedCopies,
		"removed_records", res.RemovedRecords, "partial", res.RemovedPartial)
	return res, nil
}

func (r *Runner) restore(ctx context.Context, c acquire.Copy) error {
	d, err := acquire.ReadDetails(c.Dir)
	if err != nil {
		return err
	}
	if d.ID != c.ID {
		return errors.New(errors.ErrCodeInvalidInput, "details.json id %d does not match directory %s", d.ID, c.Dir)
	}
	rec := recordFrom(d)
	if n, err := r.reader.CountLines(ctx, r.engine.SourcePath(d)); err == nil {
		rec.LinesOfCode = n
	}
	return r.store.Insert(ctx, rec)
}

// Reset deletes every local copy and empties the store. Run history is
// kept. It returns the number of local copies removed.
func (r *Runner) Reset(ctx context.Context) (int, error) {
	removed, err := r.engine.RemoveAll()
	if err != nil {
		return removed, errors.Wrap(errors.ErrCodeInvalidPath, err, "remove local copies")
	}
	if err := r.store.Reset(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

// namedDir adapts a local copy to [acquire.Named].
type namedDir acquire.Copy

func (c namedDir) DirName() string {
	return store.Record{ID: c.ID, Name: c.Name}.DirName()
}
