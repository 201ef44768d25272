package valueindex

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/primary"
	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/store"
	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/resilience"
)

// Build scans tbl, writes a fresh index for opts.Type and opens it for
// reading. Any previous index files are replaced. On failure or
// cancellation every file of the index is removed.
func Build(ctx context.Context, tbl primary.Table, opts Options) (*Reader, error) {
	opts = opts.norm()
	if err := build(ctx, tbl, opts); err != nil {
		return nil, err
	}
	return Open(tbl, opts)
}

// BuildUpdatable is Build followed by OpenUpdatable.
func BuildUpdatable(ctx context.Context, tbl primary.Table, opts Options) (*Updatable, error) {
	opts = opts.norm()
	if err := build(ctx, tbl, opts); err != nil {
		return nil, err
	}
	return OpenUpdatable(tbl, opts)
}

type builder struct {
	opts  Options
	tbl   primary.Table
	log   *slog.Logger
	stage *staging
	runs  int
}

func build(ctx context.Context, tbl primary.Table, opts Options) (err error) {
	ctx = logger.WithBuildID(ctx, uuid.NewString())
	b := &builder{
		opts:  opts,
		tbl:   tbl,
		log:   logger.FromContext(ctx).With("component", "value-builder", "document", opts.Document, "index", opts.Type.String()),
		stage: newStaging(),
	}
	start := time.Now()
	mode := "memory"

	defer func() {
		status := "ok"
		if err != nil {
			status = "failed"
			if apperr.Is(err, apperr.ErrCancelled) {
				status = "cancelled"
			}
			b.log.Error("index build aborted", "error", err)
			if aerr := Abort(context.WithoutCancel(ctx), opts); aerr != nil {
				b.log.Error("removing partial index", "error", aerr)
			}
		}
		if b.runs > 0 {
			mode = "merge"
		}
		opts.Metrics.ObserveBuild(b.name(), mode, status, time.Since(start))
	}()

	if err := removeIndexFiles(ctx, opts); err != nil {
		return err
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return apperr.Wrap(apperr.ErrIO, err, "creating index directory")
	}
	b.log.Info("index build started", "positions", tbl.Size())

	if err := b.scan(ctx); err != nil {
		return err
	}
	keys, err := b.write(ctx)
	if err != nil {
		return err
	}

	if opts.Catalog != nil {
		err := resilience.Retry(ctx, "catalog mark", resilience.RetryConfig{}, func() error {
			return opts.Catalog.MarkIndexed(ctx, opts.Document, opts.Type.String())
		})
		if err != nil {
			return apperr.Wrap(apperr.ErrIO, err, "marking catalog")
		}
	}
	opts.Metrics.SetKeys(b.name(), keys)
	b.log.Info("index build finished", "keys", keys, "runs", b.runs, "duration", time.Since(start))
	return nil
}

func (b *builder) name() string { return b.opts.Document + "/" + b.opts.Type.String() }

// scan stages every value of the indexed kind, spilling when the slice
// size is reached or, at each check interval, when the estimated staging
// size passes the memory threshold.
func (b *builder) scan(ctx context.Context) error {
	kind, text := b.opts.Type.kind(), b.opts.Type.text()
	n := b.tbl.Size()
	for pos := 0; pos < n; pos++ {
		if pos%b.opts.CheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return apperr.Wrap(apperr.ErrCancelled, err, "scanning primary table")
			}
			if b.opts.SliceSize == 0 && b.stage.bytes >= b.opts.MemoryThreshold {
				if err := b.spill(); err != nil {
					return err
				}
			}
		}
		if b.tbl.Kind(pos) != kind || b.tbl.ContentLen(pos, text) > b.opts.MaxLen {
			continue
		}
		b.stage.add(b.tbl.Content(pos, text), b.idOf(pos))
		if b.opts.SliceSize > 0 && b.stage.entries >= b.opts.SliceSize {
			if err := b.spill(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) idOf(pos int) int {
	if b.opts.PersistentIDs {
		return b.tbl.IDOf(pos)
	}
	return pos
}

func (b *builder) spill() error {
	if b.stage.empty() {
		return nil
	}
	lists, keys := b.opts.runPaths(b.runs)
	n, err := writeRun(b.stage, lists, keys, b.opts.CompressRuns)
	if err != nil {
		return err
	}
	b.log.Info("run spilled", "run", b.runs, "keys", n, "entries", b.stage.entries, "bytes", b.stage.bytes)
	b.opts.Metrics.RunSpilled(b.name())
	b.runs++
	b.stage.reset()
	return nil
}

// write emits the final files, straight from staging when nothing was
// spilled and through a k-way merge of the runs otherwise.
func (b *builder) write(ctx context.Context) (int, error) {
	lists, err := store.CreateFile(b.opts.listsPath())
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrIO, err, "creating postings")
	}
	defer lists.Close()
	refs, err := store.CreateFile(b.opts.refsPath())
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrIO, err, "creating key references")
	}
	defer refs.Close()

	w, err := newIndexWriter(lists, refs)
	if err != nil {
		return 0, err
	}
	if b.runs == 0 {
		for _, i := range b.stage.sorted() {
			if err := w.add(sortedUnique(b.stage.ids[i])); err != nil {
				return 0, err
			}
		}
		b.stage.reset()
	} else if err := b.merge(ctx, w); err != nil {
		return 0, err
	}
	if err := w.finish(); err != nil {
		return 0, err
	}
	if err := apperr.Join(lists.Sync(), refs.Sync()); err != nil {
		return 0, apperr.Wrap(apperr.ErrIO, err, "syncing index")
	}
	return w.keys, nil
}

func (b *builder) merge(ctx context.Context, w *indexWriter) error {
	if err := b.spill(); err != nil {
		return err
	}
	b.log.Info("merging runs", "runs", b.runs)
	cursors := make([]*runCursor, 0, b.runs)
	defer func() { closeRuns(cursors) }()
	for i := 0; i < b.runs; i++ {
		lists, keys := b.opts.runPaths(i)
		c, err := openRun(i, lists, keys, b.opts.CompressRuns)
		if err != nil {
			return err
		}
		cursors = append(cursors, c)
	}
	if err := mergeRuns(ctx, cursors, w, b.opts.CheckInterval); err != nil {
		return err
	}
	if err := closeRuns(cursors); err != nil {
		return apperr.Wrap(apperr.ErrIO, err, "closing runs")
	}
	cursors = nil
	b.log.Info("runs merged", "runs", b.runs, "keys", w.keys)
	return removeRunFiles(ctx, b.opts)
}

// Abort removes the index files of opts and any leftover runs, and clears
// the catalog entry.
func Abort(ctx context.Context, opts Options) error {
	opts = opts.norm()
	if err := removeIndexFiles(ctx, opts); err != nil {
		return err
	}
	if opts.Catalog == nil {
		return nil
	}
	return apperr.Wrap(apperr.ErrIO, opts.Catalog.ClearIndexed(ctx, opts.Document, opts.Type.String()), "clearing catalog")
}

// Drop closes r and removes its files and catalog entry.
func (r *Reader) Drop(ctx context.Context) error {
	if err := r.Close(); err != nil && !apperr.Is(err, apperr.ErrClosed) {
		return err
	}
	return Abort(ctx, r.opts)
}

func removeIndexFiles(ctx context.Context, opts Options) error {
	runs, err := filepath.Glob(opts.runGlob())
	if err != nil {
		return apperr.Wrap(apperr.ErrInvalidInput, err, "matching run files")
	}
	return removeAll(ctx, append(runs, opts.listsPath(), opts.refsPath()))
}

func removeRunFiles(ctx context.Context, opts Options) error {
	runs, err := filepath.Glob(opts.runGlob())
	if err != nil {
		return apperr.Wrap(apperr.ErrInvalidInput, err, "matching run files")
	}
	return removeAll(ctx, runs)
}

func removeAll(ctx context.Context, paths []string) error {
	g, _ := errgroup.WithContext(ctx)
	for _, p := range paths {
		g.Go(func() error {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return apperr.Wrap(apperr.ErrIO, err, "removing "+filepath.Base(p))
			}
			return nil
		})
	}
	return g.Wait()
}
