// Package ingest turns raw drop-folder events into validated archive
// writes, exactly once per distinct file content.
//
// Per-path lifecycle: the first event starts a quiet-period timer; every
// further event resets it. When the timer expires with no new events the
// file is read, its content fingerprinted, sent upstream for extraction,
// validated, and upserted into the archive. Events arriving while a path
// is being processed mark it dirty so it settles again afterwards, which
// preserves per-path ordering; different paths run concurrently on the
// worker pool.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/drops"
	"github.com/starford/munin/internal/extract"
	"github.com/starford/munin/internal/fingerprint"
	"github.com/starford/munin/internal/ledger"
	"github.com/starford/munin/internal/models"
	"github.com/starford/munin/internal/store"
)

// Op is the kind of a drop-folder event.
type Op int

// Drop-folder event kinds.
const (
	// OpWrite covers both creation and modification of a drop file.
	OpWrite Op = iota
	// OpRemove covers deletion and rename-away of a drop file.
	OpRemove
)

// Event is one raw filesystem notification, with Path relative to the
// drop root. Duplicate and out-of-order delivery for the same path is
// tolerated: the quiet-period timer, not event order, decides stability.
type Event struct {
	Path string
	Op   Op
}

// Notifier is called after a drop reaches a terminal state.
// kind is one of "ingested", "deduped", "failed".
type Notifier func(kind, path string)

// Options tunes the pipeline.
type Options struct {
	// QuietPeriod is the interval with no events after which a drop is
	// considered stable. Defaults to 2s.
	QuietPeriod time.Duration
	// Workers bounds concurrent drop processing. Defaults to 4.
	Workers int
	// StorageAttempts bounds archive upsert retries. Defaults to 3.
	StorageAttempts int
	// Notify, if non-nil, receives terminal-state notifications.
	Notify Notifier
}

// Pipeline is the ingestion core. A single dispatcher goroutine owns the
// path-to-tracker map; watchers, timers, and workers communicate with it
// through channels, so no mutexes guard the trackers.
type Pipeline struct {
	provider  drops.Provider
	extractor extract.Extractor
	archive   store.Archive
	journal   *ledger.Ledger
	logger    *slog.Logger

	quiet           time.Duration
	workers         int
	storageAttempts int
	notify          Notifier

	events   chan Event
	expiries chan expiry
	finished chan string
	jobs     chan job

	stats Stats
}

// expiry is a quiet-period timer firing. gen guards against stale
// expiries from timers superseded by a later event.
type expiry struct {
	path string
	gen  uint64
}

type job struct {
	path string
	id   string
}

// tracker is the dispatcher-owned state record for one in-flight path.
type tracker struct {
	id         string
	gen        uint64
	drop       models.RawDrop
	timer      *time.Timer
	processing bool
	dirty      bool
	removed    bool
}

// New creates a Pipeline. Run must be called before events are consumed.
func New(provider drops.Provider, extractor extract.Extractor, archive store.Archive, journal *ledger.Ledger, logger *slog.Logger, opts Options) *Pipeline {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = 2 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.StorageAttempts <= 0 {
		opts.StorageAttempts = 3
	}
	return &Pipeline{
		provider:        provider,
		extractor:       extractor,
		archive:         archive,
		journal:         journal,
		logger:          logger,
		quiet:           opts.QuietPeriod,
		workers:         opts.Workers,
		storageAttempts: opts.StorageAttempts,
		notify:          opts.Notify,
		events:          make(chan Event, 1024),
		expiries:        make(chan expiry, 1024),
		finished:        make(chan string, 64),
		jobs:            make(chan job, 256),
	}
}

// Enqueue hands a raw event to the pipeline. It blocks only when the
// event buffer is full.
func (p *Pipeline) Enqueue(ev Event) {
	p.events <- ev
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() StatsSnapshot {
	return p.stats.Snapshot()
}

// SetNotify installs the terminal-state notifier. Must be called before
// Run.
func (p *Pipeline) SetNotify(n Notifier) {
	p.notify = n
}

// Run starts the worker pool and the dispatcher loop, blocking until ctx
// is cancelled. In-flight quiet-period timers are dropped on shutdown;
// the startup sweep picks those files up on the next run.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}

	p.logger.Info("pipeline: started",
		slog.Duration("quiet_period", p.quiet),
		slog.Int("workers", p.workers))

	p.dispatch(ctx)

	close(p.jobs)
	wg.Wait()
	p.logger.Info("pipeline: stopped")
	return nil
}

func (p *Pipeline) dispatch(ctx context.Context) {
	trackers := make(map[string]*tracker)
	for {
		select {
		case <-ctx.Done():
			for _, t := range trackers {
				if t.timer != nil {
					t.timer.Stop()
				}
			}
			return
		case ev := <-p.events:
			p.onEvent(trackers, ev)
		case ex := <-p.expiries:
			p.onExpiry(trackers, ex)
		case path := <-p.finished:
			p.onFinished(trackers, path)
		}
	}
}

func (p *Pipeline) onEvent(trackers map[string]*tracker, ev Event) {
	t, tracked := trackers[ev.Path]

	if ev.Op == OpRemove {
		if !tracked {
			return
		}
		if t.processing {
			// Worker already holds the file (or its bytes); let it
			// finish, but do not settle again afterwards.
			t.removed = true
			t.dirty = false
			return
		}
		t.timer.Stop()
		delete(trackers, ev.Path)
		p.logger.Info("pipeline: drop abandoned, file removed while settling",
			slog.String("path", ev.Path),
			slog.String("ingest_id", t.id))
		return
	}

	if !tracked {
		info, err := p.provider.Stat(ev.Path)
		if err != nil {
			// Gone before we ever looked at it.
			return
		}
		t = &tracker{
			id: uuid.NewString(),
			drop: models.RawDrop{
				Path:         ev.Path,
				Size:         info.Size,
				ModTime:      info.ModTime,
				DiscoveredAt: time.Now().UTC(),
			},
		}
		trackers[ev.Path] = t
		p.stats.observed.Add(1)
		p.logger.Info("pipeline: observed",
			slog.String("path", ev.Path),
			slog.String("ingest_id", t.id),
			slog.Int64("size", info.Size))
		p.armTimer(t, ev.Path)
		return
	}

	if t.processing {
		t.dirty = true
		t.removed = false
		return
	}

	// Settling: the file is still being written. Refresh the observed
	// metadata and restart the quiet-period timer.
	info, err := p.provider.Stat(ev.Path)
	if err != nil {
		t.timer.Stop()
		delete(trackers, ev.Path)
		p.logger.Info("pipeline: drop abandoned, file vanished while settling",
			slog.String("path", ev.Path),
			slog.String("ingest_id", t.id))
		return
	}
	t.drop.Size = info.Size
	t.drop.ModTime = info.ModTime
	p.logger.Debug("pipeline: settling",
		slog.String("path", ev.Path),
		slog.String("ingest_id", t.id),
		slog.Int64("size", info.Size))
	p.armTimer(t, ev.Path)
}

// armTimer (re)starts the quiet-period timer for a tracker. Each restart
// bumps the generation so an already-fired stale timer is ignored.
func (p *Pipeline) armTimer(t *tracker, path string) {
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(p.quiet, func() {
		p.expiries <- expiry{path: path, gen: gen}
	})
}

func (p *Pipeline) onExpiry(trackers map[string]*tracker, ex expiry) {
	t, ok := trackers[ex.path]
	if !ok || t.gen != ex.gen || t.processing {
		return
	}
	p.logger.Debug("pipeline: stable",
		slog.String("path", ex.path),
		slog.String("ingest_id", t.id))
	select {
	case p.jobs <- job{path: ex.path, id: t.id}:
		t.processing = true
		t.dirty = false
	default:
		// Worker queue is saturated; settle for another quiet period
		// rather than blocking the dispatcher.
		p.armTimer(t, ex.path)
	}
}

func (p *Pipeline) onFinished(trackers map[string]*tracker, path string) {
	t, ok := trackers[path]
	if !ok {
		return
	}
	if t.dirty && !t.removed {
		// Events arrived mid-processing: the file changed again, so it
		// goes back to settling. Per-path order is preserved because a
		// path never occupies two workers at once.
		t.processing = false
		p.logger.Debug("pipeline: re-settling after change during processing",
			slog.String("path", path),
			slog.String("ingest_id", t.id))
		p.armTimer(t, path)
		return
	}
	delete(trackers, path)
}

func (p *Pipeline) worker(ctx context.Context) {
	for j := range p.jobs {
		if ctx.Err() == nil {
			p.process(ctx, j)
		}
		select {
		case p.finished <- j.path:
		case <-ctx.Done():
		}
	}
}

// process runs one stable drop through reading, parsing, validating, and
// persisting. Every failure is terminal for this pass, logged, and
// journaled; the watch loop and other in-flight drops are unaffected.
func (p *Pipeline) process(ctx context.Context, j job) {
	log := p.logger.With(
		slog.String("path", j.path),
		slog.String("ingest_id", j.id))

	log.Debug("pipeline: reading")
	data, err := p.provider.Read(j.path)
	if err != nil {
		p.fail(log, j.path, "reading", "", fmt.Errorf("read drop: %v: %w", err, apperr.ErrUnreadable))
		return
	}

	fp := fingerprint.Sum(data)

	// Dedup fast path: unchanged content that was already ingested does
	// not go upstream again.
	if ok, jerr := p.journal.IsIngested(j.path, fp); jerr == nil && ok {
		p.stats.deduped.Add(1)
		log.Info("pipeline: deduped, content already ingested",
			slog.String("fingerprint", fp))
		p.emit("deduped", j.path)
		return
	}

	log.Debug("pipeline: parsing", slog.String("fingerprint", fp))
	note, err := p.extractor.Extract(ctx, string(data))
	if err != nil {
		stage := "parsing"
		if errors.Is(err, apperr.ErrBadSchema) {
			stage = "validating"
		}
		p.fail(log, j.path, stage, fp, err)
		return
	}

	tags := note.Tags
	if tags == nil {
		tags = []string{}
	}
	stored := models.StoredNote{
		Title:       note.Title,
		Summary:     note.Summary,
		Tags:        tags,
		Content:     note.Content,
		SourcePath:  j.path,
		Fingerprint: fp,
		Model:       p.extractor.Model(),
		IngestedAt:  time.Now().UTC(),
	}

	outcome, err := p.upsertWithRetry(ctx, stored)
	if err != nil {
		p.fail(log, j.path, "persisting", fp, err)
		return
	}

	if jerr := p.journal.MarkIngested(j.path, fp); jerr != nil {
		log.Warn("pipeline: journal update failed", slog.String("error", jerr.Error()))
	}
	p.stats.ingested.Add(1)
	log.Info("pipeline: persisted",
		slog.String("fingerprint", fp),
		slog.String("outcome", string(outcome)),
		slog.String("title", stored.Title))
	p.emit("ingested", j.path)
}

// upsertWithRetry retries storage failures with exponential backoff up
// to the configured attempts. Non-storage errors are permanent.
func (p *Pipeline) upsertWithRetry(ctx context.Context, note models.StoredNote) (models.UpsertOutcome, error) {
	var outcome models.UpsertOutcome
	op := func() error {
		out, err := p.archive.Upsert(ctx, note)
		if err != nil {
			if errors.Is(err, apperr.ErrStorage) {
				return err
			}
			return backoff.Permanent(err)
		}
		outcome = out
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.storageAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}
	return outcome, nil
}

func (p *Pipeline) fail(log *slog.Logger, path, stage, fp string, err error) {
	p.stats.recordFailure(stage)
	log.Error("pipeline: drop failed",
		slog.String("stage", stage),
		slog.String("kind", apperr.Kind(err)),
		slog.String("error", err.Error()))
	if jerr := p.journal.MarkFailed(path, fp, stage, err.Error()); jerr != nil {
		log.Warn("pipeline: journal update failed", slog.String("error", jerr.Error()))
	}
	p.emit("failed", path)
}

func (p *Pipeline) emit(kind, path string) {
	if p.notify != nil {
		p.notify(kind, path)
	}
}
