package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/propdata/rera-ingest/internal/config"
	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/normalize"
	"github.com/propdata/rera-ingest/internal/resilience"
	"github.com/propdata/rera-ingest/internal/scrapecache"
	"github.com/propdata/rera-ingest/internal/store"
)

const (
	defaultWorkers           = 4
	defaultRecordTimeoutSecs = 30
)

// Engine fans source records out over a bounded worker pool, applying each
// one through the Upserter. It owns the run audit row and the delta-scrape
// cache for the duration of a run; per-record failures are counted and
// recorded as provenance, never aborting the run.
type Engine struct {
	store         store.Store
	cache         *scrapecache.Cache
	upserter      *Upserter
	workers       int
	recordTimeout time.Duration
	maxAttempts   int
	flushEvery    int
}

// Options configure a single run.
type Options struct {
	Mode   model.RunMode
	Source string // recorded on the run row for auditing
	Limit  int    // stop dispatching after N records; 0 means no limit
}

// Result is the outcome of a completed run.
type Result struct {
	Run    *model.IngestRun
	Counts model.RunCounts
}

// NewEngine assembles an engine from its collaborators. flushEvery is the
// cache's intermediate flush interval in keys (0 disables, final flush
// always happens on close).
func NewEngine(st store.Store, cache *scrapecache.Cache, upserter *Upserter, cfg config.IngestConfig, flushEvery int) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	timeoutSecs := cfg.RecordTimeoutSecs
	if timeoutSecs <= 0 {
		timeoutSecs = defaultRecordTimeoutSecs
	}
	return &Engine{
		store:         st,
		cache:         cache,
		upserter:      upserter,
		workers:       workers,
		recordTimeout: time.Duration(timeoutSecs) * time.Second,
		maxAttempts:   cfg.MaxAttempts,
		flushEvery:    flushEvery,
	}
}

type runCounters struct {
	processed, created, updated, unchanged, failed, skipped atomic.Int64
}

func (c *runCounters) counts() model.RunCounts {
	return model.RunCounts{
		Processed: c.processed.Load(),
		Created:   c.created.Load(),
		Updated:   c.updated.Load(),
		Unchanged: c.unchanged.Load(),
		Failed:    c.failed.Load(),
		Skipped:   c.skipped.Load(),
	}
}

// Run processes a bundle of records under one audit run. It returns an
// error only on hard failure (store unreachable, run bookkeeping broken,
// cache unflushable, context cancelled); individual record failures are
// reflected in the returned counts. The run row is completed or failed
// accordingly before Run returns.
func (e *Engine) Run(ctx context.Context, records []model.SourceRecord, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "ingest.engine"))

	mode := opts.Mode
	if mode == "" {
		mode = model.RunModeFull
	}
	if !mode.Valid() {
		return nil, eris.Errorf("ingest: unknown run mode %q", mode)
	}

	// Snapshot the cache before the recorder goroutine starts. Workers
	// consult the snapshot only; the live cache has a single owner.
	var seen map[string]struct{}
	if mode == model.RunModeDelta {
		keys := e.cache.Keys()
		seen = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}

	run, err := e.store.StartRun(ctx, mode, opts.Source)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: start run")
	}

	rlog := log.With(zap.String("run_id", run.ID), zap.String("mode", string(mode)))
	rlog.Info("run started",
		zap.Int("records", len(records)),
		zap.Int("workers", e.workers),
	)

	recorder := scrapecache.NewRecorder(e.cache, e.flushEvery)
	start := time.Now()

	var c runCounters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	dispatched := 0
	for _, rec := range records {
		if opts.Limit > 0 && dispatched >= opts.Limit {
			rlog.Info("record limit reached", zap.Int("limit", opts.Limit))
			break
		}

		key := normalize.CacheKey(rec.StateCode, rec.RegistrationNo)
		if mode == model.RunModeDelta {
			if _, ok := seen[key]; ok {
				rlog.Debug("skipping cached record", zap.String("key", key))
				c.skipped.Add(1)
				continue
			}
		}
		dispatched++

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			e.processRecord(gctx, rlog, run.ID, rec, key, recorder, &c)
			return nil
		})
	}

	waitErr := g.Wait()

	// Drain and flush the cache even when the run is being torn down; keys
	// for committed records must reach disk before the run row closes.
	closeErr := recorder.Close()

	counts := c.counts()
	finCtx := ctx
	if ctx.Err() != nil {
		// The pool context is gone but the run row still needs closing.
		var cancel context.CancelFunc
		finCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}

	switch {
	case waitErr != nil:
		if err := e.store.FailRun(finCtx, run.ID, counts, waitErr.Error()); err != nil {
			rlog.Error("failed to record run failure", zap.Error(err))
		}
		return nil, eris.Wrap(waitErr, "ingest: run aborted")
	case closeErr != nil:
		if err := e.store.FailRun(finCtx, run.ID, counts, closeErr.Error()); err != nil {
			rlog.Error("failed to record run failure", zap.Error(err))
		}
		return nil, eris.Wrap(closeErr, "ingest: flush scrape cache")
	}

	if err := e.store.CompleteRun(finCtx, run.ID, counts); err != nil {
		return nil, eris.Wrap(err, "ingest: complete run")
	}

	rlog.Info("run complete",
		zap.Int64("processed", counts.Processed),
		zap.Int64("created", counts.Created),
		zap.Int64("updated", counts.Updated),
		zap.Int64("unchanged", counts.Unchanged),
		zap.Int64("failed", counts.Failed),
		zap.Int64("skipped", counts.Skipped),
		zap.Duration("elapsed", time.Since(start)),
	)

	completed, err := e.store.GetRun(finCtx, run.ID)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: reload run")
	}
	return &Result{Run: completed, Counts: counts}, nil
}

// processRecord applies one record with a bounded timeout and retry on
// transient store errors. Failures are recorded as provenance and counted;
// they never propagate to the pool.
func (e *Engine) processRecord(ctx context.Context, log *zap.Logger, runID string, rec model.SourceRecord, key string, recorder *scrapecache.Recorder, c *runCounters) {
	rLog := log.With(
		zap.String("state_code", rec.StateCode),
		zap.String("registration_no", rec.RegistrationNo),
	)

	retryCfg := resilience.StoreRetryConfig(e.maxAttempts)
	// A duplicate-key loss means another worker committed the same
	// registration first; a fresh transaction converges on unchanged.
	retryCfg.ShouldRetry = func(err error) bool {
		return resilience.IsTransient(err) || eris.Is(err, store.ErrDuplicate)
	}
	retryCfg.OnRetry = resilience.RetryLogger("ingest.engine", "apply record")

	var outcome *Outcome
	err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.recordTimeout)
		defer cancel()
		var applyErr error
		outcome, applyErr = e.upserter.Apply(attemptCtx, e.store, runID, rec)
		return applyErr
	})

	c.processed.Add(1)

	if err != nil {
		rLog.Warn("record failed", zap.Error(err))
		e.recordFailure(ctx, runID, rec, err)
		c.failed.Add(1)
		return // one bad record never aborts the run
	}

	switch outcome.Decision {
	case model.DecisionCreated:
		c.created.Add(1)
	case model.DecisionUpdated:
		c.updated.Add(1)
	default:
		c.unchanged.Add(1)
	}
	if outcome.ParentCreated {
		rLog.Debug("created parent project", zap.String("parent_id", outcome.ParentID))
	}

	// Only committed records reach the cache.
	recorder.Record(key)
}

// recordFailure writes a failed provenance row outside the record's
// transaction so the audit trail survives the rollback.
func (e *Engine) recordFailure(ctx context.Context, runID string, rec model.SourceRecord, cause error) {
	p := &model.ProvenanceRecord{
		ID:             uuid.NewString(),
		RunID:          runID,
		StateCode:      normalize.Key(rec.StateCode),
		RegistrationNo: normalize.Key(rec.RegistrationNo),
		Decision:       model.DecisionFailed,
		Error:          cause.Error(),
		SourceURL:      rec.SourceURL,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.store.RecordFailure(context.WithoutCancel(ctx), p); err != nil {
		zap.L().Error("ingest: record failure provenance",
			zap.String("run_id", runID),
			zap.String("registration_no", rec.RegistrationNo),
			zap.Error(err),
		)
	}
}
