package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oarkflow/log"
	"github.com/oarkflow/transaction"
	"github.com/oarkflow/xid"
	"golang.org/x/sync/errgroup"

	"github.com/oarkflow/hl7/pkg/cache"
	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/resilience"
	"github.com/oarkflow/hl7/pkg/utils"
)

// ControlIDField is the record key used for de-duplication.
const ControlIDField = "hl7_control_id"

// Summary reports the outcome of one Run.
type Summary struct {
	ID          string    `json:"id"`
	Extracted   int64     `json:"extracted"`
	Transformed int64     `json:"transformed"`
	Filtered    int64     `json:"filtered"`
	Duplicates  int64     `json:"duplicates"`
	Loaded      int64     `json:"loaded"`
	Failed      int64     `json:"failed"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

type counters struct {
	extracted     atomic.Int64
	transformed   atomic.Int64
	filtered      atomic.Int64
	duplicates    atomic.Int64
	loaded        atomic.Int64
	failed        atomic.Int64
	failedBatches atomic.Int64
}

// item carries a record through the stages together with the record its
// source emitted, which is what the source settles.
type item struct {
	rec  utils.Record
	orig utils.Record
	src  int
}

type Option func(*Pipeline)

func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithRetry retries failed batch loads with backoff. A breakerThreshold
// above zero stops hammering a sink after that many consecutive failures.
func WithRetry(attempts int, delay time.Duration, breakerThreshold int) Option {
	return func(p *Pipeline) {
		p.retryAttempts = attempts
		p.retryDelay = delay
		if breakerThreshold > 0 {
			p.breaker = resilience.NewBreaker(breakerThreshold, 30*time.Second)
		}
	}
}

// WithDedup skips records whose control id was already loaded.
func WithDedup(seen *cache.Seen) Option {
	return func(p *Pipeline) {
		p.seen = seen
	}
}

func WithLimit(n int) Option {
	return func(p *Pipeline) {
		p.limit = n
	}
}

func WithDeadLetterCap(n int) Option {
	return func(p *Pipeline) {
		p.deadLetterCap = n
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithCloser registers a cleanup that runs after the loader is closed.
func WithCloser(fn func() error) Option {
	return func(p *Pipeline) {
		p.closers = append(p.closers, fn)
	}
}

// Pipeline moves raw messages from sources through transformers into one
// loader.
type Pipeline struct {
	sources       []contracts.Source
	transformers  []contracts.Transformer
	loader        contracts.Loader
	workers       int
	batchSize     int
	retryAttempts int
	retryDelay    time.Duration
	breaker       *resilience.Breaker
	seen          *cache.Seen
	limit         int
	logger        *log.Logger
	closers       []func() error

	deadLetterCap  int
	deadLetterLock sync.Mutex
	deadLetters    []utils.Record
}

func New(loader contracts.Loader, sources []contracts.Source, transformers []contracts.Transformer, opts ...Option) *Pipeline {
	p := &Pipeline{
		sources:       sources,
		transformers:  transformers,
		loader:        loader,
		workers:       4,
		batchSize:     100,
		retryAttempts: 1,
		deadLetterCap: 10000,
		logger:        &log.DefaultLogger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DeadLetters returns the records whose batch could not be loaded.
func (p *Pipeline) DeadLetters() []utils.Record {
	p.deadLetterLock.Lock()
	defer p.deadLetterLock.Unlock()
	out := make([]utils.Record, len(p.deadLetters))
	copy(out, p.deadLetters)
	return out
}

// Run drains every source once. Per-record transform errors and failed
// batches are counted, not fatal; Run returns an error for setup failures,
// cancellation, or when any batch could not be loaded.
func (p *Pipeline) Run(ctx context.Context) (summary Summary, err error) {
	var c counters
	summary = Summary{ID: xid.New().String(), StartedAt: time.Now()}
	defer func() {
		summary.Extracted = c.extracted.Load()
		summary.Transformed = c.transformed.Load()
		summary.Filtered = c.filtered.Load()
		summary.Duplicates = c.duplicates.Load()
		summary.Loaded = c.loaded.Load()
		summary.Failed = c.failed.Load()
		summary.FinishedAt = time.Now()
	}()
	if len(p.sources) == 0 {
		return summary, fmt.Errorf("pipeline: no sources configured")
	}
	if err := p.loader.Setup(ctx); err != nil {
		return summary, fmt.Errorf("pipeline: loader setup: %w", err)
	}
	defer p.close()
	for i, src := range p.sources {
		if err := src.Setup(ctx); err != nil {
			return summary, fmt.Errorf("pipeline: source %d setup: %w", i, err)
		}
		defer src.Close()
	}
	p.logger.Info().Str("run_id", summary.ID).Int("sources", len(p.sources)).Int("workers", p.workers).Msg("pipeline started")

	g, gctx := errgroup.WithContext(ctx)
	raw := make(chan item, p.workers*2)
	out := make(chan item, p.batchSize)

	g.Go(func() error {
		defer close(raw)
		return p.extract(gctx, raw, &c)
	})
	g.Go(func() error {
		defer close(out)
		workers, wctx := errgroup.WithContext(gctx)
		for i := 0; i < p.workers; i++ {
			workers.Go(func() error {
				return p.transform(wctx, raw, out, &c)
			})
		}
		return workers.Wait()
	})
	g.Go(func() error {
		return p.load(gctx, out, &c)
	})
	if err := g.Wait(); err != nil {
		return summary, err
	}
	if p.seen != nil {
		if err := p.seen.Save(); err != nil {
			p.logger.Warn().Err(err).Msg("could not persist seen control ids")
		}
	}
	p.logger.Info().Str("run_id", summary.ID).
		Int("extracted", int(c.extracted.Load())).
		Int("loaded", int(c.loaded.Load())).
		Int("failed", int(c.failed.Load())).
		Msg("pipeline finished")
	if n := c.failedBatches.Load(); n > 0 {
		return summary, fmt.Errorf("pipeline: %d batches could not be loaded", n)
	}
	return summary, nil
}

func (p *Pipeline) close() {
	if err := p.loader.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("loader close failed")
	}
	for _, fn := range p.closers {
		if err := fn(); err != nil {
			p.logger.Warn().Err(err).Msg("cleanup failed")
		}
	}
}

// extract fans all sources into raw. The limit applies per source. A source
// that stops on a read error fails the run.
func (p *Pipeline) extract(ctx context.Context, raw chan<- item, c *counters) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range p.sources {
		var opts []contracts.Option
		if p.limit > 0 {
			opts = append(opts, contracts.WithLimit(p.limit))
		}
		ch, err := src.Extract(gctx, opts...)
		if err != nil {
			g.Go(func() error {
				return fmt.Errorf("pipeline: source %d extract: %w", i, err)
			})
			break
		}
		g.Go(func() error {
			for rec := range ch {
				c.extracted.Add(1)
				select {
				case raw <- item{rec: rec, orig: rec, src: i}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if er, ok := src.(contracts.ErrorReporter); ok {
				if err := er.Err(); err != nil {
					return fmt.Errorf("pipeline: source %d: %w", i, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// transform runs the chain. Records that cannot be parsed are rejected at
// their source without requeueing; filtered records are acknowledged.
func (p *Pipeline) transform(ctx context.Context, raw <-chan item, out chan<- item, c *counters) error {
	for it := range raw {
		res, err := p.applyTransformers(ctx, it.rec)
		if err != nil {
			c.failed.Add(1)
			p.logger.Warn().Err(err).Str("source", fmt.Sprint(it.rec["source_path"])).Msg("transform failed")
			p.settle(it, false, false)
			continue
		}
		if res == nil {
			c.filtered.Add(1)
			p.settle(it, true, false)
			continue
		}
		c.transformed.Add(1)
		it.rec = res
		select {
		case out <- it:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (p *Pipeline) applyTransformers(ctx context.Context, rec utils.Record) (utils.Record, error) {
	var err error
	for _, tr := range p.transformers {
		rec, err = tr.Transform(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tr.Name(), err)
		}
		if rec == nil {
			return nil, nil
		}
	}
	return rec, nil
}

// load batches records and stores them. De-duplication happens here, in a
// single goroutine, so a control id is admitted at most once per run.
func (p *Pipeline) load(ctx context.Context, in <-chan item, c *counters) error {
	batch := make([]item, 0, p.batchSize)
	pending := make(map[string]struct{})
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.storeBatch(ctx, batch, c)
		batch = make([]item, 0, p.batchSize)
		clear(pending)
	}
	for it := range in {
		if p.seen != nil {
			key, _ := utils.GetString(it.rec, ControlIDField)
			if key != "" {
				if _, dup := pending[key]; dup || p.seen.Has(key) {
					c.duplicates.Add(1)
					p.settle(it, true, false)
					continue
				}
				pending[key] = struct{}{}
			}
		}
		batch = append(batch, it)
		if len(batch) >= p.batchSize {
			flush()
		}
	}
	flush()
	return ctx.Err()
}

// storeBatch loads one batch in a transaction. On commit the control ids are
// marked seen and the records acknowledged at their sources; a batch that
// still fails after retries is dead-lettered and requeued at its sources.
func (p *Pipeline) storeBatch(ctx context.Context, items []item, c *counters) {
	batch := make([]utils.Record, len(items))
	for i, it := range items {
		batch[i] = it.rec
	}
	err := transaction.RunInTransaction(ctx, func(tx *transaction.Transaction) error {
		if err := tx.RegisterCommit(func(context.Context) error {
			for _, it := range items {
				if key, ok := utils.GetString(it.rec, ControlIDField); ok && key != "" && p.seen != nil {
					p.seen.Mark(key)
				}
				p.settle(it, true, false)
			}
			return nil
		}); err != nil {
			return err
		}
		return resilience.Retry(ctx, p.retryAttempts, p.retryDelay, p.breaker, func() error {
			return p.loader.StoreBatch(ctx, batch)
		})
	})
	if err != nil {
		for _, it := range items {
			p.settle(it, false, true)
		}
		c.failed.Add(int64(len(batch)))
		c.failedBatches.Add(1)
		p.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("batch load failed")
		p.deadLetterLock.Lock()
		if len(p.deadLetters)+len(batch) <= p.deadLetterCap {
			p.deadLetters = append(p.deadLetters, batch...)
		} else {
			p.logger.Warn().Int("capacity", p.deadLetterCap).Msg("dead letter capacity reached; dropping failed batch")
		}
		p.deadLetterLock.Unlock()
		return
	}
	c.loaded.Add(int64(len(batch)))
}

// settle acknowledges or rejects a record at the source that emitted it.
func (p *Pipeline) settle(it item, ack, requeue bool) {
	a, ok := p.sources[it.src].(contracts.Acknowledger)
	if !ok {
		return
	}
	var err error
	if ack {
		err = a.Ack(it.orig)
	} else {
		err = a.Nack(it.orig, requeue)
	}
	if err != nil {
		p.logger.Warn().Err(err).Int("source", it.src).Msg("could not settle record")
	}
}
