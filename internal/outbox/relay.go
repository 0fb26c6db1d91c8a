package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/circuit"
)

const tracerName = "github.com/AI-Fresh-Docs/RusTokio/internal/outbox"

// Publisher hands an envelope to the bus or an external transport. A nil
// error means the envelope has been accepted and the record can be marked
// Delivered.
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// DeadLetterFunc is called once for each record that exhausts its attempts,
// after the Failed status has been committed.
type DeadLetterFunc func(ctx context.Context, rec Record, cause error)

// Config tunes the relay loop.
type Config struct {
	// PollInterval between ticks when not woken early. Default: 1s
	PollInterval time.Duration
	// BatchSize caps records claimed per tick. Default: 100
	BatchSize int
	// MaxAttempts before a record becomes Failed. Default: 10
	MaxAttempts int
	// BackoffBase is the delay after the first failure. Default: 1s
	BackoffBase time.Duration
	// BackoffMax caps the exponential delay. Default: 5m
	BackoffMax time.Duration
	// BackoffJitter is the upper bound of the random delay added. Default: 500ms
	BackoffJitter time.Duration
}

var DefaultConfig = Config{
	PollInterval:  time.Second,
	BatchSize:     100,
	MaxAttempts:   10,
	BackoffBase:   time.Second,
	BackoffMax:    5 * time.Minute,
	BackoffJitter: 500 * time.Millisecond,
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultConfig.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultConfig.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultConfig.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultConfig.BackoffMax
	}
	if c.BackoffJitter < 0 {
		c.BackoffJitter = 0
	}
	return c
}

// Result summarizes one relay pass.
type Result struct {
	Claimed     int
	Delivered   int
	Rescheduled int
	Failed      int
	// Skipped records were left Pending behind an earlier failure of the
	// same tenant or an open breaker.
	Skipped int
}

// Relay moves Pending records to a Publisher with at-least-once semantics.
// All of its state lives in the outbox table, so a restarted relay picks up
// where the previous one stopped.
type Relay struct {
	store      Store
	publisher  Publisher
	breaker    *circuit.Breaker
	cfg        Config
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	now        func() time.Time
	jitter     func(time.Duration) time.Duration
	deadLetter DeadLetterFunc
	wake       chan struct{}
}

type RelayOption func(*Relay)

func WithConfig(cfg Config) RelayOption {
	return func(r *Relay) {
		r.cfg = cfg
	}
}

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithBreaker guards every publish with b.
func WithBreaker(b *circuit.Breaker) RelayOption {
	return func(r *Relay) {
		r.breaker = b
	}
}

func WithDeadLetter(fn DeadLetterFunc) RelayOption {
	return func(r *Relay) {
		r.deadLetter = fn
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) RelayOption {
	return func(r *Relay) {
		r.now = now
	}
}

// WithJitter replaces the random backoff jitter, for tests.
func WithJitter(fn func(limit time.Duration) time.Duration) RelayOption {
	return func(r *Relay) {
		r.jitter = fn
	}
}

func WithTracerProvider(tp trace.TracerProvider) RelayOption {
	return func(r *Relay) {
		r.tracer = tp.Tracer(tracerName)
	}
}

func NewRelay(store Store, publisher Publisher, opts ...RelayOption) (*Relay, error) {
	if store == nil {
		return nil, errors.New("outbox store is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	r := &Relay{
		store:     store,
		publisher: publisher,
		cfg:       DefaultConfig,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		now:       func() time.Time { return time.Now().UTC() },
		jitter:    jitter,
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cfg = r.cfg.withDefaults()
	return r, nil
}

// Wake asks the relay to poll now instead of waiting for the next tick.
func (r *Relay) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. Tick errors are logged and retried on
// the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "outbox relay started",
		"poll_interval", r.cfg.PollInterval.String(),
		"batch_size", r.cfg.BatchSize,
		"max_attempts", r.cfg.MaxAttempts,
	)
	for {
		r.drain(ctx)
		r.refreshStats(ctx)

		select {
		case <-ctx.Done():
			r.logger.InfoContext(context.WithoutCancel(ctx), "outbox relay stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// drain runs passes back to back while full batches keep coming.
func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := r.RunOnce(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "outbox relay pass failed", "error", err)
			}
			return
		}
		if res.Claimed < r.cfg.BatchSize || res.Delivered == 0 {
			return
		}
	}
}

func (r *Relay) refreshStats(ctx context.Context) {
	if r.metrics == nil || ctx.Err() != nil {
		return
	}
	if _, err := r.Stats(ctx); err != nil {
		r.logger.DebugContext(ctx, "failed to refresh outbox stats", "error", err)
	}
}

// tally accumulates a pass's outcome across tenant goroutines.
type tally struct {
	mu   sync.Mutex
	res  Result
	dead []deadRecord
}

type deadRecord struct {
	rec   Record
	cause error
}

func (t *tally) add(fn func(*Result)) {
	t.mu.Lock()
	fn(&t.res)
	t.mu.Unlock()
}

func (t *tally) addDead(rec Record, cause error) {
	t.mu.Lock()
	t.dead = append(t.dead, deadRecord{rec: rec, cause: cause})
	t.res.Failed++
	t.mu.Unlock()
}

// RunOnce claims one batch, publishes it, and commits the outcome. Tenants
// are processed concurrently; each tenant's records are processed in order
// and processing stops at that tenant's first failure.
func (r *Relay) RunOnce(ctx context.Context) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "outbox.relay.pass")
	defer span.End()

	start := time.Now()
	batch, err := r.store.Claim(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return Result{}, fmt.Errorf("claim outbox batch: %w", err)
	}

	recs := batch.Records()
	span.SetAttributes(attribute.Int("outbox.claimed", len(recs)))
	if len(recs) == 0 {
		if err := batch.Commit(); err != nil {
			return Result{}, fmt.Errorf("commit empty outbox batch: %w", err)
		}
		return Result{}, nil
	}

	t := &tally{res: Result{Claimed: len(recs)}}
	g, gctx := errgroup.WithContext(ctx)
	for _, tenantRecs := range groupByTenant(recs) {
		g.Go(func() error {
			return r.processTenant(gctx, batch, tenantRecs, t)
		})
	}
	if err := g.Wait(); err != nil {
		_ = batch.Rollback()
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch rolled back")
		return Result{}, err
	}
	if err := batch.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return Result{}, fmt.Errorf("commit outbox batch: %w", err)
	}

	if r.metrics != nil {
		r.metrics.ObserveBatch(len(recs), time.Since(start).Seconds())
		r.metrics.Delivered.Add(float64(t.res.Delivered))
		r.metrics.Rescheduled.Add(float64(t.res.Rescheduled))
		r.metrics.DeadLettered.Add(float64(t.res.Failed))
	}
	for _, d := range t.dead {
		r.logger.ErrorContext(ctx, "outbox record dead-lettered",
			"event_id", d.rec.ID.String(),
			"event_type", d.rec.EventType,
			"tenant_id", d.rec.TenantID.String(),
			"attempts", d.rec.AttemptCount,
			"error", d.cause,
		)
		if r.deadLetter != nil {
			r.deadLetter(ctx, d.rec, d.cause)
		}
	}
	span.SetAttributes(
		attribute.Int("outbox.delivered", t.res.Delivered),
		attribute.Int("outbox.rescheduled", t.res.Rescheduled),
		attribute.Int("outbox.failed", t.res.Failed),
	)
	return t.res, nil
}

func (r *Relay) processTenant(ctx context.Context, batch Batch, recs []Record, t *tally) error {
	for i, rec := range recs {
		env, err := rec.Envelope()
		if err != nil {
			// An undecodable payload never succeeds; fail it at once.
			rec.AttemptCount++
			msg := err.Error()
			rec.LastError = &msg
			rec.Status = StatusFailed
			if err := batch.MarkFailed(ctx, rec.ID, rec.AttemptCount, msg); err != nil {
				return fmt.Errorf("mark outbox record %s failed: %w", rec.ID, err)
			}
			t.addDead(rec, err)
			continue
		}

		pubErr := r.publish(ctx, env)
		if pubErr == nil {
			if err := batch.MarkDelivered(ctx, rec.ID, r.now()); err != nil {
				return fmt.Errorf("mark outbox record %s delivered: %w", rec.ID, err)
			}
			t.add(func(res *Result) { res.Delivered++ })
			continue
		}

		remaining := len(recs) - i - 1
		if errors.Is(pubErr, circuit.ErrOpen) {
			r.logger.WarnContext(ctx, "publisher circuit open, leaving records pending",
				"tenant_id", rec.TenantID.String(),
				"records", remaining+1,
			)
			t.add(func(res *Result) { res.Skipped += remaining + 1 })
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.recordFailure(ctx, batch, rec, pubErr, t); err != nil {
			return err
		}
		t.add(func(res *Result) { res.Skipped += remaining })
		return nil
	}
	return nil
}

func (r *Relay) recordFailure(ctx context.Context, batch Batch, rec Record, cause error, t *tally) error {
	rec.AttemptCount++
	msg := cause.Error()
	rec.LastError = &msg

	if rec.AttemptCount >= r.cfg.MaxAttempts {
		rec.Status = StatusFailed
		if err := batch.MarkFailed(ctx, rec.ID, rec.AttemptCount, msg); err != nil {
			return fmt.Errorf("mark outbox record %s failed: %w", rec.ID, err)
		}
		t.addDead(rec, cause)
		return nil
	}

	delay := Backoff(rec.AttemptCount, r.cfg.BackoffBase, r.cfg.BackoffMax) + r.jitter(r.cfg.BackoffJitter)
	next := r.now().Add(delay)
	if err := batch.Reschedule(ctx, rec.ID, rec.AttemptCount, next, msg); err != nil {
		return fmt.Errorf("reschedule outbox record %s: %w", rec.ID, err)
	}
	r.logger.WarnContext(ctx, "outbox delivery failed, rescheduled",
		"event_id", rec.ID.String(),
		"event_type", rec.EventType,
		"tenant_id", rec.TenantID.String(),
		"attempt", rec.AttemptCount,
		"retry_in", delay.String(),
		"error", cause,
	)
	t.add(func(res *Result) { res.Rescheduled++ })
	return nil
}

func (r *Relay) publish(ctx context.Context, env events.Envelope) error {
	if r.breaker == nil {
		return r.publisher.Publish(ctx, env)
	}
	return r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.publisher.Publish(ctx, env)
	})
}

// groupByTenant splits recs per tenant keeping claim order.
func groupByTenant(recs []Record) [][]Record {
	index := make(map[domain.TenantID]int)
	var groups [][]Record
	for _, rec := range recs {
		i, ok := index[rec.TenantID]
		if !ok {
			i = len(groups)
			index[rec.TenantID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], rec)
	}
	return groups
}

// Requeue moves a Failed record back to Pending and wakes the relay.
func (r *Relay) Requeue(ctx context.Context, id domain.EventID) error {
	if err := r.store.Requeue(ctx, id, r.now()); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "outbox record requeued", "event_id", id.String())
	if r.metrics != nil {
		r.metrics.Requeued.Inc()
	}
	r.Wake()
	return nil
}

func (r *Relay) ListFailed(ctx context.Context, limit int) ([]Record, error) {
	return r.store.ListFailed(ctx, limit)
}

// Stats counts records by status and updates the status gauges.
func (r *Relay) Stats(ctx context.Context) (Stats, error) {
	stats, err := r.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	if r.metrics != nil {
		r.metrics.SetStats(stats)
	}
	return stats, nil
}

// Prune deletes Delivered records older than retention.
func (r *Relay) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := r.store.Prune(ctx, r.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "pruned delivered outbox records", "count", n)
	}
	return n, nil
}

// Breaker returns the publish breaker, or nil.
func (r *Relay) Breaker() *circuit.Breaker {
	return r.breaker
}
