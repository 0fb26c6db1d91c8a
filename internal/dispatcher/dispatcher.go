// Package dispatcher delivers envelopes to the handlers modules register.
//
// Envelopes are partitioned by tenant onto sequential workers, so one
// tenant's envelopes are dispatched in arrival order. For each envelope the
// matching handlers of enabled modules run concurrently, bounded by a shared
// semaphore. Handler failures are retried, guarded by a per-handler circuit
// breaker, and isolated from each other and from the outbox.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/circuit"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/sentinel"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/shard"
)

const tracerName = "github.com/AI-Fresh-Docs/RusTokio/internal/dispatcher"

// HandlerFunc reacts to one envelope. It must be safe to call again with the
// same envelope.
type HandlerFunc func(ctx context.Context, env events.Envelope) error

// EnablementChecker reports whether a module is enabled for a tenant.
type EnablementChecker interface {
	IsEnabled(ctx context.Context, tenantID domain.TenantID, slug string) (bool, error)
}

// Source yields envelopes, typically an event bus subscription.
type Source interface {
	Recv(ctx context.Context) (events.Envelope, error)
}

type registration struct {
	module  string
	name    string
	filter  Filter
	handler HandlerFunc
	timeout time.Duration
	retries int
	delay   time.Duration
	breaker *circuit.Breaker
}

// HandlerOption customizes one registration.
type HandlerOption func(*registration)

// WithName names the handler for metrics, logs and its breaker. Defaults to
// "<module>#<n>".
func WithName(name string) HandlerOption {
	return func(r *registration) {
		r.name = name
	}
}

// WithHandlerTimeout overrides Config.HandlerTimeout for this handler.
func WithHandlerTimeout(d time.Duration) HandlerOption {
	return func(r *registration) {
		r.timeout = d
	}
}

// WithRetry overrides Config.RetryCount and Config.RetryDelay.
func WithRetry(count int, delay time.Duration) HandlerOption {
	return func(r *registration) {
		r.retries = count
		r.delay = delay
	}
}

// Dispatcher fans envelopes out to registered handlers.
type Dispatcher struct {
	cfg      Config
	checker  EnablementChecker
	breakers *circuit.Registry
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	sem      *semaphore.Weighted

	mu       sync.RWMutex
	handlers []*registration
	names    map[string]struct{}

	queues    []chan events.Envelope
	startOnce sync.Once
	wg        sync.WaitGroup
}

type Option func(*Dispatcher)

func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) {
		d.cfg = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithBreakers takes handler breakers from reg, so they show up in its
// snapshots.
func WithBreakers(reg *circuit.Registry) Option {
	return func(d *Dispatcher) {
		d.breakers = reg
	}
}

// WithEnablementChecker consults checker before every handler call. Without
// one, every module counts as enabled.
func WithEnablementChecker(checker EnablementChecker) Option {
	return func(d *Dispatcher) {
		d.checker = checker
	}
}

// WithTracerProvider takes the dispatch tracer from tp instead of the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		d.tracer = tp.Tracer(tracerName)
	}
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:    DefaultConfig,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		names:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.cfg = d.cfg.withDefaults()
	if d.breakers == nil {
		d.breakers = circuit.NewRegistry(circuit.DefaultConfig)
	}
	d.sem = semaphore.NewWeighted(int64(d.cfg.MaxConcurrent))
	d.queues = make([]chan events.Envelope, d.cfg.Partitions)
	for i := range d.queues {
		d.queues[i] = make(chan events.Envelope, d.cfg.queueCapacity())
	}
	return d
}

// Register adds a handler owned by moduleSlug. The handler only runs for
// envelopes matching filter while the module is enabled for the envelope's
// tenant.
func (d *Dispatcher) Register(moduleSlug string, filter Filter, handler HandlerFunc, opts ...HandlerOption) error {
	if moduleSlug == "" {
		return errors.New("module slug is required")
	}
	if filter == nil {
		return errors.New("filter is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	reg := &registration{
		module:  moduleSlug,
		filter:  filter,
		handler: handler,
		timeout: d.cfg.HandlerTimeout,
		retries: d.cfg.RetryCount,
		delay:   d.cfg.RetryDelay,
	}
	for _, opt := range opts {
		opt(reg)
	}
	if reg.name == "" {
		reg.name = fmt.Sprintf("%s#%d", moduleSlug, len(d.handlers)+1)
	}
	if _, dup := d.names[reg.name]; dup {
		return fmt.Errorf("handler %q already registered", reg.name)
	}
	if reg.timeout <= 0 {
		reg.timeout = d.cfg.HandlerTimeout
	}
	if reg.retries < 0 {
		reg.retries = 0
	}
	reg.breaker = d.breakers.Get("handler:" + reg.name)

	d.names[reg.name] = struct{}{}
	d.handlers = append(d.handlers, reg)
	return nil
}

// Start launches the partition workers. They stop when ctx is cancelled.
// Calling Start more than once has no further effect.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		for _, q := range d.queues {
			d.wg.Add(1)
			go d.work(ctx, q)
		}
		d.logger.InfoContext(ctx, "dispatcher started",
			"partitions", d.cfg.Partitions,
			"max_concurrent", d.cfg.MaxConcurrent,
			"queue_capacity", d.cfg.queueCapacity(),
		)
	})
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, q chan events.Envelope) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-q:
			if d.metrics != nil {
				d.metrics.QueueDepth.Dec()
			}
			_ = d.Dispatch(ctx, env)
		}
	}
}

// Run starts the workers and feeds them from src until ctx is cancelled or
// src closes. A full queue makes Run wait, which stalls src rather than
// dropping envelopes.
func (d *Dispatcher) Run(ctx context.Context, src Source) error {
	d.Start(ctx)
	for {
		env, err := src.Recv(ctx)
		if err != nil {
			if errors.Is(err, sentinel.ErrClosed) {
				return nil
			}
			return err
		}
		if err := d.Enqueue(ctx, env); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) partition(env events.Envelope) chan events.Envelope {
	return d.queues[shard.Index(uuid.UUID(env.TenantID()), len(d.queues))]
}

// Submit queues env without blocking. It returns ErrBackpressure when the
// tenant's partition is full.
func (d *Dispatcher) Submit(env events.Envelope) error {
	select {
	case d.partition(env) <- env:
		if d.metrics != nil {
			d.metrics.QueueDepth.Inc()
		}
		return nil
	default:
		if d.metrics != nil {
			d.metrics.Backpressure.Inc()
		}
		return ErrBackpressure
	}
}

// Enqueue queues env, waiting for room while the partition is full.
func (d *Dispatcher) Enqueue(ctx context.Context, env events.Envelope) error {
	if err := d.Submit(env); !errors.Is(err, ErrBackpressure) {
		return err
	}
	select {
	case d.partition(env) <- env:
		if d.metrics != nil {
			d.metrics.QueueDepth.Inc()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch delivers env to every matching handler of an enabled module and
// waits for them. The returned error joins the handler failures; it is nil
// when every selected handler succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, env events.Envelope) error {
	ctx, span := d.tracer.Start(ctx, "dispatcher.dispatch", trace.WithAttributes(
		attribute.String("event.id", env.ID().String()),
		attribute.String("event.type", env.EventType()),
		attribute.String("tenant.id", env.TenantID().String()),
	))
	defer span.End()

	selected := d.selectHandlers(env.EventType())
	if len(selected) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx := ctx
	if d.cfg.FailFast {
		runCtx = gctx
	}

	enabled := make(map[string]bool, len(selected))
	for _, reg := range selected {
		on, known := enabled[reg.module]
		if !known {
			var err error
			on, err = d.isEnabled(runCtx, env.TenantID(), reg.module)
			if err != nil {
				enabled[reg.module] = false
				herr := &HandlerError{Module: reg.module, Handler: reg.name, Err: err}
				record(herr)
				d.observe(reg, OutcomeFailure, 0)
				if d.cfg.FailFast {
					g.Go(func() error { return herr })
					break
				}
				continue
			}
			enabled[reg.module] = on
		}
		if !on {
			continue
		}

		if err := d.sem.Acquire(runCtx, 1); err != nil {
			// Under FailFast the failure that cancelled runCtx is already recorded.
			if !d.cfg.FailFast || ctx.Err() != nil {
				record(err)
			}
			break
		}
		g.Go(func() error {
			defer d.sem.Release(1)
			if err := d.invoke(ctx, runCtx, reg, env); err != nil {
				record(err)
				if d.cfg.FailFast {
					return err
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failures")
		return err
	}
	return nil
}

func (d *Dispatcher) selectHandlers(eventType string) []*registration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*registration
	for _, reg := range d.handlers {
		if reg.filter.Match(eventType) {
			out = append(out, reg)
		}
	}
	return out
}

func (d *Dispatcher) isEnabled(ctx context.Context, tenantID domain.TenantID, module string) (bool, error) {
	if d.checker == nil {
		return true, nil
	}
	return d.checker.IsEnabled(ctx, tenantID, module)
}

// invoke runs one handler with retries under its breaker. ctx is the run
// context; when it is cancelled while parent is still live (a fail-fast
// sibling failed), the call is abandoned and not counted against the breaker.
func (d *Dispatcher) invoke(parent, ctx context.Context, reg *registration, env events.Envelope) error {
	start := time.Now()
	var err error
	for attempt := 0; attempt <= reg.retries; attempt++ {
		if attempt > 0 {
			if d.metrics != nil {
				d.metrics.IncRetries(reg.module, reg.name)
			}
			if !sleep(ctx, reg.delay) {
				err = errors.Join(err, ctx.Err())
				break
			}
		}
		err = reg.breaker.Execute(ctx, func(runCtx context.Context) error {
			err := d.callOnce(runCtx, reg, env)
			if err != nil && abandoned(parent, runCtx) {
				return circuit.Neutral(err)
			}
			return err
		})
		if err == nil || errors.Is(err, circuit.ErrOpen) || ctx.Err() != nil {
			break
		}
	}

	elapsed := time.Since(start).Seconds()
	switch {
	case err == nil:
		d.observe(reg, OutcomeSuccess, elapsed)
		return nil
	case abandoned(parent, ctx):
		d.observe(reg, OutcomeCancelled, elapsed)
		d.logger.DebugContext(ctx, "handler cancelled",
			"module", reg.module,
			"handler", reg.name,
			"event_id", env.ID().String(),
		)
	case errors.Is(err, circuit.ErrOpen):
		d.observe(reg, OutcomeSkipped, elapsed)
		d.logger.WarnContext(ctx, "handler skipped, circuit open",
			"module", reg.module,
			"handler", reg.name,
			"event_id", env.ID().String(),
		)
	default:
		d.observe(reg, OutcomeFailure, elapsed)
		d.logger.ErrorContext(ctx, "handler failed",
			"module", reg.module,
			"handler", reg.name,
			"event_id", env.ID().String(),
			"event_type", env.EventType(),
			"tenant_id", env.TenantID().String(),
			"error", err,
		)
	}
	return &HandlerError{Module: reg.module, Handler: reg.name, Err: err}
}

func abandoned(parent, ctx context.Context) bool {
	return ctx.Err() != nil && parent.Err() == nil
}

// callOnce runs the handler under its timeout. A handler that ignores its
// context is abandoned when the timeout fires.
func (d *Dispatcher) callOnce(ctx context.Context, reg *registration, env events.Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, reg.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if d.metrics != nil {
					d.metrics.IncPanics(reg.module, reg.name)
				}
				done <- &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		done <- reg.handler(ctx, env)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("handler %s: %w", reg.name, ctx.Err())
	}
}

func (d *Dispatcher) observe(reg *registration, outcome string, seconds float64) {
	if d.metrics != nil {
		d.metrics.ObserveHandled(reg.module, reg.name, outcome, seconds)
	}
}

// sleep waits for d or until ctx is done, reporting whether it slept fully.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
