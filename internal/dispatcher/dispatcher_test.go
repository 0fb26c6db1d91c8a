package dispatcher_test

//go:generate mockgen -source=dispatcher.go -destination=mocks/mocks.go -package=mocks EnablementChecker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/AI-Fresh-Docs/RusTokio/internal/dispatcher"
	"github.com/AI-Fresh-Docs/RusTokio/internal/dispatcher/mocks"
	"github.com/AI-Fresh-Docs/RusTokio/internal/eventbus"
	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/circuit"
)

type DispatcherSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	checker *mocks.MockEnablementChecker
	metrics *dispatcher.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
	tenant  domain.TenantID
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.checker = mocks.NewMockEnablementChecker(s.ctrl)
	s.metrics = dispatcher.NewMetrics(prometheus.NewRegistry())
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Second)
	s.tenant = domain.TenantID(uuid.New())
}

func (s *DispatcherSuite) TearDownTest() {
	s.cancel()
	s.ctrl.Finish()
}

func (s *DispatcherSuite) newDispatcher(cfg dispatcher.Config, opts ...dispatcher.Option) *dispatcher.Dispatcher {
	base := []dispatcher.Option{
		dispatcher.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		dispatcher.WithMetrics(s.metrics),
		dispatcher.WithConfig(cfg),
	}
	return dispatcher.New(append(base, opts...)...)
}

func (s *DispatcherSuite) nodeCreated() events.Envelope {
	env, err := events.NewEnvelope(s.tenant, nil, events.NodeCreated{NodeID: uuid.New(), Kind: "post"})
	s.Require().NoError(err)
	return env
}

func (s *DispatcherSuite) handled(module, handler, outcome string) float64 {
	return testutil.ToFloat64(s.metrics.Handled.WithLabelValues(module, handler, outcome))
}

func noRetry() dispatcher.Config {
	return dispatcher.Config{RetryCount: 0, MaxConcurrent: 4, Partitions: 2}
}

func (s *DispatcherSuite) TestRegister() {
	d := s.newDispatcher(noRetry())
	noop := func(context.Context, events.Envelope) error { return nil }

	s.Run("validates arguments", func() {
		s.Error(d.Register("", dispatcher.All, noop))
		s.Error(d.Register("content", nil, noop))
		s.Error(d.Register("content", dispatcher.All, nil))
	})

	s.Run("rejects duplicate names", func() {
		s.Require().NoError(d.Register("content", dispatcher.All, noop, dispatcher.WithName("index")))
		s.Error(d.Register("blog", dispatcher.All, noop, dispatcher.WithName("index")))
	})
}

func (s *DispatcherSuite) TestFilters() {
	d := s.newDispatcher(noRetry())
	var content, commerce, all atomic.Int32
	s.Require().NoError(d.Register("content", dispatcher.Types(events.TypeNodeCreated), func(context.Context, events.Envelope) error {
		content.Add(1)
		return nil
	}))
	s.Require().NoError(d.Register("commerce", dispatcher.Prefix("commerce."), func(context.Context, events.Envelope) error {
		commerce.Add(1)
		return nil
	}))
	s.Require().NoError(d.Register("audit", dispatcher.All, func(context.Context, events.Envelope) error {
		all.Add(1)
		return nil
	}))

	s.Require().NoError(d.Dispatch(s.ctx, s.nodeCreated()))

	s.Equal(int32(1), content.Load())
	s.Equal(int32(0), commerce.Load())
	s.Equal(int32(1), all.Load())
}

func (s *DispatcherSuite) TestEnablement() {
	d := s.newDispatcher(noRetry(), dispatcher.WithEnablementChecker(s.checker))
	var calls atomic.Int32
	handler := func(context.Context, events.Envelope) error {
		calls.Add(1)
		return nil
	}
	s.Require().NoError(d.Register("content", dispatcher.All, handler, dispatcher.WithName("a")))
	s.Require().NoError(d.Register("content", dispatcher.All, handler, dispatcher.WithName("b")))

	s.Run("disabled module is skipped", func() {
		s.checker.EXPECT().IsEnabled(gomock.Any(), s.tenant, "content").Return(false, nil).Times(1)
		s.Require().NoError(d.Dispatch(s.ctx, s.nodeCreated()))
		s.Equal(int32(0), calls.Load())
	})

	s.Run("enabled module runs every handler", func() {
		s.checker.EXPECT().IsEnabled(gomock.Any(), s.tenant, "content").Return(true, nil).Times(1)
		s.Require().NoError(d.Dispatch(s.ctx, s.nodeCreated()))
		s.Equal(int32(2), calls.Load())
	})

	s.Run("lookup failure is a handler failure", func() {
		lookupErr := errors.New("store down")
		s.checker.EXPECT().IsEnabled(gomock.Any(), s.tenant, "content").Return(false, lookupErr).Times(1)
		err := d.Dispatch(s.ctx, s.nodeCreated())
		s.Require().ErrorIs(err, lookupErr)
		var herr *dispatcher.HandlerError
		s.Require().ErrorAs(err, &herr)
		s.Equal("content", herr.Module)
	})
}

func (s *DispatcherSuite) TestRetries() {
	s.Run("recovers within the retry budget", func() {
		d := s.newDispatcher(dispatcher.Config{RetryCount: 3, Partitions: 1})
		var calls atomic.Int32
		s.Require().NoError(d.Register("content", dispatcher.All, func(context.Context, events.Envelope) error {
			if calls.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		}, dispatcher.WithName("flaky"), dispatcher.WithRetry(3, time.Millisecond)))

		s.Require().NoError(d.Dispatch(s.ctx, s.nodeCreated()))
		s.Equal(int32(3), calls.Load())
		s.Equal(float64(2), testutil.ToFloat64(s.metrics.Retries.WithLabelValues("content", "flaky")))
		s.Equal(float64(1), s.handled("content", "flaky", dispatcher.OutcomeSuccess))
	})

	s.Run("exhausted retries do not affect other handlers", func() {
		d := s.newDispatcher(dispatcher.Config{Partitions: 1})
		var healthy atomic.Int32
		boom := errors.New("boom")
		s.Require().NoError(d.Register("broken", dispatcher.All, func(context.Context, events.Envelope) error {
			return boom
		}, dispatcher.WithName("broken"), dispatcher.WithRetry(1, 0)))
		s.Require().NoError(d.Register("healthy", dispatcher.All, func(context.Context, events.Envelope) error {
			healthy.Add(1)
			return nil
		}, dispatcher.WithName("healthy")))

		err := d.Dispatch(s.ctx, s.nodeCreated())
		s.Require().ErrorIs(err, boom)
		s.Equal(int32(1), healthy.Load())
		s.Equal(float64(1), s.handled("broken", "broken", dispatcher.OutcomeFailure))
	})
}

func (s *DispatcherSuite) TestPanicIsRecovered() {
	d := s.newDispatcher(noRetry())
	s.Require().NoError(d.Register("content", dispatcher.All, func(context.Context, events.Envelope) error {
		panic("nil map")
	}, dispatcher.WithName("panicky")))

	err := d.Dispatch(s.ctx, s.nodeCreated())
	var perr *dispatcher.PanicError
	s.Require().ErrorAs(err, &perr)
	s.Equal("nil map", perr.Value)
	s.NotEmpty(perr.Stack)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Panics.WithLabelValues("content", "panicky")))
}

func (s *DispatcherSuite) TestHandlerTimeout() {
	d := s.newDispatcher(noRetry())
	release := make(chan struct{})
	defer close(release)
	s.Require().NoError(d.Register("content", dispatcher.All, func(context.Context, events.Envelope) error {
		<-release
		return nil
	}, dispatcher.WithHandlerTimeout(20*time.Millisecond)))

	start := time.Now()
	err := d.Dispatch(s.ctx, s.nodeCreated())
	s.Require().ErrorIs(err, context.DeadlineExceeded)
	s.Less(time.Since(start), 2*time.Second)
}

func (s *DispatcherSuite) TestOpenBreakerSkipsHandler() {
	breakers := circuit.NewRegistry(circuit.Config{FailureThreshold: 1, Timeout: time.Hour})
	d := s.newDispatcher(noRetry(), dispatcher.WithBreakers(breakers))
	var calls atomic.Int32
	s.Require().NoError(d.Register("search", dispatcher.All, func(context.Context, events.Envelope) error {
		calls.Add(1)
		return errors.New("index unavailable")
	}, dispatcher.WithName("indexer")))

	s.Require().Error(d.Dispatch(s.ctx, s.nodeCreated()))
	s.True(breakers.Get("handler:indexer").IsOpen())

	err := d.Dispatch(s.ctx, s.nodeCreated())
	s.Require().ErrorIs(err, circuit.ErrOpen)
	s.Equal(int32(1), calls.Load())
	s.Equal(float64(1), s.handled("search", "indexer", dispatcher.OutcomeSkipped))
}

func (s *DispatcherSuite) TestFailFastCancelsSiblings() {
	d := s.newDispatcher(dispatcher.Config{FailFast: true, MaxConcurrent: 2, Partitions: 1})
	cancelled := make(chan error, 1)
	s.Require().NoError(d.Register("slow", dispatcher.All, func(ctx context.Context, _ events.Envelope) error {
		<-ctx.Done()
		cancelled <- ctx.Err()
		return ctx.Err()
	}, dispatcher.WithName("slow"), dispatcher.WithRetry(0, 0)))
	s.Require().NoError(d.Register("failing", dispatcher.All, func(context.Context, events.Envelope) error {
		return errors.New("fatal")
	}, dispatcher.WithName("failing"), dispatcher.WithRetry(0, 0)))

	s.Require().Error(d.Dispatch(s.ctx, s.nodeCreated()))
	select {
	case err := <-cancelled:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(2 * time.Second):
		s.Fail("slow handler was not cancelled")
	}
}

func (s *DispatcherSuite) TestFailFastCancellationLeavesSiblingBreakerClosed() {
	breakers := circuit.NewRegistry(circuit.Config{FailureThreshold: 2, Timeout: time.Hour})
	d := s.newDispatcher(dispatcher.Config{FailFast: true, MaxConcurrent: 2, Partitions: 1},
		dispatcher.WithBreakers(breakers))
	s.Require().NoError(d.Register("search", dispatcher.All, func(ctx context.Context, _ events.Envelope) error {
		<-ctx.Done()
		return ctx.Err()
	}, dispatcher.WithName("healthy"), dispatcher.WithRetry(0, 0)))
	s.Require().NoError(d.Register("broken", dispatcher.All, func(context.Context, events.Envelope) error {
		return errors.New("fatal")
	}, dispatcher.WithName("failing"), dispatcher.WithRetry(0, 0)))

	for range 4 {
		s.Require().Error(d.Dispatch(s.ctx, s.nodeCreated()))
	}

	s.True(breakers.Get("handler:failing").IsOpen())
	healthy := breakers.Get("handler:healthy")
	s.False(healthy.IsOpen())
	s.Equal(circuit.StateClosed, healthy.State())
	s.Zero(healthy.Snapshot().FailureCount)
	s.Equal(float64(4), s.handled("search", "healthy", dispatcher.OutcomeCancelled))
	s.Zero(s.handled("search", "healthy", dispatcher.OutcomeFailure))
}

func (s *DispatcherSuite) TestConcurrencyBound() {
	d := s.newDispatcher(dispatcher.Config{MaxConcurrent: 1, Partitions: 1})
	var inFlight, peak atomic.Int32
	handler := func(context.Context, events.Envelope) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}
	for _, name := range []string{"a", "b", "c"} {
		s.Require().NoError(d.Register("content", dispatcher.All, handler, dispatcher.WithName(name)))
	}

	s.Require().NoError(d.Dispatch(s.ctx, s.nodeCreated()))
	s.Equal(int32(1), peak.Load())
}

func (s *DispatcherSuite) TestTenantOrder() {
	d := s.newDispatcher(dispatcher.Config{Partitions: 4, MaxConcurrent: 8})
	var (
		mu   sync.Mutex
		seen []domain.EventID
	)
	s.Require().NoError(d.Register("content", dispatcher.All, func(_ context.Context, env events.Envelope) error {
		mu.Lock()
		seen = append(seen, env.ID())
		mu.Unlock()
		return nil
	}))
	d.Start(s.ctx)

	var want []domain.EventID
	for range 50 {
		env := s.nodeCreated()
		want = append(want, env.ID())
		s.Require().NoError(d.Enqueue(s.ctx, env))
	}

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(want)
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	s.Equal(want, seen)
	mu.Unlock()

	s.cancel()
	d.Wait()
}

func (s *DispatcherSuite) TestBackpressure() {
	d := s.newDispatcher(dispatcher.Config{Partitions: 1, MaxQueueDepth: 1})

	s.Require().NoError(d.Submit(s.nodeCreated()))
	s.ErrorIs(d.Submit(s.nodeCreated()), dispatcher.ErrBackpressure)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Backpressure))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.QueueDepth))

	ctx, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancel()
	s.ErrorIs(d.Enqueue(ctx, s.nodeCreated()), context.DeadlineExceeded)
}

func (s *DispatcherSuite) TestRunFromBus() {
	bus := eventbus.New(eventbus.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	sub := bus.Subscribe()
	d := s.newDispatcher(noRetry())
	var calls atomic.Int32
	s.Require().NoError(d.Register("content", dispatcher.All, func(context.Context, events.Envelope) error {
		calls.Add(1)
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- d.Run(s.ctx, sub) }()

	for range 3 {
		s.Require().NoError(bus.Publish(s.ctx, s.nodeCreated()))
	}
	bus.Close()

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("run did not return after the bus closed")
	}
	s.Eventually(func() bool { return calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
}

func (s *DispatcherSuite) TestDispatchSpans() {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	s.T().Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	d := s.newDispatcher(noRetry(), dispatcher.WithTracerProvider(tp))
	s.Require().NoError(d.Register("content", dispatcher.All, func(context.Context, events.Envelope) error {
		return errors.New("boom")
	}))

	env := s.nodeCreated()
	s.Require().Error(d.Dispatch(s.ctx, env))

	spans := exporter.GetSpans()
	s.Require().Len(spans, 1)
	s.Equal("dispatcher.dispatch", spans[0].Name)
	s.Equal(codes.Error, spans[0].Status.Code)
	s.Contains(spans[0].Attributes, attribute.String("event.type", env.EventType()))
	s.Contains(spans[0].Attributes, attribute.String("tenant.id", s.tenant.String()))
}
