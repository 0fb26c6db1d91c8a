package circuit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTarget = errors.New("target failed")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fail(context.Context) error    { return errTarget }
func succeed(context.Context) error { return nil }

func TestBreaker_InitialState(t *testing.T) {
	b := New("test")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "test", b.Name())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	ctx := context.Background()
	b := New("test", WithFailureThreshold(3))

	// First two failures don't open
	assert.ErrorIs(t, b.Execute(ctx, fail), errTarget)
	assert.ErrorIs(t, b.Execute(ctx, fail), errTarget)
	assert.False(t, b.IsOpen())

	// Third failure opens the circuit
	assert.ErrorIs(t, b.Execute(ctx, fail), errTarget)
	assert.True(t, b.IsOpen())

	snap := b.Snapshot()
	assert.Equal(t, "open", snap.State)
	assert.Zero(t, snap.FailureCount, "counts reset on transition")
	assert.False(t, snap.OpenedAt.IsZero())
}

func TestBreaker_OpenRejectsWithoutCallingTarget(t *testing.T) {
	ctx := context.Background()
	b := New("test", WithFailureThreshold(1), WithTimeout(time.Hour))
	require.ErrorIs(t, b.Execute(ctx, fail), errTarget)

	called := false
	err := b.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	ctx := context.Background()
	b := New("test", WithFailureThreshold(3))

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, succeed))

	// Two more failures don't open (count was reset)
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	assert.False(t, b.IsOpen())

	_ = b.Execute(ctx, fail)
	assert.True(t, b.IsOpen())
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	b := New("test", WithFailureThreshold(1), WithTimeout(10*time.Second), WithClock(clock.Now))

	_ = b.Execute(ctx, fail)
	require.Equal(t, StateOpen, b.State())

	clock.Advance(9 * time.Second)
	assert.Equal(t, StateOpen, b.State())

	clock.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	b := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(2),
		WithTimeout(time.Second),
		WithClock(clock.Now),
	)

	_ = b.Execute(ctx, fail)
	clock.Advance(time.Second)

	// First success doesn't close
	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, b.State())
	assert.Equal(t, 1, b.Snapshot().SuccessCount)

	// Second success closes with reset counters
	require.NoError(t, b.Execute(ctx, succeed))
	snap := b.Snapshot()
	assert.Equal(t, "closed", snap.State)
	assert.Zero(t, snap.SuccessCount)
	assert.Zero(t, snap.FailureCount)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	b := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(3),
		WithTimeout(time.Second),
		WithClock(clock.Now),
	)

	_ = b.Execute(ctx, fail)
	firstOpened := b.Snapshot().OpenedAt
	clock.Advance(time.Second)

	require.NoError(t, b.Execute(ctx, succeed))
	require.NoError(t, b.Execute(ctx, succeed))
	require.ErrorIs(t, b.Execute(ctx, fail), errTarget)

	snap := b.Snapshot()
	assert.Equal(t, "open", snap.State)
	assert.Zero(t, snap.SuccessCount)
	assert.True(t, snap.OpenedAt.After(firstOpened), "opened_at is refreshed")
}

func TestBreaker_HalfOpenBoundsTrialCalls(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	b := New("test",
		WithFailureThreshold(1),
		WithTimeout(time.Second),
		WithHalfOpenMaxCalls(1),
		WithClock(clock.Now),
	)

	_ = b.Execute(ctx, fail)
	clock.Advance(time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	// The single trial slot is taken
	called := false
	err := b.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	close(release)
	require.NoError(t, <-done)
}

func TestBreaker_NeutralOutcomesAreNotCounted(t *testing.T) {
	ctx := context.Background()
	abandoned := func(context.Context) error { return Neutral(context.Canceled) }

	t.Run("closed breaker keeps its failure count", func(t *testing.T) {
		b := New("test", WithFailureThreshold(2))
		assert.ErrorIs(t, b.Execute(ctx, fail), errTarget)
		for range 5 {
			err := b.Execute(ctx, abandoned)
			assert.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, context.Canceled, err)
		}
		assert.Equal(t, StateClosed, b.State())
		assert.Equal(t, 1, b.Snapshot().FailureCount)
	})

	t.Run("half-open trial slot is given back", func(t *testing.T) {
		clock := newFakeClock()
		b := New("test",
			WithFailureThreshold(1),
			WithSuccessThreshold(1),
			WithTimeout(time.Second),
			WithHalfOpenMaxCalls(1),
			WithClock(clock.Now),
		)
		_ = b.Execute(ctx, fail)
		clock.Advance(time.Second)

		assert.ErrorIs(t, b.Execute(ctx, abandoned), context.Canceled)
		assert.Equal(t, StateHalfOpen, b.State())

		require.NoError(t, b.Execute(ctx, succeed))
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Neutral(nil))
	})
}

func TestBreaker_PanicCountsAsFailure(t *testing.T) {
	b := New("test", WithFailureThreshold(1))

	assert.Panics(t, func() {
		_ = b.Execute(context.Background(), func(context.Context) error {
			panic("handler exploded")
		})
	})
	assert.True(t, b.IsOpen())
}

func TestBreaker_ReportsTransitions(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	type change struct{ from, to State }
	var changes []change
	b := New("reporting",
		WithFailureThreshold(1),
		WithSuccessThreshold(1),
		WithTimeout(time.Second),
		WithClock(clock.Now),
		WithOnStateChange(func(name string, from, to State) {
			assert.Equal(t, "reporting", name)
			changes = append(changes, change{from, to})
		}),
	)

	_ = b.Execute(ctx, fail)
	clock.Advance(time.Second)
	_ = b.Execute(ctx, succeed)

	assert.Equal(t, []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, changes)
}

func TestRegistry_OneBreakerPerName(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 2})
	r.Configure("relay.transport", Config{FailureThreshold: 1})

	a := r.Get("handler.search")
	assert.Same(t, a, r.Get("handler.search"))

	_ = r.Get("relay.transport").Execute(context.Background(), fail)
	_ = a.Execute(context.Background(), fail)

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "handler.search", snaps[0].Name)
	assert.Equal(t, "closed", snaps[0].State)
	assert.Equal(t, "relay.transport", snaps[1].Name)
	assert.Equal(t, "open", snaps[1].State)
}
