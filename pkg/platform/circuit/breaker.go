// Package circuit guards calls to unreliable targets with a three-state
// breaker (closed, open, half-open).
//
// One Breaker wraps one logical call target. Its counters are owned by the
// breaker and reset on every transition; callers only observe it through
// Execute, State, and Snapshot.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute without calling the target while the breaker
// is open, or while half-open with every trial slot taken.
var ErrOpen = errors.New("circuit breaker is open")

// Neutral marks err as an outcome that says nothing about the guarded
// target, such as a call abandoned by its caller. Execute returns the wrapped
// error and records neither a success nor a failure.
func Neutral(err error) error {
	if err == nil {
		return nil
	}
	return &neutralError{err: err}
}

type neutralError struct{ err error }

func (e *neutralError) Error() string { return e.err.Error() }
func (e *neutralError) Unwrap() error { return e.err }

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the tunables of a breaker.
type Config struct {
	// FailureThreshold consecutive failures open the breaker. Default: 5
	FailureThreshold int
	// SuccessThreshold consecutive half-open successes close it. Default: 2
	SuccessThreshold int
	// Timeout is how long the breaker stays open before a trial. Default: 30s
	Timeout time.Duration
	// HalfOpenMaxCalls bounds concurrent trial calls. Default: 1
	HalfOpenMaxCalls int
}

// DefaultConfig provides the defaults applied to zero fields.
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	Timeout:          30 * time.Second,
	HalfOpenMaxCalls: 1,
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultConfig.SuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig.Timeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = DefaultConfig.HalfOpenMaxCalls
	}
	return c
}

// StateChangeFunc observes transitions. It runs after the breaker lock is
// released and must not call back into the same breaker synchronously.
type StateChangeFunc func(name string, from, to State)

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	SuccessCount int       `json:"success_count"`
	OpenedAt     time.Time `json:"opened_at,omitzero"`
}

// Breaker is a named circuit breaker.
type Breaker struct {
	name     string
	cfg      Config
	now      func() time.Time
	onChange StateChangeFunc

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	openedAt     time.Time
	inFlight     int    // half-open trials currently running
	generation   uint64 // bumped on every transition; stale results are ignored
}

// Option configures a Breaker.
type Option func(*Breaker)

func WithConfig(cfg Config) Option {
	return func(b *Breaker) {
		b.cfg = cfg
	}
}

func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		b.cfg.FailureThreshold = n
	}
}

func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		b.cfg.SuccessThreshold = n
	}
}

func WithTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		b.cfg.Timeout = d
	}
}

func WithHalfOpenMaxCalls(n int) Option {
	return func(b *Breaker) {
		b.cfg.HalfOpenMaxCalls = n
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

func WithOnStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// New creates a closed breaker.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:  name,
		cfg:   DefaultConfig,
		now:   time.Now,
		state: StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.cfg = b.cfg.withDefaults()
	return b
}

func (b *Breaker) Name() string { return b.name }

// State returns the current state, moving open to half-open once the
// timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	change := b.advanceLocked()
	state := b.state
	b.mu.Unlock()
	b.notify(change)
	return state
}

// IsOpen reports whether calls are currently being rejected outright.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Snapshot returns a copy of the breaker's state and counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	change := b.advanceLocked()
	snap := Snapshot{
		Name:         b.name,
		State:        b.state.String(),
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
		OpenedAt:     b.openedAt,
	}
	b.mu.Unlock()
	b.notify(change)
	return snap
}

// Execute calls fn unless the breaker rejects the call. The outcome of fn is
// recorded against the breaker and returned unchanged.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	gen, err := b.acquire()
	if err != nil {
		return err
	}

	callErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				b.release(gen, false)
				panic(r)
			}
		}()
		return fn(ctx)
	}()

	var neutral *neutralError
	if errors.As(callErr, &neutral) {
		b.releaseNeutral(gen)
		return neutral.err
	}
	b.release(gen, callErr == nil)
	return callErr
}

type transition struct {
	from, to State
	changed  bool
}

func (b *Breaker) acquire() (uint64, error) {
	b.mu.Lock()
	change := b.advanceLocked()
	var err error
	switch b.state {
	case StateOpen:
		err = ErrOpen
	case StateHalfOpen:
		if b.inFlight >= b.cfg.HalfOpenMaxCalls {
			err = ErrOpen
		} else {
			b.inFlight++
		}
	}
	gen := b.generation
	b.mu.Unlock()
	b.notify(change)
	return gen, err
}

func (b *Breaker) release(gen uint64, success bool) {
	b.mu.Lock()
	if gen != b.generation {
		// The breaker moved on while this call ran.
		b.mu.Unlock()
		return
	}
	var change transition
	if b.state == StateHalfOpen && b.inFlight > 0 {
		b.inFlight--
	}
	if success {
		change = b.onSuccessLocked()
	} else {
		change = b.onFailureLocked()
	}
	b.mu.Unlock()
	b.notify(change)
}

// releaseNeutral frees a half-open trial slot without counting the call.
func (b *Breaker) releaseNeutral(gen uint64) {
	b.mu.Lock()
	if gen == b.generation && b.state == StateHalfOpen && b.inFlight > 0 {
		b.inFlight--
	}
	b.mu.Unlock()
}

func (b *Breaker) onSuccessLocked() transition {
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			return b.setStateLocked(StateClosed)
		}
	}
	return transition{}
}

func (b *Breaker) onFailureLocked() transition {
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			return b.setStateLocked(StateOpen)
		}
	case StateHalfOpen:
		return b.setStateLocked(StateOpen)
	}
	return transition{}
}

// advanceLocked performs the time-driven open -> half-open transition.
func (b *Breaker) advanceLocked() transition {
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.cfg.Timeout)) {
		return b.setStateLocked(StateHalfOpen)
	}
	return transition{}
}

func (b *Breaker) setStateLocked(to State) transition {
	from := b.state
	b.state = to
	b.failureCount = 0
	b.successCount = 0
	b.inFlight = 0
	b.generation++
	if to == StateOpen {
		b.openedAt = b.now()
	}
	return transition{from: from, to: to, changed: from != to}
}

func (b *Breaker) notify(t transition) {
	if t.changed && b.onChange != nil {
		b.onChange(b.name, t.from, t.to)
	}
}
