package sqlite_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/internal/outbox"
	"github.com/AI-Fresh-Docs/RusTokio/internal/outbox/store/sqlite"
	"github.com/AI-Fresh-Docs/RusTokio/internal/projection"
	projectionmemory "github.com/AI-Fresh-Docs/RusTokio/internal/projection/store/memory"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/sentinel"
)

// publishFunc adapts a function to outbox.Publisher.
type publishFunc func(ctx context.Context, env events.Envelope) error

func (f publishFunc) Publish(ctx context.Context, env events.Envelope) error { return f(ctx, env) }

// recorder is a transport that remembers every attempted hand-off.
type recorder struct {
	mu       sync.Mutex
	attempts []events.Envelope
	failWith error
}

func (r *recorder) Publish(_ context.Context, env events.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, env)
	return r.failWith
}

func (r *recorder) ids() []domain.EventID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventID, 0, len(r.attempts))
	for _, env := range r.attempts {
		out = append(out, env.ID())
	}
	return out
}

type StoreSuite struct {
	suite.Suite
	store  *sqlite.Store
	writer *outbox.Writer
	ctx    context.Context
	tenant domain.TenantID
	now    time.Time
	logger *slog.Logger
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	store, err := sqlite.Open(filepath.Join(s.T().TempDir(), "outbox.db"))
	s.Require().NoError(err)
	s.store = store
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.writer = outbox.NewWriter(store, outbox.WithWriterLogger(s.logger))
	s.ctx = context.Background()
	s.tenant = domain.TenantID(uuid.New())
	// The relay clock runs ahead of the writer so freshly staged records are due.
	s.now = time.Now().UTC().Add(time.Minute)

	_, err = store.DB().Exec(`CREATE TABLE nodes (id TEXT PRIMARY KEY, kind TEXT NOT NULL)`)
	s.Require().NoError(err)
}

func (s *StoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *StoreSuite) clock() time.Time { return s.now }

func (s *StoreSuite) newRelay(pub outbox.Publisher, opts ...outbox.RelayOption) *outbox.Relay {
	base := []outbox.RelayOption{
		outbox.WithLogger(s.logger),
		outbox.WithClock(s.clock),
		outbox.WithJitter(func(time.Duration) time.Duration { return 0 }),
		outbox.WithConfig(outbox.Config{
			BatchSize:   50,
			MaxAttempts: 3,
			BackoffBase: time.Second,
			BackoffMax:  time.Minute,
		}),
	}
	relay, err := outbox.NewRelay(s.store, pub, append(base, opts...)...)
	s.Require().NoError(err)
	return relay
}

// createNode writes a domain row and its event in one transaction.
func (s *StoreSuite) createNode(tenant domain.TenantID, commit bool) domain.EventID {
	nodeID := uuid.New()
	tx, err := s.store.DB().BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(s.ctx, `INSERT INTO nodes (id, kind) VALUES (?, ?)`, nodeID.String(), "post")
	s.Require().NoError(err)
	id, err := s.writer.PublishInTx(s.ctx, tx, tenant, nil, events.NodeCreated{NodeID: nodeID, Kind: "post"})
	s.Require().NoError(err)

	if commit {
		s.Require().NoError(tx.Commit())
	} else {
		s.Require().NoError(tx.Rollback())
	}
	return id
}

func (s *StoreSuite) TestRolledBackTransactionLeavesNothingBehind() {
	id := s.createNode(s.tenant, false)
	pub := &recorder{}
	relay := s.newRelay(pub)

	for range 3 {
		_, err := relay.RunOnce(s.ctx)
		s.Require().NoError(err)
	}

	_, err := s.store.Get(s.ctx, id)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Empty(pub.ids())

	var nodes int
	s.Require().NoError(s.store.DB().QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&nodes))
	s.Zero(nodes)
}

func (s *StoreSuite) TestCommittedTransactionIsDelivered() {
	id := s.createNode(s.tenant, true)
	pub := &recorder{}
	relay := s.newRelay(pub)

	res, err := relay.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Delivered)
	s.Equal([]domain.EventID{id}, pub.ids())

	rec, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(outbox.StatusDelivered, rec.Status)
	s.Require().NotNil(rec.DeliveredAt)

	res, err = relay.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Zero(res.Claimed, "delivered records are not claimed again")
}

func (s *StoreSuite) TestKillAndRestartDeliversOnceToIdempotentConsumer() {
	id := s.createNode(s.tenant, true)

	var mu sync.Mutex
	applied := map[domain.EventID]int{}
	consumer := projection.Idempotent("node-index", projectionmemory.New(),
		func(_ context.Context, env events.Envelope) error {
			mu.Lock()
			defer mu.Unlock()
			applied[env.ID()]++
			return nil
		})

	// The first relay hands the envelope over and dies before it can record
	// the delivery.
	killCtx, kill := context.WithCancel(s.ctx)
	attempts := 0
	first := s.newRelay(publishFunc(func(ctx context.Context, env events.Envelope) error {
		attempts++
		err := consumer(ctx, env)
		kill()
		return err
	}))
	_, err := first.RunOnce(killCtx)
	s.Require().Error(err)

	rec, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(outbox.StatusPending, rec.Status, "uncommitted delivery leaves the record pending")

	second := s.newRelay(publishFunc(func(ctx context.Context, env events.Envelope) error {
		attempts++
		return consumer(ctx, env)
	}))
	res, err := second.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Delivered)

	s.Equal(2, attempts, "transport saw the envelope twice")
	s.Equal(1, applied[id], "consumer applied it once")

	rec, err = s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(outbox.StatusDelivered, rec.Status)
}

func (s *StoreSuite) TestFailuresBackOffThenDeadLetter() {
	id := s.createNode(s.tenant, true)
	pub := &recorder{failWith: errors.New("broker down")}

	var dead []outbox.Record
	relay := s.newRelay(pub, outbox.WithDeadLetter(func(_ context.Context, rec outbox.Record, _ error) {
		dead = append(dead, rec)
	}))

	res, err := relay.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Rescheduled)

	rec, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(outbox.StatusPending, rec.Status)
	s.Equal(1, rec.AttemptCount)
	s.Require().NotNil(rec.LastError)
	s.Equal("broker down", *rec.LastError)
	s.Equal(s.now.Add(time.Second).UnixMicro(), rec.AvailableAt.UnixMicro())

	res, err = relay.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Zero(res.Claimed, "record is not due during backoff")

	s.now = s.now.Add(time.Second)
	res, err = relay.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Rescheduled)

	rec, err = s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(s.now.Add(2*time.Second).UnixMicro(), rec.AvailableAt.UnixMicro(), "delay doubles")

	s.now = s.now.Add(2 * time.Second)
	res, err = relay.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Failed)
	s.Require().Len(dead, 1)
	s.Equal(id, dead[0].ID)

	stats, err := relay.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(outbox.Stats{Failed: 1}, stats)

	failed, err := relay.ListFailed(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(failed, 1)
	s.Equal(3, failed[0].AttemptCount)
}

func (s *StoreSuite) TestTenantOrderSurvivesFailures() {
	first := s.createNode(s.tenant, true)
	second := s.createNode(s.tenant, true)
	other := domain.TenantID(uuid.New())
	otherID := s.createNode(other, true)

	failing := first
	pub := &recorder{}
	relay := s.newRelay(publishFunc(func(ctx context.Context, env events.Envelope) error {
		if env.ID() == failing {
			return errors.New("transient")
		}
		return pub.Publish(ctx, env)
	}))

	res, err := relay.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, res.Claimed)
	s.Equal(1, res.Rescheduled)
	s.Equal(1, res.Skipped)
	s.Equal([]domain.EventID{otherID}, pub.ids(), "other tenants are unaffected")

	res, err = relay.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Zero(res.Claimed, "later records wait behind the backing-off head")

	failing = domain.EventID{}
	s.now = s.now.Add(time.Second)
	res, err = relay.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, res.Delivered)
	s.Equal([]domain.EventID{otherID, first, second}, pub.ids())
}

func (s *StoreSuite) TestRequeueAndPrune() {
	id := s.createNode(s.tenant, true)
	pub := &recorder{failWith: errors.New("nope")}
	relay := s.newRelay(pub, outbox.WithConfig(outbox.Config{MaxAttempts: 1, BatchSize: 10}))

	res, err := relay.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Failed)

	s.Require().NoError(relay.Requeue(s.ctx, id))
	s.ErrorIs(relay.Requeue(s.ctx, id), sentinel.ErrNotFound, "only failed records can be requeued")

	rec, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(outbox.StatusPending, rec.Status)
	s.Zero(rec.AttemptCount)

	pub.failWith = nil
	res, err = relay.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Delivered)

	n, err := relay.Prune(s.ctx, time.Hour)
	s.Require().NoError(err)
	s.Zero(n, "recent deliveries are kept")

	s.now = s.now.Add(2 * time.Hour)
	n, err = relay.Prune(s.ctx, time.Hour)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *StoreSuite) TestPublishRequiresTransaction() {
	_, err := s.writer.Publish(s.ctx, s.tenant, nil, events.ModuleEnabled{ModuleSlug: "blog"})
	s.ErrorIs(err, sentinel.ErrNoTransaction)
}
