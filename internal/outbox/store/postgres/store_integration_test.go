//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/internal/outbox"
	"github.com/AI-Fresh-Docs/RusTokio/internal/outbox/store/postgres"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/sentinel"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/tx"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/testutil/containers"
)

type publishFunc func(ctx context.Context, env events.Envelope) error

func (f publishFunc) Publish(ctx context.Context, env events.Envelope) error { return f(ctx, env) }

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	writer   *outbox.Writer
	runner   *tx.Runner
	logger   *slog.Logger
	tenant   domain.TenantID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.writer = outbox.NewWriter(s.store, outbox.WithWriterLogger(s.logger))
	s.runner = tx.NewRunner(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox_events"))
	s.tenant = domain.TenantID(uuid.New())
}

func (s *PostgresStoreSuite) stage(n int) []domain.EventID {
	ids := make([]domain.EventID, 0, n)
	err := s.runner.RunInTx(context.Background(), func(ctx context.Context) error {
		for range n {
			id, err := s.writer.Publish(ctx, s.tenant, nil, events.NodeCreated{NodeID: uuid.New(), Kind: "post"})
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	s.Require().NoError(err)
	return ids
}

func (s *PostgresStoreSuite) relay(pub outbox.Publisher, cfg outbox.Config) *outbox.Relay {
	r, err := outbox.NewRelay(s.store, pub,
		outbox.WithLogger(s.logger),
		outbox.WithConfig(cfg),
		outbox.WithClock(func() time.Time { return time.Now().Add(time.Minute) }),
		outbox.WithJitter(func(time.Duration) time.Duration { return 0 }),
	)
	s.Require().NoError(err)
	return r
}

func (s *PostgresStoreSuite) TestRollbackLeavesNoRecord() {
	boom := errors.New("business write failed")
	err := s.runner.RunInTx(context.Background(), func(ctx context.Context) error {
		if _, err := s.writer.Publish(ctx, s.tenant, nil, events.NodeCreated{NodeID: uuid.New(), Kind: "post"}); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	stats, err := s.store.Stats(context.Background())
	s.Require().NoError(err)
	s.Equal(outbox.Stats{}, stats)
}

func (s *PostgresStoreSuite) TestDeliverInOrder() {
	ids := s.stage(5)
	var (
		mu  sync.Mutex
		got []domain.EventID
	)
	r := s.relay(publishFunc(func(_ context.Context, env events.Envelope) error {
		mu.Lock()
		got = append(got, env.ID())
		mu.Unlock()
		return nil
	}), outbox.Config{BatchSize: 10})

	res, err := r.RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(5, res.Delivered)
	s.Equal(ids, got)

	stats, err := s.store.Stats(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(5), stats.Delivered)
}

// Two relays claiming at once never hand off the same record twice.
func (s *PostgresStoreSuite) TestConcurrentRelaysDoNotDoubleDeliver() {
	for range 4 {
		s.tenant = domain.TenantID(uuid.New())
		s.stage(10)
	}
	var (
		mu   sync.Mutex
		seen = map[domain.EventID]int{}
	)
	pub := publishFunc(func(_ context.Context, env events.Envelope) error {
		mu.Lock()
		seen[env.ID()]++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for range 3 {
		r := s.relay(pub, outbox.Config{BatchSize: 7})
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if _, err := r.RunOnce(context.Background()); err != nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	s.Len(seen, 40)
	for id, n := range seen {
		s.Equal(1, n, "record %s delivered %d times", id, n)
	}
}

func (s *PostgresStoreSuite) TestFailedThenRequeued() {
	ids := s.stage(1)
	r := s.relay(publishFunc(func(context.Context, events.Envelope) error {
		return errors.New("broker down")
	}), outbox.Config{BatchSize: 10, MaxAttempts: 1})

	res, err := r.RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, res.Failed)

	failed, err := s.store.ListFailed(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().Len(failed, 1)
	s.Equal(ids[0], failed[0].ID)
	s.Equal(1, failed[0].AttemptCount)
	s.Require().NotNil(failed[0].LastError)
	s.Contains(*failed[0].LastError, "broker down")

	s.Require().NoError(s.store.Requeue(context.Background(), ids[0], time.Now()))
	s.ErrorIs(s.store.Requeue(context.Background(), ids[0], time.Now()), sentinel.ErrNotFound)

	stats, err := s.store.Stats(context.Background())
	s.Require().NoError(err)
	s.Equal(outbox.Stats{Pending: 1}, stats)
}

func (s *PostgresStoreSuite) TestPrune() {
	s.stage(2)
	r := s.relay(publishFunc(func(context.Context, events.Envelope) error { return nil }), outbox.Config{BatchSize: 10})
	_, err := r.RunOnce(context.Background())
	s.Require().NoError(err)

	n, err := s.store.Prune(context.Background(), time.Now().Add(2*time.Minute))
	s.Require().NoError(err)
	s.Equal(int64(2), n)
}
