package outbox_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/internal/outbox"
	"github.com/AI-Fresh-Docs/RusTokio/internal/outbox/mocks"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	dErrors "github.com/AI-Fresh-Docs/RusTokio/pkg/domain-errors"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/sentinel"
)

// fakeExec records statements without a database.
type fakeExec struct{}

func (fakeExec) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, nil
}

type countingWaker struct{ n int }

func (w *countingWaker) Wake() { w.n++ }

type WriterSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	store  *mocks.MockInserter
	waker  *countingWaker
	writer *outbox.Writer
	tenant domain.TenantID
	ctx    context.Context
}

func TestWriterSuite(t *testing.T) {
	suite.Run(t, new(WriterSuite))
}

func (s *WriterSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockInserter(s.ctrl)
	s.waker = &countingWaker{}
	s.writer = outbox.NewWriter(s.store,
		outbox.WithWriterLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		outbox.WithWaker(s.waker),
	)
	s.tenant = domain.TenantID(uuid.New())
	s.ctx = context.Background()
}

func (s *WriterSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *WriterSuite) TestPublishInTx() {
	s.Run("stages a pending record through the caller's transaction", func() {
		actor := domain.ActorID(uuid.New())
		var staged outbox.Record
		s.store.EXPECT().Insert(gomock.Any(), fakeExec{}, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ any, rec outbox.Record) error {
				staged = rec
				return nil
			})

		id, err := s.writer.PublishInTx(s.ctx, fakeExec{}, s.tenant, &actor, events.ModuleEnabled{ModuleSlug: "blog"})
		s.Require().NoError(err)
		s.Equal(id, staged.ID)
		s.Equal(s.tenant, staged.TenantID)
		s.Equal(events.TypeModuleEnabled, staged.EventType)
		s.Equal(outbox.StatusPending, staged.Status)
		s.Zero(staged.AttemptCount)
		s.Equal(staged.CreatedAt, staged.AvailableAt)

		env, err := staged.Envelope()
		s.Require().NoError(err)
		s.Equal(id, env.ID())
		got, ok := env.ActorID()
		s.True(ok)
		s.Equal(actor, got)
		s.Equal(1, s.waker.n)
	})

	s.Run("invalid events are never staged", func() {
		_, err := s.writer.PublishInTx(s.ctx, fakeExec{}, s.tenant, nil, events.ModuleEnabled{ModuleSlug: "Bad Slug"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("requires a transaction", func() {
		_, err := s.writer.PublishInTx(s.ctx, nil, s.tenant, nil, events.ModuleEnabled{ModuleSlug: "blog"})
		s.ErrorIs(err, sentinel.ErrNoTransaction)
	})

	s.Run("insert errors surface as internal errors", func() {
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
		_, err := s.writer.PublishInTx(s.ctx, fakeExec{}, s.tenant, nil, events.ModuleDisabled{ModuleSlug: "blog"})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *WriterSuite) TestPublishWithoutContextTransaction() {
	_, err := s.writer.Publish(s.ctx, s.tenant, nil, events.ModuleEnabled{ModuleSlug: "blog"})
	s.ErrorIs(err, sentinel.ErrNoTransaction)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, time.Minute},
		{200, time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outbox.Backoff(tt.attempt, time.Second, time.Minute), "attempt %d", tt.attempt)
	}
	assert.Zero(t, outbox.Backoff(3, 0, time.Minute))
}

func TestStatus(t *testing.T) {
	assert.True(t, outbox.StatusPending.IsValid())
	assert.True(t, outbox.StatusFailed.IsValid())
	assert.False(t, outbox.Status("leased").IsValid())
}
