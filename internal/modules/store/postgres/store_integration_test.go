//go:build integration

package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/internal/modules"
	modulespg "github.com/AI-Fresh-Docs/RusTokio/internal/modules/store/postgres"
	"github.com/AI-Fresh-Docs/RusTokio/internal/outbox"
	outboxpg "github.com/AI-Fresh-Docs/RusTokio/internal/outbox/store/postgres"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *modulespg.Store
	outbox   *outboxpg.Store
	service  *modules.Service
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
	s.store = modulespg.New(s.postgres.DB)
	s.outbox = outboxpg.New(s.postgres.DB)

	registry, err := modules.NewRegistry(
		modules.Descriptor{Slug: "content", Kind: modules.KindCore},
		modules.Descriptor{Slug: "forum", Kind: modules.KindOptional, Dependencies: []string{"content"}},
		modules.Descriptor{Slug: "gallery", Kind: modules.KindOptional, Dependencies: []string{"forum"}},
	)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = modules.New(registry, s.store, modulespg.NewTx(s.postgres.DB),
		outbox.NewWriter(s.outbox, outbox.WithWriterLogger(logger)),
		modules.WithLogger(logger),
	)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "tenant_modules", "outbox_events"))
	s.tenant = domain.TenantID(uuid.New())
}

func (s *PostgresStoreSuite) pendingEvents() []events.Envelope {
	batch, err := s.outbox.Claim(context.Background(), time.Now().Add(time.Minute), 100)
	s.Require().NoError(err)
	defer func() { s.Require().NoError(batch.Rollback()) }()

	var out []events.Envelope
	for _, rec := range batch.Records() {
		env, err := rec.Envelope()
		s.Require().NoError(err)
		out = append(out, env)
	}
	return out
}

func (s *PostgresStoreSuite) TestUpsert() {
	ctx := context.Background()
	at := time.Now()
	s.Require().NoError(s.store.SetEnabled(ctx, s.tenant, "forum", true, at))
	s.Require().NoError(s.store.SetEnabled(ctx, s.tenant, "gallery", true, at))
	s.Require().NoError(s.store.SetEnabled(ctx, s.tenant, "forum", false, at))

	states, err := s.store.States(ctx, s.tenant)
	s.Require().NoError(err)
	s.Equal(map[string]bool{"forum": false, "gallery": true}, states)

	other, err := s.store.States(ctx, domain.TenantID(uuid.New()))
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *PostgresStoreSuite) TestToggleStagesEventInSameTransaction() {
	ctx := context.Background()
	s.Require().NoError(s.service.ToggleModule(ctx, s.tenant, "forum", true))

	on, err := s.service.IsEnabled(ctx, s.tenant, "forum")
	s.Require().NoError(err)
	s.True(on)

	pending := s.pendingEvents()
	s.Require().Len(pending, 1)
	s.Equal(s.tenant, pending[0].TenantID())
	s.Equal(events.ModuleEnabled{ModuleSlug: "forum"}, pending[0].Event())
}

func (s *PostgresStoreSuite) TestRefusedToggleWritesNothing() {
	ctx := context.Background()
	err := s.service.ToggleModule(ctx, s.tenant, "gallery", true)
	s.True(modules.IsToggleError(err, modules.MissingDependency))

	states, err := s.store.States(ctx, s.tenant)
	s.Require().NoError(err)
	s.Empty(states)
	s.Empty(s.pendingEvents())
}
