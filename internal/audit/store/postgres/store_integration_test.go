//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	"linetrace/internal/audit"
	auditpg "linetrace/internal/audit/store/postgres"
	"linetrace/internal/uow"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/testutil/containers"
)

type AuditPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpg.Store
	manager  *uow.Postgres
	actor    domain.UserID
}

func TestAuditPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditPostgresSuite))
}

func (s *AuditPostgresSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = auditpg.New(s.postgres.DB)
	s.manager = uow.NewPostgres(s.postgres.DB)
}

func (s *AuditPostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(),
		"audit_outbox", "audit_entries"))
	s.actor = domain.NewUserID()
}

func (s *AuditPostgresSuite) entry(entityID string, at time.Time) *audit.Entry {
	return &audit.Entry{
		ID:         domain.NewEntryID(),
		ActorID:    s.actor,
		Action:     audit.ActionCreate,
		EntityType: "ProductionLine",
		EntityID:   entityID,
		Reason:     "integration test",
		Details:    audit.Details{"key": "value"},
		CreatedAt:  at,
	}
}

func (s *AuditPostgresSuite) TestAppendOutsideTransactionIsRefused() {
	err := s.store.Append(context.Background(), s.entry("line-1", time.Now()))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *AuditPostgresSuite) TestAppendCommitsEntryAndOutboxRow() {
	ctx := context.Background()
	entry := s.entry("line-1", time.Now().UTC().Truncate(time.Microsecond))

	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.Append(ctx, entry)
	})
	s.Require().NoError(err)

	entries, err := s.store.FindByEntity(ctx, "ProductionLine", "line-1", audit.Query{})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(entry.ID, entries[0].ID)
	s.Equal("integration test", entries[0].Reason)
	s.Equal("value", entries[0].Details["key"])

	var outboxCount int
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_outbox WHERE entry_id = $1`, entry.ID.String()).Scan(&outboxCount))
	s.Equal(1, outboxCount, "every entry gets an outbox row in the same transaction")
}

func (s *AuditPostgresSuite) TestRolledBackEntryIsInvisible() {
	ctx := context.Background()
	boom := errors.New("forced rollback")

	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Append(ctx, s.entry("line-2", time.Now())); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	entries, err := s.store.FindByEntity(ctx, "ProductionLine", "line-2", audit.Query{})
	s.Require().NoError(err)
	s.Empty(entries)

	var outboxCount int
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_outbox`).Scan(&outboxCount))
	s.Equal(0, outboxCount)
}

func (s *AuditPostgresSuite) TestOrderingAndActorQuery() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		for i := 0; i < 3; i++ {
			if err := s.store.Append(ctx, s.entry("line-3", base.Add(time.Duration(i)*time.Second))); err != nil {
				return err
			}
		}
		return nil
	})
	s.Require().NoError(err)

	entries, err := s.store.FindByActor(ctx, s.actor, audit.Query{})
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	for i := 1; i < len(entries); i++ {
		s.True(entries[i].CreatedAt.After(entries[i-1].CreatedAt), "oldest first")
	}
}
