package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"linetrace/internal/audit"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	txcontext "linetrace/pkg/platform/tx"
)

type AuditStoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
	actor domain.UserID
}

func (s *AuditStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = txcontext.WithScope(context.Background())
	s.actor = domain.NewUserID()
}

func TestAuditStoreSuite(t *testing.T) {
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) entry(entityID string, at time.Time) *audit.Entry {
	return &audit.Entry{
		ID:         domain.NewEntryID(),
		ActorID:    s.actor,
		Action:     audit.ActionUpdate,
		EntityType: "ProductionLine",
		EntityID:   entityID,
		Reason:     "testing",
		CreatedAt:  at,
	}
}

func (s *AuditStoreSuite) TestAppendRequiresTransaction() {
	err := s.store.Append(context.Background(), s.entry("line-1", time.Now()))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.Equal(0, s.store.Count())
}

func (s *AuditStoreSuite) TestOrderingAndPagination() {
	base := time.Now()
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Append(s.ctx,
			s.entry("line-1", base.Add(time.Duration(i)*time.Second))))
	}

	all, err := s.store.FindByEntity(s.ctx, "ProductionLine", "line-1", audit.Query{})
	s.Require().NoError(err)
	s.Require().Len(all, 5)
	for i := 1; i < len(all); i++ {
		s.False(all[i].CreatedAt.Before(all[i-1].CreatedAt), "entries must be oldest first")
	}

	page, err := s.store.FindByEntity(s.ctx, "ProductionLine", "line-1",
		audit.Query{Limit: 2, Offset: 2})
	s.Require().NoError(err)
	s.Require().Len(page, 2)
	s.True(page[0].CreatedAt.Equal(base.Add(2 * time.Second)))
}

func (s *AuditStoreSuite) TestFilters() {
	other := domain.NewUserID()
	first := s.entry("line-1", time.Now())
	second := s.entry("line-2", time.Now())
	second.ActorID = other
	second.EntityType = "Process"
	s.Require().NoError(s.store.Append(s.ctx, first))
	s.Require().NoError(s.store.Append(s.ctx, second))

	mine, err := s.store.FindByEntity(s.ctx, "ProductionLine", "line-1",
		audit.Query{ActorID: s.actor})
	s.Require().NoError(err)
	s.Len(mine, 1)

	none, err := s.store.FindByEntity(s.ctx, "ProductionLine", "line-1",
		audit.Query{ActorID: other})
	s.Require().NoError(err)
	s.Empty(none)

	byActor, err := s.store.FindByActor(s.ctx, other, audit.Query{EntityType: "Process"})
	s.Require().NoError(err)
	s.Require().Len(byActor, 1)
	s.Equal("line-2", byActor[0].EntityID)
}

func (s *AuditStoreSuite) TestSnapshotRestore() {
	s.Require().NoError(s.store.Append(s.ctx, s.entry("line-1", time.Now())))
	snapshot := s.store.Snapshot()

	s.Require().NoError(s.store.Append(s.ctx, s.entry("line-1", time.Now())))
	s.Equal(2, s.store.Count())

	s.store.Restore(snapshot)
	s.Equal(1, s.store.Count())
}
