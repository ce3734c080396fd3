package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"linetrace/internal/line/models"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/platform/sentinel"
	txcontext "linetrace/pkg/platform/tx"
)

type LineStoreSuite struct {
	suite.Suite
	store *Memory
	ctx   context.Context
}

func (s *LineStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = txcontext.WithScope(context.Background())
}

func (s *LineStoreSuite) SetupSubTest() {
	s.SetupTest()
}

func TestLineStoreSuite(t *testing.T) {
	suite.Run(t, new(LineStoreSuite))
}

func (s *LineStoreSuite) newLine(name string) *models.Line {
	line, err := models.New(domain.NewLineID(), name, "", domain.NewUserID(), time.Now())
	s.Require().NoError(err)
	return line
}

func (s *LineStoreSuite) TestCreationAndLookups() {
	s.Run("creates and finds line by ID", func() {
		line := s.newLine("Filling Line 1")
		s.Require().NoError(s.store.Create(s.ctx, line))

		found, err := s.store.FindByID(s.ctx, line.ID)
		s.Require().NoError(err)
		s.Equal(line.Name, found.Name)
		s.True(found.IsActive)
	})

	s.Run("returns ErrNotFound for unknown ID", func() {
		_, err := s.store.FindByID(s.ctx, domain.NewLineID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned line is a copy", func() {
		line := s.newLine("Packaging Line")
		s.Require().NoError(s.store.Create(s.ctx, line))

		found, err := s.store.FindByID(s.ctx, line.ID)
		s.Require().NoError(err)
		found.Name = "mutated"

		again, err := s.store.FindByID(s.ctx, line.ID)
		s.Require().NoError(err)
		s.Equal("Packaging Line", again.Name)
	})
}

func (s *LineStoreSuite) TestNameUniqueness() {
	s.Run("rejects duplicate name", func() {
		s.Require().NoError(s.store.Create(s.ctx, s.newLine("Granulation")))

		err := s.store.Create(s.ctx, s.newLine("Granulation"))
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("uniqueness is case-insensitive", func() {
		s.Require().NoError(s.store.Create(s.ctx, s.newLine("Blister Pack")))

		err := s.store.Create(s.ctx, s.newLine("BLISTER PACK"))
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("update cannot steal another line's name", func() {
		first := s.newLine("Line A")
		second := s.newLine("Line B")
		s.Require().NoError(s.store.Create(s.ctx, first))
		s.Require().NoError(s.store.Create(s.ctx, second))

		second.Name = "line a"
		s.Require().ErrorIs(s.store.Update(s.ctx, second), sentinel.ErrAlreadyUsed)
	})
}

func (s *LineStoreSuite) TestTransactionScope() {
	s.Run("rejects create outside transaction", func() {
		err := s.store.Create(context.Background(), s.newLine("Unscoped"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("rejects update outside transaction", func() {
		line := s.newLine("Scoped")
		s.Require().NoError(s.store.Create(s.ctx, line))

		err := s.store.Update(context.Background(), line)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *LineStoreSuite) TestList() {
	s.Run("orders by name and filters inactive", func() {
		active := s.newLine("Alpha")
		inactive := s.newLine("Beta")
		inactive.IsActive = false
		s.Require().NoError(s.store.Create(s.ctx, active))
		s.Require().NoError(s.store.Create(s.ctx, inactive))

		visible, err := s.store.List(s.ctx, false, 50, 0)
		s.Require().NoError(err)
		s.Require().Len(visible, 1)
		s.Equal("Alpha", visible[0].Name)

		all, err := s.store.List(s.ctx, true, 50, 0)
		s.Require().NoError(err)
		s.Require().Len(all, 2)
		s.Equal("Alpha", all[0].Name)
		s.Equal("Beta", all[1].Name)
	})

	s.Run("applies limit and offset", func() {
		for _, name := range []string{"L1", "L2", "L3"} {
			s.Require().NoError(s.store.Create(s.ctx, s.newLine(name)))
		}
		page, err := s.store.List(s.ctx, true, 1, 1)
		s.Require().NoError(err)
		s.Require().Len(page, 1)
		s.Equal("L2", page[0].Name)
	})
}

func (s *LineStoreSuite) TestSnapshotRestore() {
	line := s.newLine("Rollback Target")
	s.Require().NoError(s.store.Create(s.ctx, line))

	snapshot := s.store.Snapshot()
	s.Require().NoError(s.store.Create(s.ctx, s.newLine("Aborted")))

	s.store.Restore(snapshot)

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
	_, err = s.store.FindByID(s.ctx, line.ID)
	s.Require().NoError(err)
}
