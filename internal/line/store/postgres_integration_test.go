//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"linetrace/internal/line/models"
	"linetrace/internal/line/store"
	"linetrace/internal/uow"
	"linetrace/pkg/domain"
	"linetrace/pkg/platform/sentinel"
	"linetrace/pkg/testutil/containers"
)

type LinePostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	manager  *uow.Postgres
}

func TestLinePostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(LinePostgresSuite))
}

func (s *LinePostgresSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.manager = uow.NewPostgres(s.postgres.DB)
}

func (s *LinePostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(),
		"processes", "production_lines"))
}

func (s *LinePostgresSuite) newLine(name string) *models.Line {
	line, err := models.New(domain.NewLineID(), name, "", domain.NewUserID(), time.Now().UTC())
	s.Require().NoError(err)
	return line
}

func (s *LinePostgresSuite) TestCreateAndRoundTrip() {
	ctx := context.Background()
	line := s.newLine("Filling Line")

	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.Create(ctx, line)
	})
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, line.ID)
	s.Require().NoError(err)
	s.Equal(line.Name, found.Name)
	s.Equal(line.CreatedBy, found.CreatedBy)
	s.True(found.IsActive)
}

func (s *LinePostgresSuite) TestUniqueNameIsCaseInsensitive() {
	ctx := context.Background()

	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.Create(ctx, s.newLine("Granulation"))
	})
	s.Require().NoError(err)

	err = s.manager.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.Create(ctx, s.newLine("GRANULATION"))
	})
	s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
}

// TestConcurrentCreateRace drives the commit-time uniqueness guard: many
// transactions insert the same name in parallel and the database index,
// not an application check, decides the single winner.
func (s *LinePostgresSuite) TestConcurrentCreateRace() {
	ctx := context.Background()
	const attempts = 10

	var winners, losers atomic.Int32
	var group errgroup.Group
	for i := 0; i < attempts; i++ {
		group.Go(func() error {
			err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
				return s.store.Create(ctx, s.newLine("Contested Line"))
			})
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				losers.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(group.Wait())
	s.Equal(int32(1), winners.Load())
	s.Equal(int32(attempts-1), losers.Load())
}

func (s *LinePostgresSuite) TestUpdateMissingRow() {
	ctx := context.Background()
	line := s.newLine("Ghost")

	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.Update(ctx, line)
	})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
