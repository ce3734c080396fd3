package outbox_test

//go:generate mockgen -destination=mocks/mocks.go -package=mocks linetrace/internal/audit/outbox Store,Publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"linetrace/internal/audit/outbox"
	"linetrace/internal/audit/outbox/mocks"
)

type RelaySuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *mocks.MockStore
	publisher *mocks.MockPublisher
	relay     *outbox.Relay
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.relay = outbox.NewRelay(s.store, s.publisher, outbox.WithBatchSize(10))
}

func row(entityType string) outbox.Row {
	return outbox.Row{
		ID:         uuid.New(),
		EntryID:    uuid.New(),
		EntityType: entityType,
		Payload:    []byte(`{"action":"CREATE"}`),
		CreatedAt:  time.Now().UTC(),
	}
}

func (s *RelaySuite) TestDrainPublishesAndSettles() {
	ctx := context.Background()
	first := row("ProductionLine")
	second := row("Process")

	s.store.EXPECT().FetchUnpublished(gomock.Any(), 10).Return([]outbox.Row{first, second}, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), "ProductionLine", first.Payload).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), "Process", second.Payload).Return(nil)
	s.store.EXPECT().MarkPublished(gomock.Any(), []uuid.UUID{first.ID, second.ID}).Return(nil)

	s.Require().NoError(s.relay.Drain(ctx))
}

func (s *RelaySuite) TestDrainStopsAtFirstPublishFailure() {
	ctx := context.Background()
	first := row("ProductionLine")
	second := row("Process")

	s.store.EXPECT().FetchUnpublished(gomock.Any(), 10).Return([]outbox.Row{first, second}, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), "ProductionLine", first.Payload).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), "Process", second.Payload).Return(errors.New("broker down"))
	s.store.EXPECT().MarkPublished(gomock.Any(), []uuid.UUID{first.ID}).Return(nil)

	s.Require().NoError(s.relay.Drain(ctx))
}

func (s *RelaySuite) TestDrainWithNothingPendingMakesNoCalls() {
	s.store.EXPECT().FetchUnpublished(gomock.Any(), 10).Return(nil, nil)

	s.Require().NoError(s.relay.Drain(context.Background()))
}

func (s *RelaySuite) TestDrainPropagatesFetchError() {
	s.store.EXPECT().FetchUnpublished(gomock.Any(), 10).Return(nil, errors.New("connection reset"))

	s.Require().Error(s.relay.Drain(context.Background()))
}
