package service

import (
	"context"
	"errors"
	"testing"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"
	"subscription-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventService_Dispatch_FansOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	stream := mocks.NewMockEventStream(ctrl)
	webhook := mocks.NewMockWebhookService(ctrl)
	metrics := mocks.NewMockMetrics(ctrl)

	svc := NewEventService(mocks.NewMockEventRepository(ctrl), stream, webhook, metrics, newTestLogger())

	e1 := testEvent(uuid.New())
	e2 := testEvent(uuid.New())
	e2.Type = domain.EventSubscribed

	gomock.InOrder(
		stream.EXPECT().Publish(gomock.Any(), e1).Return(nil),
		webhook.EXPECT().EnqueueWebhook(gomock.Any(), e1).Return(nil),
		metrics.EXPECT().IncEvents(domain.EventPaymentReceived),
		stream.EXPECT().Publish(gomock.Any(), e2).Return(nil),
		webhook.EXPECT().EnqueueWebhook(gomock.Any(), e2).Return(nil),
		metrics.EXPECT().IncEvents(domain.EventSubscribed),
	)

	svc.Dispatch(context.Background(), e1, e2)
}

func TestEventService_Dispatch_FailuresAreSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	stream := mocks.NewMockEventStream(ctrl)
	webhook := mocks.NewMockWebhookService(ctrl)

	svc := NewEventService(mocks.NewMockEventRepository(ctrl), stream, webhook, nil, newTestLogger())
	e := testEvent(uuid.New())

	stream.EXPECT().Publish(gomock.Any(), e).Return(errors.New("redis down"))
	webhook.EXPECT().EnqueueWebhook(gomock.Any(), e).Return(errors.New("db down"))

	// The request context is already cancelled when the handler returns.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Dispatch(ctx, e)
}

func TestEventService_VerifyLog_DetectsTampering(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockEventRepository(ctrl)
	svc := NewEventService(repo, nil, nil, nil, newTestLogger())

	e1 := testEvent(uuid.New())
	e2, err := domain.NewEvent(domain.EventDeposited, uuid.New(), uuid.New(), uuid.New(),
		domain.DepositedPayload{Amount: 10}, e1.CreatedAt)
	require.NoError(t, err)
	e2.Seal(2, e1.Hash)
	e2.Payload = []byte(`{"amount":1000000}`)

	repo.EXPECT().List(gomock.Any(), ports.EventListParams{}).Return([]domain.Event{*e1, *e2}, nil)

	report, err := svc.VerifyLog(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, int64(2), report.BadSeq)
	assert.Contains(t, report.Problem, "hash mismatch")
}

func TestEventService_List_RepositoryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockEventRepository(ctrl)
	svc := NewEventService(repo, nil, nil, nil, newTestLogger())

	repo.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	_, err := svc.List(context.Background(), uuid.New(), ports.EventListParams{Limit: 10})
	assertAppError(t, err, "SYS_001")
}

func TestEventService_List_ScopesToViewer(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockEventRepository(ctrl)
	svc := NewEventService(repo, nil, nil, nil, newTestLogger())

	viewer := uuid.New()
	repo.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p ports.EventListParams) ([]domain.Event, error) {
			require.NotNil(t, p.Viewer)
			assert.Equal(t, viewer, *p.Viewer)
			return nil, nil
		},
	)

	// A caller-supplied viewer is overwritten.
	other := uuid.New()
	_, err := svc.List(context.Background(), viewer, ports.EventListParams{Viewer: &other})
	require.NoError(t, err)
}

func TestEventService_Subscribe_FiltersByViewer(t *testing.T) {
	ctrl := gomock.NewController(t)
	stream := mocks.NewMockEventStream(ctrl)
	svc := NewEventService(mocks.NewMockEventRepository(ctrl), stream, nil, nil, newTestLogger())

	viewer, stranger := uuid.New(), uuid.New()
	owned := domain.Event{Seq: 1, Type: domain.EventDeposited, OwnerID: viewer, ActorID: stranger}
	caused := domain.Event{Seq: 2, Type: domain.EventPaymentReceived, OwnerID: stranger, ActorID: viewer}
	foreign := domain.Event{Seq: 3, Type: domain.EventWithdrawn, OwnerID: stranger, ActorID: stranger}

	ch := make(chan domain.Event, 3)
	ch <- owned
	ch <- foreign
	ch <- caused
	close(ch)
	stream.EXPECT().Subscribe(gomock.Any()).Return((<-chan domain.Event)(ch), nil)

	got, err := svc.Subscribe(context.Background(), viewer, ports.EventListParams{})
	require.NoError(t, err)

	var seqs []int64
	for e := range got {
		seqs = append(seqs, e.Seq)
	}
	assert.Equal(t, []int64{1, 2}, seqs)
}

func TestEventService_Subscribe_AppliesFilters(t *testing.T) {
	ctrl := gomock.NewController(t)
	stream := mocks.NewMockEventStream(ctrl)
	svc := NewEventService(mocks.NewMockEventRepository(ctrl), stream, nil, nil, newTestLogger())

	viewer, instance := uuid.New(), uuid.New()
	ch := make(chan domain.Event, 2)
	ch <- domain.Event{Seq: 1, Type: domain.EventDeposited, InstanceID: uuid.New(), OwnerID: viewer}
	ch <- domain.Event{Seq: 2, Type: domain.EventDeposited, InstanceID: instance, OwnerID: viewer}
	close(ch)
	stream.EXPECT().Subscribe(gomock.Any()).Return((<-chan domain.Event)(ch), nil)

	got, err := svc.Subscribe(context.Background(), viewer, ports.EventListParams{InstanceID: &instance})
	require.NoError(t, err)

	e, open := <-got
	require.True(t, open)
	assert.Equal(t, int64(2), e.Seq)
	_, open = <-got
	assert.False(t, open)
}

func TestEventService_Subscribe_WithoutStream(t *testing.T) {
	svc := NewEventService(nil, nil, nil, nil, newTestLogger())

	_, err := svc.Subscribe(context.Background(), uuid.New(), ports.EventListParams{})
	assertAppError(t, err, "SYS_004")
}
