package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func auditEntry(action domain.AuditAction) *domain.AuditLog {
	identityID := uuid.New()
	return &domain.AuditLog{
		ID:           uuid.New(),
		IdentityID:   &identityID,
		Action:       action,
		ResourceType: "wallet",
		ResourceID:   uuid.New().String(),
		IPAddress:    "127.0.0.1",
		CreatedAt:    time.Now(),
	}
}

func TestAuditService_Log_PersistsToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, log *domain.AuditLog) error {
			assert.Equal(t, domain.AuditActionSubscribe, log.Action)
			return nil
		},
	)

	svc.Log(context.Background(), auditEntry(domain.AuditActionSubscribe))
	require.NoError(t, svc.Close(context.Background()))
}

func TestAuditService_Close_DrainsQueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditServiceWithQueue(mockRepo, 16, newTestLogger())

	var written atomic.Int32
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Times(10).DoAndReturn(
		func(ctx context.Context, log *domain.AuditLog) error {
			written.Add(1)
			return nil
		},
	)

	for i := 0; i < 10; i++ {
		svc.Log(context.Background(), auditEntry(domain.AuditActionDeposit))
	}
	require.NoError(t, svc.Close(context.Background()))
	assert.Equal(t, int32(10), written.Load())
}

func TestAuditService_Log_DropsWhenFull(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditServiceWithQueue(mockRepo, 1, newTestLogger())

	release := make(chan struct{})
	started := make(chan struct{})
	var written atomic.Int32
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).MinTimes(1).MaxTimes(2).DoAndReturn(
		func(ctx context.Context, log *domain.AuditLog) error {
			if written.Add(1) == 1 {
				close(started)
				<-release
			}
			return nil
		},
	)

	svc.Log(context.Background(), auditEntry(domain.AuditActionWithdraw))
	<-started
	// One entry fits the queue, the rest are dropped.
	for i := 0; i < 5; i++ {
		svc.Log(context.Background(), auditEntry(domain.AuditActionWithdraw))
	}
	close(release)
	require.NoError(t, svc.Close(context.Background()))
	assert.Equal(t, int32(2), written.Load())
}

func TestAuditService_Log_RepoErrorIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	svc.Log(context.Background(), auditEntry(domain.AuditActionLogin))
	assert.NoError(t, svc.Close(context.Background()))
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	svc := NewAuditService(nil, newTestLogger())

	svc.Log(context.Background(), auditEntry(domain.AuditActionLogin))
	require.NoError(t, svc.Close(context.Background()))

	// Logging after close is a no-op.
	svc.Log(context.Background(), auditEntry(domain.AuditActionLogin))
	assert.NoError(t, svc.Close(context.Background()))
}
