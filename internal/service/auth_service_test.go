package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"
	"subscription-ledger/internal/core/ports/mocks"
	"subscription-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupAuthService(t *testing.T) (
	*AuthServiceImpl,
	*mocks.MockIdentityRepository,
	*mocks.MockHashService,
	*mocks.MockEncryptionService,
	*mocks.MockTokenService,
) {
	ctrl := gomock.NewController(t)
	identityRepo := mocks.NewMockIdentityRepository(ctrl)
	hashSvc := mocks.NewMockHashService(ctrl)
	encSvc := mocks.NewMockEncryptionService(ctrl)
	tokenSvc := mocks.NewMockTokenService(ctrl)

	svc := NewAuthService(identityRepo, hashSvc, encSvc, tokenSvc, newTestLogger())
	return svc, identityRepo, hashSvc, encSvc, tokenSvc
}

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected *apperror.AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code, appErr.Message)
}

func TestAuthService_Register_Success(t *testing.T) {
	svc, identityRepo, hashSvc, encSvc, _ := setupAuthService(t)

	ctx := context.Background()
	hook := "https://shop.example.com/hooks"
	req := ports.RegisterRequest{
		Username:    "new_identity",
		Password:    "StrongP@ss123",
		DisplayName: "Test Shop",
		WebhookURL:  &hook,
	}

	identityRepo.EXPECT().GetByUsername(ctx, req.Username).Return(nil, nil)
	hashSvc.EXPECT().Hash(req.Password).Return("$argon2id$hashed", nil)
	encSvc.EXPECT().Encrypt(gomock.Any()).Return("encrypted_secret", nil)

	var created *domain.Identity
	identityRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, identity *domain.Identity) error {
			created = identity
			return nil
		},
	)

	resp, err := svc.Register(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.True(t, strings.HasPrefix(resp.AccessKey, "ak_"))
	assert.True(t, strings.HasPrefix(resp.SecretKey, "sk_"))
	assert.Len(t, resp.AccessKey, 3+48) // 24 bytes = 48 hex chars
	assert.Len(t, resp.SecretKey, 3+64)
	assert.NotEqual(t, uuid.Nil, resp.IdentityID)

	require.NotNil(t, created)
	assert.Equal(t, resp.IdentityID, created.ID)
	assert.Equal(t, "$argon2id$hashed", created.PasswordHash)
	assert.Equal(t, "encrypted_secret", created.SecretKeyEnc)
	assert.Equal(t, domain.IdentityStatusActive, created.Status)
	assert.Equal(t, int64(0), created.Balance)
	assert.Equal(t, &hook, created.WebhookURL)
}

func TestAuthService_Register_DuplicateUsername(t *testing.T) {
	svc, identityRepo, _, _, _ := setupAuthService(t)

	ctx := context.Background()
	req := ports.RegisterRequest{Username: "existing_user", Password: "password"}

	identityRepo.EXPECT().GetByUsername(ctx, req.Username).Return(&domain.Identity{Username: "existing_user"}, nil)

	resp, err := svc.Register(ctx, req)
	assert.Nil(t, resp)
	assertAppError(t, err, "AUTH_002")
}

func TestAuthService_Register_EncryptionFailure(t *testing.T) {
	svc, identityRepo, hashSvc, encSvc, _ := setupAuthService(t)

	ctx := context.Background()
	req := ports.RegisterRequest{Username: "u", Password: "p"}

	identityRepo.EXPECT().GetByUsername(ctx, "u").Return(nil, nil)
	hashSvc.EXPECT().Hash("p").Return("$argon2id$hashed", nil)
	encSvc.EXPECT().Encrypt(gomock.Any()).Return("", errors.New("no key"))

	_, err := svc.Register(ctx, req)
	assertAppError(t, err, "SYS_003")
}

func TestAuthService_Login_Success(t *testing.T) {
	svc, identityRepo, hashSvc, _, tokenSvc := setupAuthService(t)

	ctx := context.Background()
	identityID := uuid.New()
	accessKey := "ak_test123"

	identityRepo.EXPECT().GetByUsername(ctx, "test_user").Return(&domain.Identity{
		ID:           identityID,
		Username:     "test_user",
		PasswordHash: "$argon2id$hashed",
		AccessKey:    accessKey,
		Status:       domain.IdentityStatusActive,
	}, nil)
	hashSvc.EXPECT().Verify("correct_password", "$argon2id$hashed").Return(true, nil)
	tokenSvc.EXPECT().Generate(identityID, accessKey).Return("jwt_token_here", time.Now().Add(24*time.Hour), nil)

	token, _, err := svc.Login(ctx, "test_user", "correct_password")
	require.NoError(t, err)
	assert.Equal(t, "jwt_token_here", token)
}

func TestAuthService_Login_UserNotFound(t *testing.T) {
	svc, identityRepo, _, _, _ := setupAuthService(t)

	ctx := context.Background()
	identityRepo.EXPECT().GetByUsername(ctx, "nonexistent").Return(nil, nil)

	_, _, err := svc.Login(ctx, "nonexistent", "password")
	assertAppError(t, err, "AUTH_001")
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	svc, identityRepo, hashSvc, _, _ := setupAuthService(t)

	ctx := context.Background()
	identityRepo.EXPECT().GetByUsername(ctx, "test_user").Return(&domain.Identity{
		ID:           uuid.New(),
		Username:     "test_user",
		PasswordHash: "$argon2id$hashed",
		Status:       domain.IdentityStatusActive,
	}, nil)
	hashSvc.EXPECT().Verify("wrong_password", "$argon2id$hashed").Return(false, nil)

	_, _, err := svc.Login(ctx, "test_user", "wrong_password")
	assertAppError(t, err, "AUTH_001")
}

func TestAuthService_Login_IdentitySuspended(t *testing.T) {
	svc, identityRepo, hashSvc, _, _ := setupAuthService(t)

	ctx := context.Background()
	identityRepo.EXPECT().GetByUsername(ctx, "test_user").Return(&domain.Identity{
		ID:           uuid.New(),
		Username:     "test_user",
		PasswordHash: "$argon2id$hashed",
		Status:       domain.IdentityStatusSuspended,
	}, nil)
	hashSvc.EXPECT().Verify("correct_password", "$argon2id$hashed").Return(true, nil)

	_, _, err := svc.Login(ctx, "test_user", "correct_password")
	assertAppError(t, err, "AUTH_004")
}
