package service

import (
	"context"
	"fmt"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"
	"subscription-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IdentityServiceImpl implements ports.IdentityService.
type IdentityServiceImpl struct {
	ledger
	encSvc ports.EncryptionService
}

// NewIdentityService creates a new identity management service.
func NewIdentityService(
	repos ports.Repositories,
	encSvc ports.EncryptionService,
	clock ports.Clock,
	dispatch ports.EventDispatcher,
	log zerolog.Logger,
) *IdentityServiceImpl {
	return &IdentityServiceImpl{
		ledger: newLedger(repos, clock, dispatch, log),
		encSvc: encSvc,
	}
}

func (s *IdentityServiceImpl) GetProfile(ctx context.Context, identityID uuid.UUID) (*domain.Identity, error) {
	identity, err := s.repos.Identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if identity == nil {
		return nil, apperror.ErrNotFound("identity")
	}
	return identity, nil
}

func (s *IdentityServiceImpl) UpdateWebhookURL(ctx context.Context, identityID uuid.UUID, webhookURL *string) error {
	identity, err := s.GetProfile(ctx, identityID)
	if err != nil {
		return err
	}

	identity.WebhookURL = webhookURL
	identity.UpdatedAt = s.now()

	if err := s.repos.Identities.Update(ctx, identity); err != nil {
		return apperror.InternalError(err)
	}
	return nil
}

func (s *IdentityServiceImpl) RotateKeys(ctx context.Context, identityID uuid.UUID) (*ports.RotateKeysResponse, error) {
	identity, err := s.GetProfile(ctx, identityID)
	if err != nil {
		return nil, err
	}

	newAccessKey, err := generateKey("ak_", 24)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate access key: %w", err))
	}
	newSecretKey, err := generateKey("sk_", 32)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate secret key: %w", err))
	}

	encSecretKey, err := s.encSvc.Encrypt(newSecretKey)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt secret key: %w", err))
	}

	identity.AccessKey = newAccessKey
	identity.SecretKeyEnc = encSecretKey
	identity.UpdatedAt = s.now()

	if err := s.repos.Identities.Update(ctx, identity); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.log.Info().Str("identity_id", identityID.String()).Msg("keys rotated")
	return &ports.RotateKeysResponse{
		AccessKey: newAccessKey,
		SecretKey: newSecretKey,
	}, nil
}

// Topup credits the external account from outside the ledger.
func (s *IdentityServiceImpl) Topup(ctx context.Context, identityID uuid.UUID, amount int64) (*domain.Identity, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidArgument("amount must be positive")
	}

	dbTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	identity, err := s.creditIdentity(ctx, dbTx, identityID, amount)
	if err != nil {
		return nil, err
	}

	now := s.now()
	evt, err := s.event(domain.EventAccountToppedUp, identity.ID, identity.ID, identity.ID,
		domain.ToppedUpPayload{Identity: identity.ID, Amount: amount, Balance: identity.Balance}, now)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, dbTx, evt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("identity_id", identity.ID.String()).
		Int64("amount", amount).
		Int64("balance", identity.Balance).
		Msg("account topped up")
	return identity, nil
}

func (s *IdentityServiceImpl) Balance(ctx context.Context, identityID uuid.UUID) (int64, error) {
	identity, err := s.GetProfile(ctx, identityID)
	if err != nil {
		return 0, err
	}
	return identity.Balance, nil
}
