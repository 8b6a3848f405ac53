package service

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// defaultRetryIntervals are the waits between delivery attempts.
var defaultRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// WebhookPayload is the JSON structure sent to an identity's webhook_url.
type WebhookPayload struct {
	EventType domain.EventType   `json:"event_type"`
	Data      WebhookPayloadData `json:"data"`
	Signature string             `json:"signature"`
}

// WebhookPayloadData holds the event details. Signature is the HMAC of its
// JSON encoding under the receiver's secret key.
type WebhookPayloadData struct {
	EventID    string          `json:"event_id"`
	Seq        int64           `json:"seq"`
	InstanceID string          `json:"instance_id"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
	Hash       string          `json:"hash"`
	Timestamp  int64           `json:"timestamp"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookServiceImpl implements ports.WebhookService.
type WebhookServiceImpl struct {
	identityRepo ports.IdentityRepository
	logRepo      ports.WebhookRepository
	encSvc       ports.EncryptionService
	sigSvc       ports.SignatureService
	httpClient   HTTPClient
	retries      []time.Duration
	log          zerolog.Logger
}

// NewWebhookService creates a new webhook service.
// If logRepo is nil, delivery attempts are only written to the logger.
func NewWebhookService(
	identityRepo ports.IdentityRepository,
	logRepo ports.WebhookRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	log zerolog.Logger,
) *WebhookServiceImpl {
	return &WebhookServiceImpl{
		identityRepo: identityRepo,
		logRepo:      logRepo,
		encSvc:       encSvc,
		sigSvc:       sigSvc,
		httpClient:   httpClient,
		retries:      defaultRetryIntervals,
		log:          log,
	}
}

// WithRetryIntervals replaces the waits between attempts.
func (s *WebhookServiceImpl) WithRetryIntervals(intervals ...time.Duration) *WebhookServiceImpl {
	s.retries = intervals
	return s
}

// EnqueueWebhook sends the event to its owner's webhook asynchronously with retries.
func (s *WebhookServiceImpl) EnqueueWebhook(ctx context.Context, event *domain.Event) error {
	identity, err := s.identityRepo.GetByID(ctx, event.OwnerID)
	if err != nil {
		s.log.Error().Err(err).Str("identity_id", event.OwnerID.String()).Msg("webhook: failed to fetch identity")
		return err
	}
	if identity == nil || identity.WebhookURL == nil || *identity.WebhookURL == "" {
		s.log.Debug().Str("identity_id", event.OwnerID.String()).Msg("webhook: no webhook URL configured, skipping")
		return nil
	}

	data := WebhookPayloadData{
		EventID:    event.ID.String(),
		Seq:        event.Seq,
		InstanceID: event.InstanceID.String(),
		ActorID:    event.ActorID.String(),
		Payload:    event.Payload,
		Hash:       event.Hash,
		Timestamp:  event.CreatedAt.Unix(),
	}

	secretKey, err := s.encSvc.Decrypt(identity.SecretKeyEnc)
	if err != nil {
		s.log.Error().Err(err).Msg("webhook: failed to decrypt identity secret key")
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal webhook data: %w", err)
	}

	payload := WebhookPayload{
		EventType: event.Type,
		Data:      data,
		Signature: s.sigSvc.Sign(secretKey, string(dataBytes)),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	go s.deliverWithRetries(context.WithoutCancel(ctx), *identity.WebhookURL, body, event, identity.ID)

	return nil
}

// deliverWithRetries attempts delivery until a 2xx response or the retry
// schedule runs out.
func (s *WebhookServiceImpl) deliverWithRetries(ctx context.Context, url string, body []byte, event *domain.Event, identityID uuid.UUID) {
	now := time.Now().UTC()
	entry := &domain.WebhookDeliveryLog{
		ID:         uuid.New(),
		EventID:    event.ID,
		IdentityID: identityID,
		WebhookURL: url,
		Payload:    string(body),
		Status:     domain.WebhookStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.logRepo != nil {
		if err := s.logRepo.Create(ctx, entry); err != nil {
			s.log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("webhook: failed to persist delivery log")
		}
	}

	for attempt := 0; attempt <= len(s.retries); attempt++ {
		if attempt > 0 {
			time.Sleep(s.retries[attempt-1])
		}
		entry.Attempt = attempt + 1

		status, err := s.post(ctx, url, body)
		if err == nil && status >= 200 && status < 300 {
			entry.Status = domain.WebhookStatusDelivered
			entry.HTTPStatus = &status
			entry.NextRetryAt = nil
			entry.LastError = nil
			s.record(ctx, entry)
			s.log.Info().Str("event_id", event.ID.String()).Int("attempt", entry.Attempt).Int("status", status).Msg("webhook: delivered successfully")
			return
		}

		if err == nil {
			entry.HTTPStatus = &status
			err = fmt.Errorf("non-2xx response: %d", status)
		}
		msg := err.Error()
		entry.LastError = &msg
		if attempt < len(s.retries) {
			next := time.Now().UTC().Add(s.retries[attempt])
			entry.NextRetryAt = &next
		} else {
			entry.Status = domain.WebhookStatusFailed
			entry.NextRetryAt = nil
		}
		s.record(ctx, entry)
		s.log.Warn().Err(err).Str("event_id", event.ID.String()).Int("attempt", entry.Attempt).Msg("webhook: delivery failed")
	}

	s.log.Error().Str("event_id", event.ID.String()).Msg("webhook: all retry attempts exhausted")
}

func (s *WebhookServiceImpl) post(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (s *WebhookServiceImpl) record(ctx context.Context, entry *domain.WebhookDeliveryLog) {
	if s.logRepo == nil {
		return
	}
	if err := s.logRepo.Update(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("event_id", entry.EventID.String()).Msg("webhook: failed to update delivery log")
	}
}
