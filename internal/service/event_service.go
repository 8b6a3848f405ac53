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

// EventServiceImpl implements ports.EventService. It is also the
// dispatcher the ledger services hand committed events to.
type EventServiceImpl struct {
	eventRepo ports.EventRepository
	stream    ports.EventStream
	webhook   ports.WebhookService
	metrics   ports.Metrics
	log       zerolog.Logger
}

// NewEventService creates a new EventServiceImpl. stream and webhook may be nil.
func NewEventService(
	eventRepo ports.EventRepository,
	stream ports.EventStream,
	webhook ports.WebhookService,
	metrics ports.Metrics,
	log zerolog.Logger,
) *EventServiceImpl {
	return &EventServiceImpl{
		eventRepo: eventRepo,
		stream:    stream,
		webhook:   webhook,
		metrics:   metrics,
		log:       log,
	}
}

// Dispatch publishes committed events and enqueues their webhooks.
// Failures are logged and never reach the caller.
func (s *EventServiceImpl) Dispatch(ctx context.Context, events ...*domain.Event) {
	ctx = context.WithoutCancel(ctx)
	for _, e := range events {
		if s.stream != nil {
			if err := s.stream.Publish(ctx, e); err != nil {
				s.log.Warn().Err(err).Int64("seq", e.Seq).Str("type", string(e.Type)).Msg("failed to publish event")
			}
		}
		if s.webhook != nil {
			if err := s.webhook.EnqueueWebhook(ctx, e); err != nil {
				s.log.Warn().Err(err).Int64("seq", e.Seq).Str("owner_id", e.OwnerID.String()).Msg("failed to enqueue webhook")
			}
		}
		if s.metrics != nil {
			s.metrics.IncEvents(e.Type)
		}
	}
}

// List returns the viewer's events matching params in log order.
func (s *EventServiceImpl) List(ctx context.Context, viewer uuid.UUID, params ports.EventListParams) ([]domain.Event, error) {
	params.Viewer = &viewer
	if params.AfterSeq < 0 {
		return nil, apperror.ErrInvalidArgument("after_seq must not be negative")
	}
	if params.Limit < 0 {
		return nil, apperror.ErrInvalidArgument("limit must not be negative")
	}
	events, err := s.eventRepo.List(ctx, params)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list events: %w", err))
	}
	return events, nil
}

// Subscribe streams the viewer's live events matching params until ctx is
// cancelled.
func (s *EventServiceImpl) Subscribe(ctx context.Context, viewer uuid.UUID, params ports.EventListParams) (<-chan domain.Event, error) {
	if s.stream == nil {
		return nil, apperror.ErrStreamUnavailable()
	}
	params.Viewer = &viewer
	ch, err := s.stream.Subscribe(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("subscribe to events: %w", err))
	}

	out := make(chan domain.Event)
	go func() {
		defer close(out)
		for e := range ch {
			if !params.Matches(&e) {
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// VerifyLog recomputes the hash chain over the whole log.
func (s *EventServiceImpl) VerifyLog(ctx context.Context) (*ports.ChainReport, error) {
	events, err := s.eventRepo.List(ctx, ports.EventListParams{})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list events: %w", err))
	}

	chain := make([]*domain.Event, len(events))
	for i := range events {
		chain[i] = &events[i]
	}

	report := &ports.ChainReport{Events: len(events), Valid: true, Head: domain.GenesisHash}
	if len(events) > 0 {
		report.Head = events[len(events)-1].Hash
	}
	if bad, err := domain.VerifyChain(chain); err != nil {
		report.Valid = false
		report.BadSeq = bad
		report.Problem = err.Error()
		s.log.Error().Int64("seq", bad).Err(err).Msg("event log verification failed")
	}
	return report, nil
}
