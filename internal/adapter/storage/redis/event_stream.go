package redis

import (
	"context"
	"fmt"

	"subscription-ledger/internal/core/domain"

	json "github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventStream implements ports.EventStream over Redis pub/sub.
type EventStream struct {
	client  *goredis.Client
	channel string
	log     zerolog.Logger
}

// NewEventStream creates a stream publishing on channel.
func NewEventStream(client *goredis.Client, channel string, log zerolog.Logger) *EventStream {
	return &EventStream{client: client, channel: channel, log: log}
}

// Publish sends a committed event to every live subscriber.
func (s *EventStream) Publish(ctx context.Context, event *domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe delivers events until ctx is cancelled, then closes the channel.
func (s *EventStream) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan domain.Event, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					s.log.Warn().Err(err).Msg("Dropping malformed event message")
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
