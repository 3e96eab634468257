// Package stream forwards room events to NATS JetStream.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
)

// Envelope is the message body written to the stream.
type Envelope struct {
	ID        uuid.UUID       `json:"eventId"`
	Type      string          `json:"eventType"`
	LeagueID  uuid.UUID       `json:"leagueId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type EventPublisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// MetricsCollector records publish outcomes.
type MetricsCollector interface {
	RecordEventPublished(eventType string, success bool, duration time.Duration)
	RecordPublishAttempt(eventType string, attempt int, success bool)
}

type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordEventPublished(string, bool, time.Duration) {}
func (NoOpMetricsCollector) RecordPublishAttempt(string, int, bool)           {}

type Config struct {
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferSize: 1024,
		MaxRetries: 3,
		RetryDelay: 200 * time.Millisecond,
	}
}

// Forwarder is an auction.Notifier that hands events to a publisher from a
// background goroutine, so the engine never waits on the broker.
type Forwarder struct {
	publisher EventPublisher
	config    Config
	metrics   MetricsCollector
	clock     clockwork.Clock
	queue     chan Envelope
}

var _ auction.Notifier = (*Forwarder)(nil)

func NewForwarder(publisher EventPublisher, cfg Config, metrics MetricsCollector, clock clockwork.Clock) *Forwarder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Forwarder{
		publisher: publisher,
		config:    cfg,
		metrics:   metrics,
		clock:     clock,
		queue:     make(chan Envelope, cfg.BufferSize),
	}
}

// Broadcast enqueues ev. Events are dropped when the buffer is full.
func (f *Forwarder) Broadcast(ev auction.Event) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal event payload")
		return
	}
	env := Envelope{
		ID:        uuid.New(),
		Type:      string(ev.Type),
		LeagueID:  ev.LeagueID,
		Timestamp: ev.Timestamp.UTC(),
		Payload:   payload,
	}
	select {
	case f.queue <- env:
	default:
		log.Warn().
			Str("league_id", ev.LeagueID.String()).
			Str("event_type", env.Type).
			Msg("event stream buffer full, dropping event")
	}
}

// Run publishes queued events until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	log.Info().Int("buffer", cap(f.queue)).Msg("event forwarder started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Int("pending", len(f.queue)).Msg("event forwarder stopped")
			return nil
		case env := <-f.queue:
			start := f.clock.Now()
			err := f.publishWithRetry(ctx, env)
			f.metrics.RecordEventPublished(env.Type, err == nil, f.clock.Since(start))
			if err != nil {
				log.Error().
					Err(err).
					Str("event_id", env.ID.String()).
					Str("event_type", env.Type).
					Msg("failed to publish event")
			}
		}
	}
}

func (f *Forwarder) publishWithRetry(ctx context.Context, env Envelope) error {
	var lastErr error

	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.clock.After(f.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := f.publisher.Publish(ctx, env); err != nil {
			lastErr = err
			f.metrics.RecordPublishAttempt(env.Type, attempt+1, false)
			log.Warn().
				Err(err).
				Str("event_id", env.ID.String()).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}

		f.metrics.RecordPublishAttempt(env.Type, attempt+1, true)
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", f.config.MaxRetries+1, lastErr)
}
