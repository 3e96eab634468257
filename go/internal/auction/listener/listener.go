// Package listener keeps live rooms' member caches in step with the
// database by listening for Postgres notifications.
package listener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often every live room is re-synced
	PingInterval     time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
}

func DefaultConfig() Config {
	return Config{
		NotifyChannel:    "league_members_changed",
		FallbackInterval: time.Minute,
		PingInterval:     90 * time.Second,
		MaxRetries:       3,
		RetryDelay:       200 * time.Millisecond,
	}
}

// MemberRefresher reloads the membership of live rooms.
type MemberRefresher interface {
	RefreshMembers(ctx context.Context, leagueID uuid.UUID) (bool, error)
	LiveRooms() []uuid.UUID
}

type notifyConn interface {
	Ping() error
	Close() error
}

// Listener re-syncs a room whenever the league_members table changes. The
// notification payload is the league id.
type Listener struct {
	conn   notifyConn
	notify <-chan *pq.Notification
	rooms  MemberRefresher
	cfg    Config
	clock  clockwork.Clock
}

func NewListener(rooms MemberRefresher, cfg Config) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for membership notifications")

	return newListener(l, l.Notify, rooms, cfg, clockwork.NewRealClock()), nil
}

func newListener(conn notifyConn, notify <-chan *pq.Notification, rooms MemberRefresher, cfg Config, clock clockwork.Clock) *Listener {
	return &Listener{
		conn:   conn,
		notify: notify,
		rooms:  rooms,
		cfg:    cfg,
		clock:  clock,
	}
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("membership listener started")

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("membership listener shutting down")
			return l.Stop()
		case note, ok := <-l.notify:
			if !ok {
				return fmt.Errorf("notification channel closed")
			}
			if note == nil {
				// The connection was re-established; notifications may have
				// been missed in between.
				l.resyncAll(ctx)
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle membership notification")
			}
		case <-fallbackTicker.Chan():
			l.resyncAll(ctx)
		case <-pingTicker.Chan():
			if err := l.conn.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.conn.Close()
}

func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	leagueID, err := uuid.Parse(strings.TrimSpace(extra))
	if err != nil {
		return fmt.Errorf("invalid league id in notification: %w", err)
	}
	return l.refreshWithRetry(ctx, leagueID)
}

func (l *Listener) resyncAll(ctx context.Context) {
	for _, leagueID := range l.rooms.LiveRooms() {
		if err := l.refreshWithRetry(ctx, leagueID); err != nil {
			log.Error().Err(err).Str("league_id", leagueID.String()).Msg("failed to re-sync room members")
		}
	}
}

func (l *Listener) refreshWithRetry(ctx context.Context, leagueID uuid.UUID) error {
	var lastErr error

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.clock.After(l.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		live, err := l.rooms.RefreshMembers(ctx, leagueID)
		if err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("league_id", leagueID.String()).
				Msg("failed to refresh members, retrying")
			continue
		}
		if live {
			log.Debug().Str("league_id", leagueID.String()).Msg("room members refreshed")
		}
		return nil
	}

	return fmt.Errorf("refresh failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}
