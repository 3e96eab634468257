package catalog

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultPreviewTTL is how long a parsed listone waits for confirmation.
const DefaultPreviewTTL = 10 * time.Minute

type previewKey struct {
	leagueID uuid.UUID
	userID   uuid.UUID
}

type previewEntry struct {
	players   []ImportedPlayer
	expiresAt time.Time
}

// PreviewCache holds the last parsed listone per league and admin.
type PreviewCache struct {
	mu      sync.Mutex
	entries map[previewKey]previewEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

func NewPreviewCache(ttl time.Duration, clock clockwork.Clock) *PreviewCache {
	if ttl <= 0 {
		ttl = DefaultPreviewTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PreviewCache{
		entries: make(map[previewKey]previewEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (c *PreviewCache) Put(leagueID, userID uuid.UUID, players []ImportedPlayer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[previewKey{leagueID, userID}] = previewEntry{
		players:   players,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

// Get returns the cached players, evicting the entry once it has expired.
func (c *PreviewCache) Get(leagueID, userID uuid.UUID) ([]ImportedPlayer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := previewKey{leagueID, userID}
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.players, true
}

func (c *PreviewCache) Clear(leagueID, userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, previewKey{leagueID, userID})
}
