package auction

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Supervisor drives the two periodic scans of the engine: countdown expiry
// and admin liveness. Expired rooms are handed to a worker pool so a slow
// sale in one room never delays another.
type Supervisor struct {
	engine     *Engine
	instanceID string

	numWorkers int
	workCh     chan uuid.UUID

	// rooms queued or being resolved
	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex
}

func NewSupervisor(engine *Engine) *Supervisor {
	numWorkers := engine.cfg.Workers
	return &Supervisor{
		engine:     engine,
		instanceID: uuid.New().String()[:8],
		numWorkers: numWorkers,
		workCh:     make(chan uuid.UUID, numWorkers*2),
		inFlight:   make(map[uuid.UUID]bool),
	}
}

// Run blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	cfg := s.engine.cfg
	log.Info().
		Str("instance", s.instanceID).
		Int("workers", s.numWorkers).
		Dur("timer_tick", cfg.TimerTick).
		Dur("pulse_check", cfg.PulseCheckInterval).
		Msg("auction supervisor started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < s.numWorkers; i++ {
		wg.Add(1)
		go s.worker(workerCtx, &wg, i)
	}

	defer func() {
		log.Info().Str("instance", s.instanceID).Msg("shutting down workers")
		cancelWorkers()
		close(s.workCh)
		wg.Wait()
		log.Info().Str("instance", s.instanceID).Msg("all workers shut down")
	}()

	countdown := s.engine.clock.NewTicker(cfg.TimerTick)
	defer countdown.Stop()
	pulse := s.engine.clock.NewTicker(cfg.PulseCheckInterval)
	defer pulse.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", s.instanceID).Msg("supervisor shutdown requested")
			return nil
		case <-countdown.Chan():
			s.enqueueExpired(ctx)
		case <-pulse.Chan():
			s.engine.CheckAdminPulses()
		}
	}
}

// enqueueExpired queues every room whose countdown has elapsed.
func (s *Supervisor) enqueueExpired(ctx context.Context) {
	now := s.engine.clock.Now()
	for _, room := range s.engine.registry.Rooms() {
		room.mu.Lock()
		due := !room.closed && room.expired(now)
		room.mu.Unlock()
		if !due {
			continue
		}

		leagueID := room.leagueID
		s.inFlightMu.Lock()
		if s.inFlight[leagueID] {
			s.inFlightMu.Unlock()
			continue
		}
		s.inFlight[leagueID] = true
		s.inFlightMu.Unlock()

		select {
		case <-ctx.Done():
			s.done(leagueID)
			return
		case s.workCh <- leagueID:
			log.Debug().Str("league_id", leagueID.String()).Str("instance", s.instanceID).Msg("queued expired room")
		default:
			// Picked up again on the next tick.
			s.done(leagueID)
			log.Warn().Str("league_id", leagueID.String()).Str("instance", s.instanceID).Msg("work channel full")
		}
	}
}

func (s *Supervisor) done(leagueID uuid.UUID) {
	s.inFlightMu.Lock()
	delete(s.inFlight, leagueID)
	s.inFlightMu.Unlock()
}

func (s *Supervisor) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case leagueID, ok := <-s.workCh:
			if !ok {
				return
			}
			if err := s.engine.ResolveExpired(ctx, leagueID); err != nil {
				log.Error().
					Err(err).
					Str("league_id", leagueID.String()).
					Str("instance", s.instanceID).
					Int("worker_id", workerID).
					Msg("resolution failed")
			}
			s.done(leagueID)
		}
	}
}
