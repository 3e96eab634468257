package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// StartItem puts a player up for bid. A nil playerID picks the next
// available player of the league.
func (e *Engine) StartItem(ctx context.Context, leagueID, memberID uuid.UUID, playerID *int64) (models.AuctionPlayer, error) {
	room, admin, err := e.lockAdmin(leagueID, memberID)
	if err != nil {
		e.metrics.RecordAdminAction("start_player", string(CodeOf(err, "")))
		return models.AuctionPlayer{}, err
	}
	idle := room.status == models.AuctionStatusIdle && room.currentPlayer == nil
	actor := admin.UserID
	room.mu.Unlock()

	if !idle {
		e.metrics.RecordAdminAction("start_player", string(CodeNotIdle))
		return models.AuctionPlayer{}, actionError(CodeNotIdle)
	}

	player, err := e.startItem(ctx, room, actor, playerID)
	e.metrics.RecordAdminAction("start_player", string(CodeOf(err, "")))
	return player, err
}

func (e *Engine) startItem(ctx context.Context, room *Room, actor uuid.UUID, playerID *int64) (models.AuctionPlayer, error) {
	if !room.tryAcquireSale() {
		return models.AuctionPlayer{}, actionError(CodeSaleInProgress)
	}
	defer room.releaseSale()

	player, err := e.loadItem(ctx, room.leagueID, playerID)
	if err != nil {
		return models.AuctionPlayer{}, err
	}

	room.mu.Lock()
	if room.closed || room.status != models.AuctionStatusIdle || room.currentPlayer != nil {
		room.mu.Unlock()
		return models.AuctionPlayer{}, actionError(CodeNotIdle)
	}
	now := e.clock.Now()
	deadline := now.Add(TimerDuration(0, room.settings))
	p := player
	room.currentPlayer = &p
	room.currentBid = room.settings.OpeningBid()
	room.leaderID = uuid.Nil
	room.bidCount = 0
	room.timerEndsAt = &deadline
	room.remaining = nil
	room.paused = false
	room.pauseReason = models.PauseReasonNone
	room.status = models.AuctionStatusActive
	minBid := room.currentBid
	e.broadcast(room.leagueID, EventItemStarted, ItemStartedPayload{
		Player:      player,
		TimerEndsAt: deadline.UnixMilli(),
		MinBid:      minBid,
	})
	room.mu.Unlock()

	log.Info().
		Str("league_id", room.leagueID.String()).
		Int64("player_id", player.ID).
		Str("player_name", player.Name).
		Time("timer_ends_at", deadline).
		Msg("player on auction")

	e.audit(ctx, AuditEntry{
		LeagueID: room.leagueID,
		Action:   models.AuditActionStartPlayer,
		ActorID:  actor,
		PlayerID: playerIDPtr(player),
		Payload:  map[string]any{"player_name": player.Name, "min_bid": minBid},
	})
	return player, nil
}

func (e *Engine) loadItem(ctx context.Context, leagueID uuid.UUID, playerID *int64) (models.AuctionPlayer, error) {
	if playerID == nil {
		player, err := e.store.NextAvailablePlayer(ctx, leagueID)
		switch {
		case errors.Is(err, ErrNoPlayers):
			return models.AuctionPlayer{}, actionError(CodeNoPlayersAvailable)
		case err != nil:
			return models.AuctionPlayer{}, upstreamError(CodeStartFailed, err)
		}
		return player, nil
	}

	player, err := e.store.GetPlayer(ctx, leagueID, *playerID)
	switch {
	case errors.Is(err, ErrPlayerNotFound):
		return models.AuctionPlayer{}, actionError(CodePlayerNotFound)
	case err != nil:
		return models.AuctionPlayer{}, upstreamError(CodeStartFailed, err)
	case player.Status != models.PlayerStatusAvailable:
		return models.AuctionPlayer{}, actionError(CodePlayerNotAvailable)
	}
	return player, nil
}

// ResolveExpired closes an item whose countdown has elapsed: sold to the
// leader, or skipped when nobody bid. Concurrent calls for the same room
// resolve it once; the losers return immediately.
func (e *Engine) ResolveExpired(ctx context.Context, leagueID uuid.UUID) error {
	room, ok := e.registry.Get(leagueID)
	if !ok {
		return nil
	}
	if !room.tryAcquireSale() {
		return nil
	}
	defer room.releaseSale()

	start := e.clock.Now()
	room.mu.Lock()
	if room.closed || !room.expired(start) {
		room.mu.Unlock()
		return nil
	}
	if room.currentPlayer == nil {
		room.clearCurrent()
		room.mu.Unlock()
		return nil
	}
	player := *room.currentPlayer
	syncMark := room.syncApplied
	winner, hasWinner := room.members[room.leaderID]
	var (
		sale       SaleRequest
		winnerName string
	)
	if hasWinner {
		sale = SaleRequest{
			LeagueID:       room.leagueID,
			PlayerID:       player.ID,
			WinnerMemberID: winner.MemberID,
			Price:          room.currentBid,
			ActorID:        room.adminUserID,
			PlayerRole:     player.PrimaryRole(),
		}
		winnerName = winner.Username
	}
	adminUserID := room.adminUserID
	room.mu.Unlock()

	if !hasWinner {
		err := e.skipUnsold(ctx, room, player, adminUserID)
		e.recordResolution(err, OutcomeSkipped, start)
		return err
	}
	err := e.sell(ctx, room, player, sale, winnerName, syncMark)
	e.recordResolution(err, OutcomeSold, start)
	return err
}

func (e *Engine) recordResolution(err error, outcome string, start time.Time) {
	if err != nil {
		outcome = OutcomeFailed
	}
	e.metrics.RecordResolution(outcome, e.clock.Since(start))
}

func (e *Engine) skipUnsold(ctx context.Context, room *Room, player models.AuctionPlayer, actor uuid.UUID) error {
	if err := e.store.SetPlayerStatus(ctx, room.leagueID, player.ID, models.PlayerStatusSkipped); err != nil {
		e.failResolution(room, player.ID)
		return fmt.Errorf("failed to mark player skipped: %w", err)
	}

	e.audit(ctx, AuditEntry{
		LeagueID: room.leagueID,
		Action:   models.AuditActionSkip,
		ActorID:  actor,
		PlayerID: playerIDPtr(player),
		Payload:  map[string]any{"player_name": player.Name, "reason": "no_bids"},
	})

	room.mu.Lock()
	if room.sameItem(player.ID) {
		room.clearCurrent()
	}
	e.broadcast(room.leagueID, EventItemSkipped, ItemSkippedPayload{Player: player})
	room.mu.Unlock()

	log.Info().
		Str("league_id", room.leagueID.String()).
		Int64("player_id", player.ID).
		Msg("no bids, player skipped")
	return nil
}

// sell commits the sale and applies it to the member cache. When a member
// sync landed or is still running since syncMark, the cache may already hold
// the committed sale, so the slot count is re-read from the store instead of
// incremented.
func (e *Engine) sell(ctx context.Context, room *Room, player models.AuctionPlayer, sale SaleRequest, winnerName string, syncMark uint64) error {
	res, err := e.store.SellPlayer(ctx, sale)
	if err != nil {
		e.failResolution(room, player.ID)
		return fmt.Errorf("failed to sell player: %w", err)
	}

	room.mu.Lock()
	raced := room.syncApplied != syncMark || room.syncing > 0
	reconcile := raced || res.NewBudget == nil
	if winner, ok := room.members[sale.WinnerMemberID]; ok {
		switch {
		case res.NewBudget != nil:
			winner.BudgetCurrent = *res.NewBudget
		case !raced:
			winner.BudgetCurrent -= sale.Price
		}
		if !raced {
			if winner.SlotsFilled == nil {
				winner.SlotsFilled = make(map[string]int)
			}
			winner.SlotsFilled[sale.PlayerRole]++
		}
	} else {
		reconcile = true
	}
	if room.sameItem(player.ID) {
		room.clearCurrent()
	}
	e.broadcast(room.leagueID, EventItemSold, ItemSoldPayload{
		Player:         player,
		WinnerMemberID: sale.WinnerMemberID,
		WinnerName:     winnerName,
		Price:          sale.Price,
	})
	room.mu.Unlock()

	log.Info().
		Str("league_id", room.leagueID.String()).
		Int64("player_id", player.ID).
		Str("winner_member_id", sale.WinnerMemberID.String()).
		Int("price", sale.Price).
		Msg("player sold")

	if reconcile {
		log.Warn().
			Str("league_id", room.leagueID.String()).
			Int64("player_id", player.ID).
			Bool("concurrent_sync", raced).
			Msg("member cache uncertain after sale, re-syncing members")
		if err := e.rooms.SyncMembers(ctx, room); err != nil {
			log.Error().Err(err).Str("league_id", room.leagueID.String()).Msg("failed to re-sync members after sale")
			return nil
		}
		room.mu.Lock()
		e.broadcast(room.leagueID, EventAuctionState, room.snapshot())
		room.mu.Unlock()
	}
	return nil
}

// failResolution parks the room in a manual pause after a store failure on
// the expiry path, so an admin can retry by resuming.
func (e *Engine) failResolution(room *Room, playerID int64) {
	room.mu.Lock()
	if !room.sameItem(playerID) {
		room.mu.Unlock()
		return
	}
	room.paused = true
	room.status = models.AuctionStatusPaused
	room.pauseReason = models.PauseReasonManual
	room.remaining = nil
	room.timerEndsAt = nil
	e.broadcast(room.leagueID, EventAuctionPaused, AuctionPausedPayload{Reason: models.PauseReasonManual})
	room.mu.Unlock()

	log.Error().
		Str("league_id", room.leagueID.String()).
		Int64("player_id", playerID).
		Msg("resolution failed, auction paused")
}

// Pause stops the countdown, keeping the time left for Resume.
func (e *Engine) Pause(ctx context.Context, leagueID, memberID uuid.UUID) error {
	room, admin, err := e.lockAdmin(leagueID, memberID)
	if err != nil {
		e.metrics.RecordAdminAction("pause", string(CodeOf(err, "")))
		return err
	}
	code := Code("")
	switch {
	case room.selling.Load():
		code = CodeSaleInProgress
	case room.paused:
		code = CodeAlreadyPaused
	}
	if code != "" {
		room.mu.Unlock()
		e.metrics.RecordAdminAction("pause", string(code))
		return actionError(code)
	}
	room.pause(models.PauseReasonManual, e.clock.Now())
	remaining := durationMillis(room.remaining)
	var playerID *int64
	if room.currentPlayer != nil {
		playerID = playerIDPtr(*room.currentPlayer)
	}
	e.broadcast(leagueID, EventAuctionPaused, AuctionPausedPayload{
		Reason:      models.PauseReasonManual,
		RemainingMs: remaining,
	})
	room.mu.Unlock()

	e.metrics.RecordAdminAction("pause", "")
	e.audit(ctx, AuditEntry{
		LeagueID: leagueID,
		Action:   models.AuditActionPause,
		ActorID:  admin.UserID,
		PlayerID: playerID,
		Payload:  map[string]any{"remaining_ms": remaining},
	})
	return nil
}

// Resume restarts a paused countdown with the time that was left, or a fresh
// decay window when none was recorded.
func (e *Engine) Resume(ctx context.Context, leagueID, memberID uuid.UUID) error {
	room, admin, err := e.lockAdmin(leagueID, memberID)
	if err != nil {
		e.metrics.RecordAdminAction("resume", string(CodeOf(err, "")))
		return err
	}
	code := Code("")
	switch {
	case room.selling.Load():
		code = CodeSaleInProgress
	case !room.paused:
		code = CodeNotPaused
	}
	if code != "" {
		room.mu.Unlock()
		e.metrics.RecordAdminAction("resume", string(code))
		return actionError(code)
	}
	deadline := room.resume(e.clock.Now())
	var playerID *int64
	if room.currentPlayer != nil {
		playerID = playerIDPtr(*room.currentPlayer)
	}
	e.broadcast(leagueID, EventAuctionResumed, AuctionResumedPayload{NewTimerEndsAt: millis(deadline)})
	room.mu.Unlock()

	e.metrics.RecordAdminAction("resume", "")
	e.audit(ctx, AuditEntry{
		LeagueID: leagueID,
		Action:   models.AuditActionResume,
		ActorID:  admin.UserID,
		PlayerID: playerID,
		Payload:  map[string]any{"timer_ends_at": millis(deadline)},
	})
	return nil
}

// Skip withdraws the current player without a sale.
func (e *Engine) Skip(ctx context.Context, leagueID, memberID uuid.UUID) error {
	room, admin, err := e.lockAdmin(leagueID, memberID)
	if err != nil {
		e.metrics.RecordAdminAction("skip", string(CodeOf(err, "")))
		return err
	}
	if room.currentPlayer == nil {
		room.mu.Unlock()
		e.metrics.RecordAdminAction("skip", string(CodeNoCurrentPlayer))
		return actionError(CodeNoCurrentPlayer)
	}
	if !room.tryAcquireSale() {
		room.mu.Unlock()
		e.metrics.RecordAdminAction("skip", string(CodeSaleInProgress))
		return actionError(CodeSaleInProgress)
	}
	defer room.releaseSale()
	player := *room.currentPlayer
	room.mu.Unlock()


	if err := e.store.SetPlayerStatus(ctx, leagueID, player.ID, models.PlayerStatusSkipped); err != nil {
		log.Error().Err(err).Str("league_id", leagueID.String()).Int64("player_id", player.ID).Msg("failed to skip player")
		e.metrics.RecordAdminAction("skip", string(CodeSkipFailed))
		return upstreamError(CodeSkipFailed, err)
	}

	room.mu.Lock()
	if room.sameItem(player.ID) {
		room.clearCurrent()
	}
	e.broadcast(leagueID, EventItemSkipped, ItemSkippedPayload{Player: player})
	room.mu.Unlock()

	e.metrics.RecordAdminAction("skip", "")
	e.audit(ctx, AuditEntry{
		LeagueID: leagueID,
		Action:   models.AuditActionSkip,
		ActorID:  admin.UserID,
		PlayerID: playerIDPtr(player),
		Payload:  map[string]any{"player_name": player.Name, "reason": "admin_skip"},
	})
	return nil
}

// Rollback undoes the league's last sale in the store and refreshes the
// member cache so budgets and rosters match the reversal.
func (e *Engine) Rollback(ctx context.Context, leagueID, memberID uuid.UUID) (RollbackResult, error) {
	room, admin, err := e.lockAdmin(leagueID, memberID)
	if err != nil {
		e.metrics.RecordAdminAction("rollback", string(CodeOf(err, "")))
		return RollbackResult{}, err
	}
	if room.currentPlayer != nil {
		room.mu.Unlock()
		e.metrics.RecordAdminAction("rollback", string(CodeAuctionInProgress))
		return RollbackResult{}, actionError(CodeAuctionInProgress)
	}
	if !room.tryAcquireSale() {
		room.mu.Unlock()
		e.metrics.RecordAdminAction("rollback", string(CodeSaleInProgress))
		return RollbackResult{}, actionError(CodeSaleInProgress)
	}
	defer room.releaseSale()
	actor := admin.UserID
	room.mu.Unlock()


	res, err := e.store.RollbackLastSale(ctx, leagueID, actor)
	if err != nil {
		log.Error().Err(err).Str("league_id", leagueID.String()).Msg("rollback failed")
		e.metrics.RecordAdminAction("rollback", string(CodeRollbackFailed))
		return RollbackResult{}, upstreamError(CodeRollbackFailed, err)
	}
	if !res.Success {
		code := CodeRollbackFailed
		if res.NothingToUndo() {
			code = CodeNothingToRollback
		} else {
			log.Error().Str("league_id", leagueID.String()).Str("reason", res.Reason).Msg("rollback refused by store")
		}
		e.metrics.RecordAdminAction("rollback", string(code))
		return res, &ActionError{Code: code, Detail: res.Reason}
	}

	if err := e.rooms.SyncMembers(ctx, room); err != nil {
		log.Error().Err(err).Str("league_id", leagueID.String()).Msg("rollback applied but member sync failed")
		e.metrics.RecordAdminAction("rollback", string(CodeSyncFailed))
		return res, upstreamError(CodeSyncFailed, err)
	}

	room.mu.Lock()
	e.broadcast(leagueID, EventRollbackApplied, RollbackAppliedPayload{
		Members:          room.memberViews(),
		RestoredPlayerID: res.RestoredPlayerID,
	})
	room.mu.Unlock()

	e.metrics.RecordAdminAction("rollback", "")
	e.audit(ctx, AuditEntry{
		LeagueID: leagueID,
		Action:   models.AuditActionRollback,
		ActorID:  actor,
		PlayerID: res.RestoredPlayerID,
		Payload:  map[string]any{"restored_player_id": res.RestoredPlayerID},
	})
	log.Info().Str("league_id", leagueID.String()).Msg("last sale rolled back")
	return res, nil
}

// Heartbeat records admin liveness. It resumes a room paused for admin
// silence and, when the room is idle, puts the next available player up.
func (e *Engine) Heartbeat(ctx context.Context, leagueID, memberID uuid.UUID) error {
	room, admin, err := e.lockAdmin(leagueID, memberID)
	if err != nil {
		return err
	}
	var (
		resumed  bool
		deadline *time.Time
	)
	if room.paused && room.pauseReason == models.PauseReasonAdminDisconnected && !room.selling.Load() {
		deadline = room.resume(e.clock.Now())
		resumed = true
		e.broadcast(leagueID, EventAuctionResumed, AuctionResumedPayload{NewTimerEndsAt: millis(deadline)})
	}
	startNext := room.status == models.AuctionStatusIdle && room.currentPlayer == nil
	actor := admin.UserID
	room.mu.Unlock()

	if resumed {
		e.audit(ctx, AuditEntry{
			LeagueID: leagueID,
			Action:   models.AuditActionResume,
			ActorID:  actor,
			Payload:  map[string]any{"reason": "admin_reconnected", "timer_ends_at": millis(deadline)},
		})
	}

	if startNext {
		if _, err := e.startItem(ctx, room, actor, nil); err != nil {
			switch CodeOf(err, "") {
			case CodeNoPlayersAvailable, CodeNotIdle, CodeSaleInProgress:
			default:
				log.Warn().Err(err).Str("league_id", leagueID.String()).Msg("failed to start next player on heartbeat")
			}
		}
	}
	return nil
}

// CheckAdminPulses pauses every running room whose admin has been silent
// longer than the pulse timeout. Each silence episode is announced once.
func (e *Engine) CheckAdminPulses() {
	now := e.clock.Now()
	for _, room := range e.registry.Rooms() {
		room.mu.Lock()
		if room.closed ||
			room.status != models.AuctionStatusActive ||
			room.paused ||
			room.selling.Load() ||
			now.Sub(room.lastAdminPulse) <= e.cfg.PulseTimeout {
			room.mu.Unlock()
			continue
		}
		silentFor := now.Sub(room.lastAdminPulse)
		room.pause(models.PauseReasonAdminDisconnected, now)
		remaining := durationMillis(room.remaining)
		announce := !room.adminSilenceNotified
		room.adminSilenceNotified = true
		e.broadcast(room.leagueID, EventAuctionPaused, AuctionPausedPayload{
			Reason:      models.PauseReasonAdminDisconnected,
			RemainingMs: remaining,
		})
		if announce {
			e.broadcast(room.leagueID, EventAdminSilent, struct{}{})
		}
		room.mu.Unlock()

		log.Warn().
			Str("league_id", room.leagueID.String()).
			Dur("silent_for", silentFor).
			Msg("admin silent, auction paused")
		if announce {
			e.metrics.RecordAdminSilence()
		}
	}
	e.metrics.SetActiveRooms(e.registry.Len())
}
