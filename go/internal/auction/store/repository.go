package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements auction.Store on Postgres. Sales and rollbacks go
// through the sell_player and rollback_last_sale procedures so money and
// ownership change atomically.
type Repository struct {
	db     DBTX
	tracer trace.Tracer
}

var _ auction.Store = (*Repository)(nil)

// NewRepository builds a repository. A nil tracer uses the global provider.
func NewRepository(db DBTX, tracer trace.Tracer) *Repository {
	if tracer == nil {
		tracer = otel.Tracer("github.com/NicolaBuomp/fantabid/go/internal/auction/store")
	}
	return &Repository{
		db:     db,
		tracer: tracer,
	}
}

func (r *Repository) start(ctx context.Context, name string, leagueID uuid.UUID) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "store."+name, trace.WithAttributes(
		attribute.String("league_id", leagueID.String()),
	))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

const getLeague = `
SELECT id, admin_id, settings
FROM leagues
WHERE id = $1`

func (r *Repository) GetLeague(ctx context.Context, leagueID uuid.UUID) (league models.League, err error) {
	ctx, span := r.start(ctx, "GetLeague", leagueID)
	defer func() { finish(span, err) }()

	var settings pqtype.NullRawMessage
	err = r.db.QueryRow(ctx, getLeague, leagueID).Scan(&league.ID, &league.AdminID, &settings)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.League{}, auction.ErrLeagueNotFound
	}
	if err != nil {
		return models.League{}, fmt.Errorf("failed to get league: %w", err)
	}

	league.Settings, err = decodeSettings(settings)
	if err != nil {
		log.Warn().Err(err).Str("league_id", leagueID.String()).Msg("invalid league settings, using defaults")
		league.Settings = models.LeagueSettings{}
		err = nil
	}
	return league, nil
}

const listApprovedMembers = `
SELECT m.id, m.user_id, m.role, m.status, m.budget_current, m.slots_filled, p.username
FROM league_members m
LEFT JOIN profiles p ON p.id = m.user_id
WHERE m.league_id = $1 AND m.status = 'APPROVED'
ORDER BY m.id`

func (r *Repository) ListApprovedMembers(ctx context.Context, leagueID uuid.UUID) (members []models.LeagueMember, err error) {
	ctx, span := r.start(ctx, "ListApprovedMembers", leagueID)
	defer func() { finish(span, err) }()

	rows, err := r.db.Query(ctx, listApprovedMembers, leagueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m        models.LeagueMember
			slots    pqtype.NullRawMessage
			username *string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Status, &m.BudgetCurrent, &slots, &username); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if username != nil {
			m.Username = *username
		}
		m.SlotsFilled = models.ParseSlotsFilled(slots.RawMessage)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	span.SetAttributes(attribute.Int("members", len(members)))
	return members, nil
}

const playerColumns = `id, league_id, name, team_real, roles, roles_mantra, status`

const getPlayer = `
SELECT ` + playerColumns + `
FROM players
WHERE league_id = $1 AND id = $2`

const nextAvailablePlayer = `
SELECT ` + playerColumns + `
FROM players
WHERE league_id = $1 AND status = 'AVAILABLE'
ORDER BY name, id
LIMIT 1`

func scanPlayer(row pgx.Row) (models.AuctionPlayer, error) {
	var p models.AuctionPlayer
	var teamReal *string
	err := row.Scan(&p.ID, &p.LeagueID, &p.Name, &teamReal, &p.Roles, &p.RolesMantra, &p.Status)
	if teamReal != nil {
		p.TeamReal = *teamReal
	}
	if p.Roles == nil {
		p.Roles = []string{}
	}
	if p.RolesMantra == nil {
		p.RolesMantra = []string{}
	}
	return p, err
}

func (r *Repository) GetPlayer(ctx context.Context, leagueID uuid.UUID, playerID int64) (player models.AuctionPlayer, err error) {
	ctx, span := r.start(ctx, "GetPlayer", leagueID)
	span.SetAttributes(attribute.Int64("player_id", playerID))
	defer func() { finish(span, err) }()

	player, err = scanPlayer(r.db.QueryRow(ctx, getPlayer, leagueID, playerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AuctionPlayer{}, auction.ErrPlayerNotFound
	}
	if err != nil {
		return models.AuctionPlayer{}, fmt.Errorf("failed to get player: %w", err)
	}
	return player, nil
}

func (r *Repository) NextAvailablePlayer(ctx context.Context, leagueID uuid.UUID) (player models.AuctionPlayer, err error) {
	ctx, span := r.start(ctx, "NextAvailablePlayer", leagueID)
	defer func() { finish(span, err) }()

	player, err = scanPlayer(r.db.QueryRow(ctx, nextAvailablePlayer, leagueID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AuctionPlayer{}, auction.ErrNoPlayers
	}
	if err != nil {
		return models.AuctionPlayer{}, fmt.Errorf("failed to get next player: %w", err)
	}
	return player, nil
}

const setPlayerStatus = `
UPDATE players
SET status = $3
WHERE league_id = $1 AND id = $2`

func (r *Repository) SetPlayerStatus(ctx context.Context, leagueID uuid.UUID, playerID int64, status models.PlayerStatus) (err error) {
	ctx, span := r.start(ctx, "SetPlayerStatus", leagueID)
	span.SetAttributes(attribute.Int64("player_id", playerID), attribute.String("status", string(status)))
	defer func() { finish(span, err) }()

	tag, err := r.db.Exec(ctx, setPlayerStatus, leagueID, playerID, string(status))
	if err != nil {
		return fmt.Errorf("failed to set player status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auction.ErrPlayerNotFound
	}
	return nil
}

const sellPlayer = `
SELECT sell_player(
  p_player_id => $1,
  p_winner_member_id => $2,
  p_price => $3,
  p_league_id => $4,
  p_actor_id => $5,
  p_player_role => $6
)`

func (r *Repository) SellPlayer(ctx context.Context, req auction.SaleRequest) (res auction.SaleResult, err error) {
	ctx, span := r.start(ctx, "SellPlayer", req.LeagueID)
	span.SetAttributes(
		attribute.Int64("player_id", req.PlayerID),
		attribute.Int("price", req.Price),
	)
	defer func() { finish(span, err) }()

	var out pqtype.NullRawMessage
	err = r.db.QueryRow(ctx, sellPlayer,
		req.PlayerID, req.WinnerMemberID, req.Price, req.LeagueID, req.ActorID, req.PlayerRole,
	).Scan(&out)
	if err != nil {
		return auction.SaleResult{}, fmt.Errorf("sell_player: %w", procedureError(err))
	}
	return decodeSaleResult(out), nil
}

const rollbackLastSale = `
SELECT rollback_last_sale(
  p_league_id => $1,
  p_actor_id => $2
)`

func (r *Repository) RollbackLastSale(ctx context.Context, leagueID, actorID uuid.UUID) (res auction.RollbackResult, err error) {
	ctx, span := r.start(ctx, "RollbackLastSale", leagueID)
	defer func() { finish(span, err) }()

	var out pqtype.NullRawMessage
	if err = r.db.QueryRow(ctx, rollbackLastSale, leagueID, actorID).Scan(&out); err != nil {
		return auction.RollbackResult{}, fmt.Errorf("rollback_last_sale: %w", procedureError(err))
	}
	return decodeRollbackResult(out)
}

const insertAuctionLog = `
INSERT INTO auction_logs (league_id, action, actor_id, player_id, payload)
VALUES ($1, $2, $3, $4, $5)`

func (r *Repository) LogAction(ctx context.Context, entry auction.AuditEntry) (err error) {
	ctx, span := r.start(ctx, "LogAction", entry.LeagueID)
	span.SetAttributes(attribute.String("action", string(entry.Action)))
	defer func() { finish(span, err) }()

	payload := entry.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	_, err = r.db.Exec(ctx, insertAuctionLog,
		entry.LeagueID,
		string(entry.Action),
		entry.ActorID,
		entry.PlayerID,
		pqtype.NullRawMessage{RawMessage: raw, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("failed to insert auction log: %w", err)
	}
	return nil
}

// procedureError unwraps the message a stored procedure raised so callers
// see the procedure's own error code.
func procedureError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &ProcedureError{Code: pgErr.Code, Message: pgErr.Message, Err: err}
	}
	return err
}

// ProcedureError is an exception raised inside a stored procedure.
type ProcedureError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProcedureError) Error() string { return e.Message }

func (e *ProcedureError) Unwrap() error { return e.Err }
