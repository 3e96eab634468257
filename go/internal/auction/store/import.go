package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sqlc-dev/pqtype"
	"go.opentelemetry.io/otel/attribute"

	"github.com/NicolaBuomp/fantabid/go/internal/catalog"
)

var _ catalog.Confirmer = (*Repository)(nil)

// importStatementTimeout covers a full season catalog (about 600 rows).
const importStatementTimeout = "60s"

const confirmPlayersImport = `
SELECT confirm_players_import_atomic(
  p_league_id => $1,
  p_actor_id => $2,
  p_overwrite_existing => $3,
  p_players => $4,
  p_team_mapping => $5
)`

// ConfirmPlayersImport writes the catalog and pre-assigned rosters in one
// procedure call.
func (r *Repository) ConfirmPlayersImport(ctx context.Context, req catalog.ConfirmRequest) (summary json.RawMessage, err error) {
	ctx, span := r.start(ctx, "ConfirmPlayersImport", req.LeagueID)
	span.SetAttributes(
		attribute.Int("players", len(req.Players)),
		attribute.Bool("overwrite", req.OverwriteExisting),
	)
	defer func() { finish(span, err) }()

	players, err := json.Marshal(req.Players)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal players: %w", err)
	}
	mapping, err := json.Marshal(req.TeamMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal team mapping: %w", err)
	}

	err = runInTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SET LOCAL statement_timeout = '"+importStatementTimeout+"'"); err != nil {
			return fmt.Errorf("failed to set statement timeout: %w", err)
		}
		var out pqtype.NullRawMessage
		err := tx.QueryRow(ctx, confirmPlayersImport,
			req.LeagueID,
			req.ActorID,
			req.OverwriteExisting,
			pqtype.NullRawMessage{RawMessage: players, Valid: true},
			pqtype.NullRawMessage{RawMessage: mapping, Valid: true},
		).Scan(&out)
		if err != nil {
			return fmt.Errorf("confirm_players_import_atomic: %w", procedureError(err))
		}
		if out.Valid {
			summary = out.RawMessage
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if summary == nil {
		summary = json.RawMessage("null")
	}
	return summary, nil
}
