package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

func raw(s string) pqtype.NullRawMessage {
	return pqtype.NullRawMessage{RawMessage: []byte(s), Valid: true}
}

func TestDecodeSettings(t *testing.T) {
	tests := []struct {
		name    string
		in      pqtype.NullRawMessage
		want    models.LeagueSettings
		wantErr bool
	}{
		{
			name: "null column",
			in:   pqtype.NullRawMessage{},
			want: models.LeagueSettings{},
		},
		{
			name: "json null",
			in:   raw("null"),
			want: models.LeagueSettings{},
		},
		{
			name: "full settings",
			in: raw(`{"timer_seconds":20,"timer_decay_enabled":true,"min_start_bid":2,
				"timer_decay_rules":[{"from_bid":1,"to_bid":3,"seconds":15}],"budget":500}`),
			want: models.LeagueSettings{
				TimerSeconds:      20,
				TimerDecayEnabled: true,
				MinStartBid:       2,
				TimerDecayRules:   []models.DecayRule{{FromBid: 1, ToBid: 3, Seconds: 15}},
			},
		},
		{
			name: "numeric strings and fractions",
			in:   raw(`{"timer_seconds":"12","timer_decay_enabled":"true","timer_decay_rules":[{"from_bid":"4","to_bid":8.9,"seconds":"x"}]}`),
			want: models.LeagueSettings{
				TimerSeconds:      12,
				TimerDecayEnabled: true,
				TimerDecayRules:   []models.DecayRule{{FromBid: 4, ToBid: 8, Seconds: 0}},
			},
		},
		{
			name:    "not an object",
			in:      raw(`[1,2]`),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeSettings(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeSaleResult(t *testing.T) {
	got := decodeSaleResult(raw(`{"new_budget":85}`))
	require.NotNil(t, got.NewBudget)
	assert.Equal(t, 85, *got.NewBudget)

	got = decodeSaleResult(raw(`{"new_budget":"40"}`))
	require.NotNil(t, got.NewBudget)
	assert.Equal(t, 40, *got.NewBudget)

	for _, in := range []pqtype.NullRawMessage{{}, raw(`{}`), raw(`{"new_budget":null}`), raw(`true`), raw(`{"new_budget":"n/a"}`)} {
		assert.Nil(t, decodeSaleResult(in).NewBudget, string(in.RawMessage))
	}
}

func TestDecodeRollbackResult(t *testing.T) {
	got, err := decodeRollbackResult(raw(`{"success":true,"restored_player_id":42}`))
	require.NoError(t, err)
	assert.True(t, got.Success)
	require.NotNil(t, got.RestoredPlayerID)
	assert.Equal(t, int64(42), *got.RestoredPlayerID)

	got, err = decodeRollbackResult(raw(`{"success":false,"error":"NO_SALES"}`))
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.Nil(t, got.RestoredPlayerID)
	assert.Equal(t, "NO_SALES", got.Reason)

	_, err = decodeRollbackResult(pqtype.NullRawMessage{})
	assert.Error(t, err)
}

func TestProcedureError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "P0001", Message: "INSUFFICIENT_BUDGET"}
	err := fmt.Errorf("sell_player: %w", procedureError(pgErr))

	assert.Equal(t, "sell_player: INSUFFICIENT_BUDGET", err.Error())
	var pe *ProcedureError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "P0001", pe.Code)
	assert.ErrorIs(t, err, pgErr)

	plain := errors.New("conn reset")
	assert.Same(t, plain, procedureError(plain))
}
