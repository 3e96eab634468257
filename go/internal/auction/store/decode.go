package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sqlc-dev/pqtype"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// looseSettings accepts numbers encoded either as JSON numbers or as
// numeric strings, since settings are edited by hand in older leagues.
type looseSettings struct {
	TimerSeconds      json.RawMessage `json:"timer_seconds"`
	TimerDecayEnabled json.RawMessage `json:"timer_decay_enabled"`
	TimerDecayRules   []struct {
		FromBid json.RawMessage `json:"from_bid"`
		ToBid   json.RawMessage `json:"to_bid"`
		Seconds json.RawMessage `json:"seconds"`
	} `json:"timer_decay_rules"`
	MinStartBid json.RawMessage `json:"min_start_bid"`
}

func decodeSettings(raw pqtype.NullRawMessage) (models.LeagueSettings, error) {
	if !raw.Valid || len(bytes.TrimSpace(raw.RawMessage)) == 0 || bytes.Equal(bytes.TrimSpace(raw.RawMessage), []byte("null")) {
		return models.LeagueSettings{}, nil
	}

	var in looseSettings
	if err := json.Unmarshal(raw.RawMessage, &in); err != nil {
		return models.LeagueSettings{}, fmt.Errorf("decode settings: %w", err)
	}

	out := models.LeagueSettings{
		TimerSeconds:      looseInt(in.TimerSeconds),
		TimerDecayEnabled: looseBool(in.TimerDecayEnabled),
		MinStartBid:       looseInt(in.MinStartBid),
	}
	for _, r := range in.TimerDecayRules {
		out.TimerDecayRules = append(out.TimerDecayRules, models.DecayRule{
			FromBid: looseInt(r.FromBid),
			ToBid:   looseInt(r.ToBid),
			Seconds: looseInt(r.Seconds),
		})
	}
	return out, nil
}

// looseNumber reports the value of a JSON number or numeric string.
func looseNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func looseInt(raw json.RawMessage) int {
	f, ok := looseNumber(raw)
	if !ok {
		return 0
	}
	return int(math.Floor(f))
}

func looseBool(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parsed, _ := strconv.ParseBool(strings.TrimSpace(s))
		return parsed
	}
	return false
}

// decodeSaleResult reads new_budget from the sell_player result. A missing
// or non-numeric balance leaves NewBudget nil and the engine reconciles.
func decodeSaleResult(raw pqtype.NullRawMessage) auction.SaleResult {
	if !raw.Valid {
		return auction.SaleResult{}
	}
	var out struct {
		NewBudget json.RawMessage `json:"new_budget"`
	}
	if err := json.Unmarshal(raw.RawMessage, &out); err != nil {
		return auction.SaleResult{}
	}
	f, ok := looseNumber(out.NewBudget)
	if !ok {
		return auction.SaleResult{}
	}
	budget := int(math.Floor(f))
	return auction.SaleResult{NewBudget: &budget}
}

func decodeRollbackResult(raw pqtype.NullRawMessage) (auction.RollbackResult, error) {
	if !raw.Valid {
		return auction.RollbackResult{}, fmt.Errorf("rollback_last_sale: empty result")
	}
	var out struct {
		Success          bool            `json:"success"`
		RestoredPlayerID json.RawMessage `json:"restored_player_id"`
		Error            string          `json:"error"`
	}
	if err := json.Unmarshal(raw.RawMessage, &out); err != nil {
		return auction.RollbackResult{}, fmt.Errorf("rollback_last_sale: decode result: %w", err)
	}

	res := auction.RollbackResult{
		Success: out.Success,
		Reason:  out.Error,
	}
	if f, ok := looseNumber(out.RestoredPlayerID); ok {
		id := int64(f)
		res.RestoredPlayerID = &id
	}
	return res, nil
}
