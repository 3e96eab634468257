package catalog

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// workbook renders rows into an in-memory .xlsx file.
func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParseListone(t *testing.T) {
	buf := workbook(t, [][]any{
		{"Listone Serie A 2025/26"},
		{},
		{"Id", "R", "RM", "Nome", "Squadra", "Età", "FVM", "Fuori lista", "Fantasquadra", "Costo"},
		{101, "c", "M/C", "Barella", "Inter", 28, 120, nil, nil, nil},
		{102, "A", "Pc", "Lautaro", "Inter", 28, 300, nil, "Real Madrink", 250},
		{103, "A", "", "Vlahovic", "Juventus", 25, 150, "*", nil, nil},
		{104, "P", "Por", "Sommer", "Inter", 36, 20, nil, "Real Madrink", nil},
		{105, "D", "Dc", "", "Milan", 30, 10, nil, nil, nil},
		{106, "", "Dc", "Gatti", "Juventus", 27, 10, nil, nil, nil},
	})

	got, err := ParseListone(buf)
	require.NoError(t, err)

	require.Len(t, got.Players, 3)
	barella := got.Players[0]
	assert.Equal(t, "Barella", barella.Name)
	assert.Equal(t, []string{"C"}, barella.Roles)
	assert.Equal(t, []string{"M", "C"}, barella.RolesMantra)
	assert.Equal(t, models.PlayerStatusAvailable, barella.Status)
	require.NotNil(t, barella.ExternalID)
	assert.Equal(t, 101, *barella.ExternalID)
	assert.Nil(t, barella.FantaTeam)

	lautaro := got.Players[1]
	assert.Equal(t, models.PlayerStatusSold, lautaro.Status)
	require.NotNil(t, lautaro.Cost)
	assert.Equal(t, 250, *lautaro.Cost)

	sommer := got.Players[2]
	assert.Equal(t, models.PlayerStatusSold, sommer.Status)
	require.NotNil(t, sommer.Cost)
	assert.Equal(t, 0, *sommer.Cost)

	p := got.Preview
	assert.Equal(t, 6, p.TotalRows)
	assert.Equal(t, 1, p.ExcludedFuoriLista)
	assert.Equal(t, 3, p.Importable)
	assert.Equal(t, 1, p.Available)
	assert.Equal(t, 2, p.Sold)
	assert.Equal(t, []FantaTeamSummary{{Name: "Real Madrink", PlayersCount: 2, TotalCost: 250}}, p.FantaTeams)
	assert.Equal(t, []string{
		"Row 7: fanta team present without cost, defaulted to 0",
		"Row 7: sold player has cost 0",
	}, p.Warnings)
	assert.Equal(t, []RowError{{Row: 9, Message: "Missing required team or classic role"}}, p.Errors)
}

func TestParseRows(t *testing.T) {
	t.Run("missing headers", func(t *testing.T) {
		_, err := parseRows([][]string{{"Nome", "Quotazione"}, {"Barella", "20"}})
		var mh *MissingHeadersError
		require.True(t, errors.As(err, &mh))
		assert.Equal(t, []string{"team", "role"}, mh.Missing)
		assert.Equal(t, "LISTONE_MISSING_HEADERS:team,role", err.Error())
	})

	t.Run("empty sheet", func(t *testing.T) {
		_, err := parseRows(nil)
		assert.ErrorIs(t, err, ErrEmptySheet)
	})

	t.Run("header beyond scan window", func(t *testing.T) {
		rows := make([][]string, headerScanRows)
		rows = append(rows, []string{"Nome", "Sq", "R"})
		_, err := parseRows(rows)
		var mh *MissingHeadersError
		assert.True(t, errors.As(err, &mh))
	})

	t.Run("mantra defaults to classic role", func(t *testing.T) {
		got, err := parseRows([][]string{
			{"Nome", "Sq.", "Ruolo", "FVM", "MV"},
			{"Dimarco", "Inter", "d", "", "6,25"},
		})
		require.NoError(t, err)
		require.Len(t, got.Players, 1)
		assert.Equal(t, []string{"D"}, got.Players[0].RolesMantra)
		assert.Equal(t, 1, got.Players[0].FVM)
		require.NotNil(t, got.Players[0].AvgRating)
		assert.InDelta(t, 6.25, *got.Players[0].AvgRating, 1e-9)
	})

	t.Run("invalid fvm is a row error", func(t *testing.T) {
		got, err := parseRows([][]string{
			{"Nome", "Sq.", "Ruolo", "FVM"},
			{"Dimarco", "Inter", "D", "0"},
		})
		require.NoError(t, err)
		assert.Empty(t, got.Players)
		assert.Equal(t, []RowError{{Row: 2, Message: "fvm must be at least 1"}}, got.Preview.Errors)
	})
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"  Età ":        "eta",
		"R. Mantra":     "rmantra",
		"FVM/1000":      "fvm1000",
		"#":             "#",
		"Squadra Fanta": "squadrafanta",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeHeader(in), in)
	}
}

func TestParseNumbers(t *testing.T) {
	assert.Equal(t, 12, *parseInteger("12.5"))
	assert.Equal(t, -3, *parseInteger(" -3abc"))
	assert.Nil(t, parseInteger(""))
	assert.Nil(t, parseInteger("n/a"))

	assert.InDelta(t, 6.5, *parseFloat("6,5"), 1e-9)
	assert.InDelta(t, 7.0, *parseFloat("7"), 1e-9)
	assert.Nil(t, parseFloat("-"))
}
