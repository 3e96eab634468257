// Package catalog imports the season's player list ("listone") from an
// .xlsx workbook into a league's player catalog.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// headerScanRows bounds how far down the sheet the header row may sit.
const headerScanRows = 15

type field int

const (
	fieldExternalID field = iota
	fieldName
	fieldExcluded
	fieldTeam
	fieldAge
	fieldRoleClassic
	fieldRoleMantra
	fieldGamesPlayed
	fieldAvgRating
	fieldAvgFanta
	fieldFVM
	fieldQuotation
	fieldFantaTeam
	fieldCost
	numFields
)

var fieldNames = [numFields]string{
	"id", "name", "excluded", "team", "age", "role", "role_mantra",
	"games_played", "avg_rating", "avg_fanta", "fvm", "quotation", "fanta_team", "cost",
}

var headerAliases = [numFields][]string{
	fieldExternalID:  {"#", "id", "cod", "codice", "d"},
	fieldName:        {"nome", "giocatore", "nome giocatore", "calciatore", "name"},
	fieldExcluded:    {"fuori lista", "fuorilista", "escluso", "fuori"},
	fieldTeam:        {"sq.", "sq", "squadra", "squadra reale", "team", "club"},
	fieldAge:         {"under", "età", "age", "eta"},
	fieldRoleClassic: {"r.", "r", "ruolo", "ruolo classic", "role"},
	fieldRoleMantra:  {"rm", "r.mantra", "r mantra", "ruolo mantra", "ruolo-mantra", "rmantra", "mantra"},
	fieldGamesPlayed: {"pgv", "pg", "partite"},
	fieldAvgRating:   {"mv", "media voto", "media"},
	fieldAvgFanta:    {"fm", "fantamedia", "fanta media"},
	fieldFVM:         {"fvm/1000", "fvm", "fantavalutazione"},
	fieldQuotation:   {"quot.", "quot", "quotazione", "q"},
	fieldFantaTeam:   {"fantasquadra", "fanta squadra", "squadra fanta", "team name"},
	fieldCost:        {"costo", "prezzo", "cost", "price"},
}

var requiredFields = []field{fieldName, fieldTeam, fieldRoleClassic}

var (
	ErrEmptyWorkbook = errors.New("LISTONE_EMPTY_WORKBOOK")
	ErrEmptySheet    = errors.New("LISTONE_EMPTY_SHEET")
)

// MissingHeadersError is returned when no row in the scanned range carries
// every required column.
type MissingHeadersError struct {
	Missing []string
}

func (e *MissingHeadersError) Error() string {
	return "LISTONE_MISSING_HEADERS:" + strings.Join(e.Missing, ",")
}

// ImportedPlayer is one importable row of the listone.
type ImportedPlayer struct {
	ExternalID  *int                `json:"external_id"`
	Name        string              `json:"name"`
	TeamReal    string              `json:"team_real"`
	Roles       []string            `json:"roles"`
	RolesMantra []string            `json:"roles_mantra"`
	FVM         int                 `json:"fvm"`
	Age         *int                `json:"age"`
	GamesPlayed *int                `json:"games_played"`
	AvgRating   *float64            `json:"avg_rating"`
	AvgFanta    *float64            `json:"avg_fanta"`
	Quotation   *int                `json:"quotation"`
	Status      models.PlayerStatus `json:"status"`
	FantaTeam   *string             `json:"fanta_team"`
	Cost        *int                `json:"cost"`
}

type FantaTeamSummary struct {
	Name         string `json:"name"`
	PlayersCount int    `json:"players_count"`
	TotalCost    int    `json:"total_cost"`
}

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Preview summarises a parsed listone before it is committed.
type Preview struct {
	TotalRows          int                `json:"total_rows"`
	ExcludedFuoriLista int                `json:"excluded_fuori_lista"`
	Importable         int                `json:"importable"`
	Available          int                `json:"available"`
	Sold               int                `json:"sold"`
	FantaTeams         []FantaTeamSummary `json:"fanta_teams"`
	Warnings           []string           `json:"warnings"`
	Errors             []RowError         `json:"errors"`
}

type ParseResult struct {
	Players []ImportedPlayer
	Preview Preview
}

// ParseListone reads the first sheet of an .xlsx workbook.
func ParseListone(r io.Reader) (ParseResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return ParseResult{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ParseResult{}, ErrEmptyWorkbook
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return ParseResult{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return parseRows(rows)
}

func parseRows(rows [][]string) (ParseResult, error) {
	if len(rows) == 0 {
		return ParseResult{}, ErrEmptySheet
	}

	headerRow, idx, err := detectHeaderRow(rows)
	if err != nil {
		return ParseResult{}, err
	}

	var (
		players  []ImportedPlayer
		excluded int
		preview  = Preview{
			Warnings: []string{},
			Errors:   []RowError{},
		}
	)

	for i := headerRow + 1; i < len(rows); i++ {
		rowNumber := i + 1
		row := rows[i]
		cell := func(f field) string {
			col := idx[f]
			if col < 0 || col >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[col])
		}

		name := cell(fieldName)
		if name == "" {
			continue
		}
		if cell(fieldExcluded) != "" {
			excluded++
			continue
		}

		team := cell(fieldTeam)
		role := strings.ToUpper(cell(fieldRoleClassic))
		if team == "" || role == "" {
			preview.Errors = append(preview.Errors, RowError{Row: rowNumber, Message: "Missing required team or classic role"})
			continue
		}

		mantraRaw := role
		if idx[fieldRoleMantra] >= 0 {
			mantraRaw = cell(fieldRoleMantra)
		}
		mantra := splitMantra(mantraRaw)
		if len(mantra) == 0 {
			mantra = []string{role}
		}

		cost := parseInteger(cell(fieldCost))
		var fantaTeam *string
		if ft := cell(fieldFantaTeam); ft != "" {
			fantaTeam = &ft
		}
		if fantaTeam != nil && cost == nil {
			zero := 0
			cost = &zero
			preview.Warnings = append(preview.Warnings,
				fmt.Sprintf("Row %d: fanta team present without cost, defaulted to 0", rowNumber))
		}

		status := models.PlayerStatusAvailable
		if fantaTeam != nil {
			status = models.PlayerStatusSold
			if *cost == 0 {
				preview.Warnings = append(preview.Warnings, fmt.Sprintf("Row %d: sold player has cost 0", rowNumber))
			}
		}

		fvm := 1
		if v := parseInteger(cell(fieldFVM)); v != nil {
			fvm = *v
		}

		p := ImportedPlayer{
			ExternalID:  parseInteger(cell(fieldExternalID)),
			Name:        name,
			TeamReal:    team,
			Roles:       []string{role},
			RolesMantra: mantra,
			FVM:         fvm,
			Age:         parseInteger(cell(fieldAge)),
			GamesPlayed: parseInteger(cell(fieldGamesPlayed)),
			AvgRating:   parseFloat(cell(fieldAvgRating)),
			AvgFanta:    parseFloat(cell(fieldAvgFanta)),
			Quotation:   parseInteger(cell(fieldQuotation)),
			Status:      status,
			FantaTeam:   fantaTeam,
			Cost:        cost,
		}
		if msgs := validate(p); len(msgs) > 0 {
			preview.Errors = append(preview.Errors, RowError{Row: rowNumber, Message: strings.Join(msgs, ", ")})
			continue
		}
		players = append(players, p)
	}

	teams := map[string]*FantaTeamSummary{}
	for _, p := range players {
		if p.Status != models.PlayerStatusSold {
			preview.Available++
			continue
		}
		preview.Sold++
		if p.FantaTeam == nil {
			continue
		}
		t, ok := teams[*p.FantaTeam]
		if !ok {
			t = &FantaTeamSummary{Name: *p.FantaTeam}
			teams[*p.FantaTeam] = t
		}
		t.PlayersCount++
		if p.Cost != nil {
			t.TotalCost += *p.Cost
		}
	}
	preview.FantaTeams = make([]FantaTeamSummary, 0, len(teams))
	for _, t := range teams {
		preview.FantaTeams = append(preview.FantaTeams, *t)
	}
	sort.Slice(preview.FantaTeams, func(i, j int) bool {
		return strings.ToLower(preview.FantaTeams[i].Name) < strings.ToLower(preview.FantaTeams[j].Name)
	})

	preview.TotalRows = len(rows) - (headerRow + 1)
	preview.ExcludedFuoriLista = excluded
	preview.Importable = len(players)

	return ParseResult{Players: players, Preview: preview}, nil
}

func validate(p ImportedPlayer) []string {
	var msgs []string
	if p.FVM < 1 {
		msgs = append(msgs, "fvm must be at least 1")
	}
	for _, r := range p.RolesMantra {
		if r == "" {
			msgs = append(msgs, "empty mantra role")
			break
		}
	}
	return msgs
}

func splitMantra(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "/") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func detectHeaderRow(rows [][]string) (int, [numFields]int, error) {
	scan := min(len(rows), headerScanRows)
	for i := 0; i < scan; i++ {
		idx, missing := findHeaderIndexes(rows[i])
		if len(missing) == 0 {
			return i, idx, nil
		}
	}
	_, missing := findHeaderIndexes(rows[0])
	return 0, [numFields]int{}, &MissingHeadersError{Missing: missing}
}

func findHeaderIndexes(row []string) ([numFields]int, []string) {
	var idx [numFields]int
	normalized := make([]string, len(row))
	for i, h := range row {
		normalized[i] = normalizeHeader(h)
	}

	for f := field(0); f < numFields; f++ {
		idx[f] = -1
		aliases := make(map[string]struct{}, len(headerAliases[f]))
		for _, a := range headerAliases[f] {
			aliases[normalizeHeader(a)] = struct{}{}
		}
		for col, h := range normalized {
			if _, ok := aliases[h]; ok {
				idx[f] = col
				break
			}
		}
	}

	var missing []string
	for _, f := range requiredFields {
		if idx[f] < 0 {
			missing = append(missing, fieldNames[f])
		}
	}
	return idx, missing
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// normalizeHeader lowercases, strips accents and keeps only [a-z0-9#].
func normalizeHeader(s string) string {
	folded, _, err := transform.String(stripMarks, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		folded = strings.ToLower(s)
	}
	var b strings.Builder
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '#' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	leadingInt   = regexp.MustCompile(`^[+-]?\d+`)
	leadingFloat = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)
)

// parseInteger reads the leading integer of a cell, so "12.5" is 12.
func parseInteger(s string) *int {
	m := leadingInt.FindString(strings.TrimSpace(s))
	if m == "" {
		return nil
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &v
}

// parseFloat accepts a decimal comma.
func parseFloat(s string) *float64 {
	s = strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	m := leadingFloat.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}
