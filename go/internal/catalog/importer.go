package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

type Code string

const (
	CodeLeagueNotFound           Code = "LEAGUE_NOT_FOUND"
	CodeForbiddenAdminOnly       Code = "FORBIDDEN_ADMIN_ONLY"
	CodeInvalidFileType          Code = "INVALID_FILE_TYPE"
	CodeParseFailed              Code = "LISTONE_PARSE_FAILED"
	CodePreviewExpired           Code = "IMPORT_PREVIEW_EXPIRED"
	CodePlayersAlreadyExist      Code = "PLAYERS_ALREADY_EXIST"
	CodeInvalidTeamMappingMember Code = "INVALID_TEAM_MAPPING_MEMBER"
	CodeConfirmFailed            Code = "IMPORT_CONFIRM_FAILED"
)

// Error carries a stable code for the import flow.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the import code of err, or CodeConfirmFailed.
func CodeOf(err error) Code {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return CodeConfirmFailed
}

type LeagueReader interface {
	GetLeague(ctx context.Context, leagueID uuid.UUID) (models.League, error)
}

// ConfirmRequest is the payload of confirm_players_import_atomic.
type ConfirmRequest struct {
	LeagueID          uuid.UUID
	ActorID           uuid.UUID
	OverwriteExisting bool
	Players           []ImportedPlayer
	// TeamMapping maps a fanta team name from the file to a league member.
	TeamMapping map[string]uuid.UUID
}

type Confirmer interface {
	ConfirmPlayersImport(ctx context.Context, req ConfirmRequest) (json.RawMessage, error)
}

// Upload is an uploaded listone file.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// IsSpreadsheet reports whether the upload looks like an .xlsx file.
func (u Upload) IsSpreadsheet() bool {
	name := strings.ToLower(u.Filename)
	mime := strings.ToLower(u.ContentType)
	return strings.HasSuffix(name, ".xlsx") ||
		strings.Contains(mime, "spreadsheetml") ||
		strings.Contains(mime, "excel")
}

// Importer runs the two-step listone import: parse and preview, then
// confirm the cached preview atomically.
type Importer struct {
	leagues   LeagueReader
	confirmer Confirmer
	cache     *PreviewCache
}

func NewImporter(leagues LeagueReader, confirmer Confirmer, cache *PreviewCache) *Importer {
	if cache == nil {
		cache = NewPreviewCache(DefaultPreviewTTL, nil)
	}
	return &Importer{
		leagues:   leagues,
		confirmer: confirmer,
		cache:     cache,
	}
}

func (i *Importer) authorize(ctx context.Context, leagueID, actorID uuid.UUID) error {
	league, err := i.leagues.GetLeague(ctx, leagueID)
	if errors.Is(err, auction.ErrLeagueNotFound) {
		return &Error{Code: CodeLeagueNotFound, Err: err}
	}
	if err != nil {
		return fmt.Errorf("failed to load league: %w", err)
	}
	if league.AdminID != actorID {
		return &Error{Code: CodeForbiddenAdminOnly}
	}
	return nil
}

// Preview parses the upload and caches the importable rows for Confirm.
func (i *Importer) Preview(ctx context.Context, leagueID, actorID uuid.UUID, upload Upload) (Preview, error) {
	if err := i.authorize(ctx, leagueID, actorID); err != nil {
		return Preview{}, err
	}
	if !upload.IsSpreadsheet() {
		return Preview{}, &Error{Code: CodeInvalidFileType}
	}

	parsed, err := ParseListone(upload.Body)
	if err != nil {
		log.Error().Err(err).Str("league_id", leagueID.String()).Msg("Failed to parse listone file")
		return Preview{}, &Error{Code: CodeParseFailed, Err: err}
	}

	i.cache.Put(leagueID, actorID, parsed.Players)
	log.Info().
		Str("league_id", leagueID.String()).
		Int("importable", parsed.Preview.Importable).
		Int("errors", len(parsed.Preview.Errors)).
		Msg("Listone preview ready")
	return parsed.Preview, nil
}

// Confirm commits the cached preview and returns the procedure's summary.
func (i *Importer) Confirm(ctx context.Context, leagueID, actorID uuid.UUID, overwrite bool, mapping map[string]uuid.UUID) (json.RawMessage, error) {
	if err := i.authorize(ctx, leagueID, actorID); err != nil {
		return nil, err
	}
	players, ok := i.cache.Get(leagueID, actorID)
	if !ok {
		return nil, &Error{Code: CodePreviewExpired}
	}
	if mapping == nil {
		mapping = map[string]uuid.UUID{}
	}

	summary, err := i.confirmer.ConfirmPlayersImport(ctx, ConfirmRequest{
		LeagueID:          leagueID,
		ActorID:           actorID,
		OverwriteExisting: overwrite,
		Players:           players,
		TeamMapping:       mapping,
	})
	if err != nil {
		log.Error().Err(err).Str("league_id", leagueID.String()).Msg("Import confirm atomic RPC failed")
		return nil, &Error{Code: confirmCode(err), Err: err}
	}

	i.cache.Clear(leagueID, actorID)
	return summary, nil
}

// confirmCode maps the exception text raised by the procedure.
func confirmCode(err error) Code {
	msg := err.Error()
	for _, code := range []Code{
		CodePlayersAlreadyExist,
		CodeInvalidTeamMappingMember,
		CodeForbiddenAdminOnly,
		CodeLeagueNotFound,
	} {
		if strings.Contains(msg, string(code)) {
			return code
		}
	}
	return CodeConfirmFailed
}
