package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/NicolaBuomp/fantabid/go/internal/catalog"
)

const (
	codeUnauthorized    = "UNAUTHORIZED"
	codeValidationError = "VALIDATION_ERROR"
	codeFileRequired    = "FILE_REQUIRED"

	// maxUploadBytes caps the multipart body of a listone upload.
	maxUploadBytes = 10 << 20
)

// PlayerImporter is the two-step listone import.
type PlayerImporter interface {
	Preview(ctx context.Context, leagueID, actorID uuid.UUID, upload catalog.Upload) (catalog.Preview, error)
	Confirm(ctx context.Context, leagueID, actorID uuid.UUID, overwrite bool, mapping map[string]uuid.UUID) (json.RawMessage, error)
}

type ImportHandler struct {
	importer PlayerImporter
	auth     *Authenticator
}

func NewImportHandler(importer PlayerImporter, auth *Authenticator) *ImportHandler {
	return &ImportHandler{importer: importer, auth: auth}
}

type confirmImportRequest struct {
	TeamMapping       map[string]uuid.UUID `json:"team_mapping"`
	OverwriteExisting bool                 `json:"overwrite_existing"`
}

type previewResponse struct {
	Preview catalog.Preview `json:"preview"`
}

type confirmResponse struct {
	Imported json.RawMessage `json:"imported"`
}

// authorize resolves the caller and the league id from the route.
func (h *ImportHandler) authorize(w http.ResponseWriter, r *http.Request) (AuthUser, uuid.UUID, bool) {
	user, err := h.auth.Verify(ExtractBearerToken(r.Header.Get("Authorization")))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": codeUnauthorized})
		return AuthUser{}, uuid.Nil, false
	}
	leagueID, err := uuid.Parse(chi.URLParam(r, "leagueID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": codeValidationError, "message": "league id must be a UUID"})
		return AuthUser{}, uuid.Nil, false
	}
	return user, leagueID, true
}

// HandlePreview parses an uploaded listone and returns the preview.
func (h *ImportHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	user, leagueID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": codeFileRequired})
		return
	}
	defer file.Close()

	preview, err := h.importer.Preview(r.Context(), leagueID, user.ID, catalog.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		writeImportError(w, leagueID, err)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{Preview: preview})
}

// HandleConfirm commits the caller's cached preview.
func (h *ImportHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	user, leagueID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req confirmImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": codeValidationError, "message": err.Error()})
		return
	}

	summary, err := h.importer.Confirm(r.Context(), leagueID, user.ID, req.OverwriteExisting, req.TeamMapping)
	if err != nil {
		writeImportError(w, leagueID, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Imported: summary})
}

func writeImportError(w http.ResponseWriter, leagueID uuid.UUID, err error) {
	var ie *catalog.Error
	if !errors.As(err, &ie) {
		log.Error().Err(err).Str("league_id", leagueID.String()).Msg("player import failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": string(catalog.CodeConfirmFailed)})
		return
	}

	body := map[string]string{"error": string(ie.Code)}
	if ie.Code == catalog.CodeParseFailed && ie.Err != nil {
		body["message"] = ie.Err.Error()
	}
	writeJSON(w, importStatus(ie.Code), body)
}

func importStatus(code catalog.Code) int {
	switch code {
	case catalog.CodeLeagueNotFound:
		return http.StatusNotFound
	case catalog.CodeForbiddenAdminOnly:
		return http.StatusForbidden
	case catalog.CodeInvalidFileType, catalog.CodeParseFailed, catalog.CodeInvalidTeamMappingMember:
		return http.StatusBadRequest
	case catalog.CodePreviewExpired, catalog.CodePlayersAlreadyExist:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
