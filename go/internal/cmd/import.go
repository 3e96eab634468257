package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/NicolaBuomp/fantabid/go/internal/auction/store"
	"github.com/NicolaBuomp/fantabid/go/internal/catalog"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func newImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "import a listone spreadsheet into a league catalog",
		ArgsUsage: "<file.xlsx>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "league", Usage: "league id", Required: true},
			&cli.StringFlag{Name: "actor", Usage: "user id of the league admin", Required: true},
			&cli.BoolFlag{Name: "overwrite", Usage: "replace players already in the catalog"},
			&cli.BoolFlag{Name: "dry-run", Usage: "print the preview without writing anything"},
			&cli.StringSliceFlag{Name: "team-mapping", Usage: "fanta team to member id, as name=uuid (repeatable)"},
		},
		Action: runImport,
	}
}

func runImport(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("a listone file is required", 2)
	}
	leagueID, err := uuid.Parse(c.String("league"))
	if err != nil {
		return cli.Exit("--league must be a UUID", 2)
	}
	actorID, err := uuid.Parse(c.String("actor"))
	if err != nil {
		return cli.Exit("--actor must be a UUID", 2)
	}
	mapping, err := parseTeamMapping(c.StringSlice("team-mapping"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open listone: %w", err)
	}
	defer file.Close()

	out := json.NewEncoder(c.App.Writer)
	out.SetIndent("", "  ")

	if c.Bool("dry-run") {
		parsed, err := catalog.ParseListone(file)
		if err != nil {
			return fmt.Errorf("%s: %w", catalog.CodeParseFailed, err)
		}
		return out.Encode(parsed.Preview)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	pool, err := setupDatabase(c.Context, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := store.NewRepository(pool, nil)
	importer := catalog.NewImporter(repo, repo, catalog.NewPreviewCache(cfg.Import.PreviewTTL, nil))

	preview, err := importer.Preview(c.Context, leagueID, actorID, catalog.Upload{
		Filename:    filepath.Base(path),
		ContentType: xlsxContentType,
		Body:        file,
	})
	if err != nil {
		return err
	}
	if err := out.Encode(preview); err != nil {
		return err
	}

	summary, err := importer.Confirm(c.Context, leagueID, actorID, c.Bool("overwrite"), mapping)
	if err != nil {
		return err
	}
	log.Info().Str("league_id", leagueID.String()).Int("importable", preview.Importable).Msg("listone imported")
	return out.Encode(summary)
}

// parseTeamMapping reads name=uuid pairs. The name may itself contain '='.
func parseTeamMapping(pairs []string) (map[string]uuid.UUID, error) {
	mapping := make(map[string]uuid.UUID, len(pairs))
	for _, pair := range pairs {
		i := strings.LastIndex(pair, "=")
		if i <= 0 {
			return nil, fmt.Errorf("invalid team mapping %q, want name=uuid", pair)
		}
		name := strings.TrimSpace(pair[:i])
		id, err := uuid.Parse(strings.TrimSpace(pair[i+1:]))
		if err != nil {
			return nil, fmt.Errorf("invalid member id in team mapping %q: %w", pair, err)
		}
		mapping[name] = id
	}
	return mapping, nil
}
