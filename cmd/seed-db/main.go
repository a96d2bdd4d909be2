package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/auth"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/exploration"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/storage/postgres"
)

type seedFile struct {
	Marches      []marcheYAML      `yaml:"marches"`
	Explorations []explorationYAML `yaml:"explorations"`
}

type marcheYAML struct {
	Ville       string      `yaml:"ville"`
	NomMarche   string      `yaml:"nom_marche"`
	Region      string      `yaml:"region"`
	Departement string      `yaml:"departement"`
	Descriptif  string      `yaml:"descriptif"`
	Date        string      `yaml:"date"`
	Latitude    *float64    `yaml:"latitude"`
	Longitude   *float64    `yaml:"longitude"`
	Tags        []string    `yaml:"tags"`
	Textes      []texteYAML `yaml:"textes"`
}

type texteYAML struct {
	Titre     string `yaml:"titre"`
	Contenu   string `yaml:"contenu"`
	TypeTexte string `yaml:"type_texte"`
}

type explorationYAML struct {
	Slug        string   `yaml:"slug"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Theme       string   `yaml:"theme"`
	Published   bool     `yaml:"published"`
	Marches     []string `yaml:"marches"`
}

var adminScopes = []string{auth.ScopeCMS, auth.ScopeCRM, auth.ScopeOps}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/seed.yaml", "path to the YAML seed file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or FREQ_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or FREQ_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("FREQ_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or FREQ_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("FREQ_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, apiKey, pepper string) error {
	seed, err := readSeed(seedPath)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.WithApplicationName("seed-db"))
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	marches := marche.NewService(postgres.NewMarcheRepository(pool))

	if err := seedMarches(ctx, marches, seed.Marches); err != nil {
		return errors.Wrap(err, "seed marches")
	}

	if err := seedExplorations(ctx, postgres.NewExplorationRepository(pool), marches, seed.Explorations); err != nil {
		return errors.Wrap(err, "seed explorations")
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func readSeed(path string) (*seedFile, error) {
	slog.Info("reading seed file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, errors.Wrap(err, "parse seed YAML")
	}
	return &seed, nil
}

// seedMarches creates missing marches with their textes. Existing marches
// are left untouched so that CMS edits survive a reseed.
func seedMarches(ctx context.Context, svc *marche.Service, list []marcheYAML) error {
	slog.Info("seeding marches", slog.Int("count", len(list)))

	for _, m := range list {
		existing, err := svc.FindBySlug(ctx, m.Ville, m.NomMarche)
		switch {
		case err == nil:
			slog.Info("marche exists", slog.String("slug", existing.Slug))
			continue
		case !errors.Is(err, marche.ErrNotFound):
			return errors.Wrapf(err, "find marche %s", m.Ville)
		}

		in, err := m.input()
		if err != nil {
			return err
		}
		created, err := svc.Create(ctx, in)
		if err != nil {
			return errors.Wrapf(err, "create marche %s", m.Ville)
		}

		for _, t := range m.Textes {
			if _, err := svc.AddTexte(ctx, created.ID, marche.Texte{
				Titre:     t.Titre,
				Contenu:   t.Contenu,
				TypeTexte: t.TypeTexte,
			}); err != nil {
				return errors.Wrapf(err, "add texte %q to %s", t.Titre, created.Slug)
			}
		}

		slog.Info("created marche", slog.String("slug", created.Slug), slog.Int("textes", len(m.Textes)))
	}

	return nil
}

func (m marcheYAML) input() (marche.Input, error) {
	in := marche.Input{
		Ville:       &m.Ville,
		NomMarche:   &m.NomMarche,
		Region:      &m.Region,
		Departement: &m.Departement,
		Descriptif:  &m.Descriptif,
		Latitude:    m.Latitude,
		Longitude:   m.Longitude,
		Tags:        m.Tags,
	}
	if m.Date != "" {
		d, err := time.Parse(time.DateOnly, m.Date)
		if err != nil {
			return in, errors.Wrapf(err, "parse date of %s", m.Ville)
		}
		in.Date = &d
	}
	return in, nil
}

func seedExplorations(ctx context.Context, repo exploration.Repository, marches *marche.Service, list []explorationYAML) error {
	slog.Info("seeding explorations", slog.Int("count", len(list)))

	for _, x := range list {
		e := &exploration.Exploration{
			Slug:        x.Slug,
			Name:        x.Name,
			Description: x.Description,
			Theme:       exploration.Theme(x.Theme),
			Published:   x.Published,
		}
		if e.Theme == "" {
			e.Theme = exploration.ThemeDefault
		}
		if !e.Theme.Valid() {
			return errors.Errorf("exploration %s: unknown theme %q", x.Slug, x.Theme)
		}

		for _, ref := range x.Marches {
			m, err := marches.Resolve(ctx, ref)
			if err != nil {
				return errors.Wrapf(err, "exploration %s: resolve marche %s", x.Slug, ref)
			}
			e.MarcheIDs = append(e.MarcheIDs, m.ID)
		}

		if err := repo.Upsert(ctx, e); err != nil {
			return errors.Wrapf(err, "upsert exploration %s", x.Slug)
		}

		slog.Info("upserted exploration", slog.String("slug", e.Slug), slog.Int("marches", len(e.MarcheIDs)))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo auth.Repository, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	if err := repo.Upsert(ctx, auth.APIKeyInfo{
		ID:      "admin",
		KeyHash: auth.HashKeyHex([]byte(pepper), apiKey),
		Name:    "Administration",
		Scopes:  adminScopes,
		Active:  true,
	}); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}

	slog.Info("upserted API key", slog.String("id", "admin"), slog.Any("scopes", adminScopes))

	return nil
}
