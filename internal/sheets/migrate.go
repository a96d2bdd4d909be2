package sheets

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/textnorm"
)

// Source yields spreadsheet rows, header first.
type Source interface {
	Rows(ctx context.Context) ([][]string, error)
}

// Marches is the subset of the marche service used by the migration.
type Marches interface {
	FindBySlug(ctx context.Context, ville, nom string) (*marche.Marche, error)
	Create(ctx context.Context, in marche.Input) (*marche.Marche, error)
	Update(ctx context.Context, idOrSlug string, in marche.Input) (*marche.Marche, error)
}

// Skip explains why a row was not imported. Row is the 1-based sheet row.
type Skip struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Report summarizes a migration.
type Report struct {
	Read    int    `json:"read"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Skipped []Skip `json:"skipped"`
}

// Column names a marche field.
type Column string

const (
	ColVille       Column = "ville"
	ColNom         Column = "nom_marche"
	ColRegion      Column = "region"
	ColDepartement Column = "departement"
	ColDate        Column = "date"
	ColLatitude    Column = "latitude"
	ColLongitude   Column = "longitude"
	ColDescriptif  Column = "descriptif"
	ColTags        Column = "tags"
)

var aliases = map[string]Column{
	"ville":       ColVille,
	"nom_marche":  ColNom,
	"nom":         ColNom,
	"region":      ColRegion,
	"departement": ColDepartement,
	"date":        ColDate,
	"latitude":    ColLatitude,
	"lat":         ColLatitude,
	"longitude":   ColLongitude,
	"lng":         ColLongitude,
	"lon":         ColLongitude,
	"descriptif":  ColDescriptif,
	"description": ColDescriptif,
	"tags":        ColTags,
}

// Header maps column positions to fields. Unknown headers are ignored and
// the first occurrence of a field wins.
func Header(row []string) map[Column]int {
	out := make(map[Column]int, len(row))
	for i, h := range row {
		k := strings.NewReplacer(" ", "_", "-", "_").Replace(textnorm.Key(h))
		col, ok := aliases[k]
		if !ok {
			continue
		}
		if _, dup := out[col]; !dup {
			out[col] = i
		}
	}
	return out
}

// Migrator imports spreadsheet rows as marches.
type Migrator struct {
	source  Source
	marches Marches
}

// NewMigrator creates a Migrator.
func NewMigrator(source Source, marches Marches) *Migrator {
	return &Migrator{source: source, marches: marches}
}

// Migrate reads every row and creates or updates the matching marche.
// Invalid rows are reported and skipped; storage errors abort.
func (m *Migrator) Migrate(ctx context.Context) (*Report, error) {
	rows, err := m.source.Rows(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read rows")
	}
	report := &Report{Skipped: []Skip{}}
	if len(rows) == 0 {
		return report, nil
	}

	cols := Header(rows[0])
	lg := zctx.From(ctx)
	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) {
			continue
		}
		report.Read++

		in, err := ParseRow(cols, row)
		if err != nil {
			report.Skipped = append(report.Skipped, Skip{Row: line, Reason: err.Error()})
			continue
		}

		existing, err := m.marches.FindBySlug(ctx, deref(in.Ville), deref(in.NomMarche))
		switch {
		case err == nil:
			if _, err := m.marches.Update(ctx, existing.ID, in); err != nil {
				if skip, ok := skippable(err); ok {
					report.Skipped = append(report.Skipped, Skip{Row: line, Reason: skip})
					continue
				}
				return nil, errors.Wrapf(err, "row %d", line)
			}
			report.Updated++
		case errors.Is(err, marche.ErrNotFound):
			if _, err := m.marches.Create(ctx, in); err != nil {
				if skip, ok := skippable(err); ok {
					report.Skipped = append(report.Skipped, Skip{Row: line, Reason: skip})
					continue
				}
				return nil, errors.Wrapf(err, "row %d", line)
			}
			report.Created++
		default:
			return nil, errors.Wrapf(err, "row %d", line)
		}
	}

	lg.Info("Sheets migration done",
		zap.Int("read", report.Read),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

func skippable(err error) (string, bool) {
	var verr *marche.ValidationError
	if errors.As(err, &verr) {
		return verr.Error(), true
	}
	return "", false
}

// ParseRow converts a data row into a marche input.
func ParseRow(cols map[Column]int, row []string) (marche.Input, error) {
	get := func(c Column) string {
		i, ok := cols[c]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var in marche.Input
	ville, nom := get(ColVille), get(ColNom)
	if ville == "" && nom == "" {
		return in, errors.New("missing ville and nom")
	}
	for c, dst := range map[Column]**string{
		ColVille:       &in.Ville,
		ColNom:         &in.NomMarche,
		ColRegion:      &in.Region,
		ColDepartement: &in.Departement,
		ColDescriptif:  &in.Descriptif,
	} {
		if v := get(c); v != "" {
			*dst = &v
		}
	}

	if v := get(ColDate); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			return in, err
		}
		in.Date = &d
	}
	for c, dst := range map[Column]**float64{
		ColLatitude:  &in.Latitude,
		ColLongitude: &in.Longitude,
	} {
		v := get(c)
		if v == "" {
			continue
		}
		f, err := ParseDecimal(v)
		if err != nil {
			return in, errors.Errorf("invalid %s %q", c, v)
		}
		*dst = &f
	}
	if v := get(ColTags); v != "" {
		for _, tag := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' }) {
			if tag = strings.TrimSpace(tag); tag != "" {
				in.Tags = append(in.Tags, tag)
			}
		}
	}
	return in, nil
}

var dateLayouts = []string{time.DateOnly, "02/01/2006", "2/1/2006"}

// ParseDate accepts ISO dates and French dd/mm/yyyy dates.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("invalid date %q", s)
}

// ParseDecimal parses a number written with a dot or a decimal comma.
func ParseDecimal(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	s = strings.Replace(s, ",", ".", 1)
	return strconv.ParseFloat(s, 64)
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
