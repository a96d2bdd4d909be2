package species

import (
	"context"
	"strings"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/textnorm"
)

// DefaultLang is the language translations are made into when none is given.
const DefaultLang = "fr"

// Source tells where a translation came from.
type Source string

const (
	SourceLocal    Source = "local"
	SourceAI       Source = "ai"
	SourceOriginal Source = "original"
)

// Translation is the vernacular name of a species.
type Translation struct {
	ScientificName string `json:"scientific_name"`
	CommonName     string `json:"common_name"`
	Source         Source `json:"source"`
}

// Entry is a stored translation.
type Entry struct {
	Key            string
	Lang           string
	ScientificName string
	CommonName     string
	Source         Source
}

// Repository stores translations keyed by normalized scientific name.
type Repository interface {
	// Lookup returns the common names known for keys, indexed by key.
	Lookup(ctx context.Context, lang string, keys []string) (map[string]string, error)
	// Save upserts entries.
	Save(ctx context.Context, entries []Entry) error
}

// Namer asks a language model for the vernacular name of a species. An
// empty name means the model does not know one.
type Namer interface {
	CommonName(ctx context.Context, scientificName, lang string) (string, error)
}

// Key normalizes a scientific name for lookups.
func Key(name string) string {
	return textnorm.Key(name)
}

// NormalizeLang returns a lowercase language code, DefaultLang when empty.
func NormalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return DefaultLang
	}
	return lang
}
