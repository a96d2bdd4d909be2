package editorial

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/k3a/html2text"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
)

const (
	// MaxSourceChars bounds the text sent to the model.
	MaxSourceChars = 12000

	DefaultKeywords = 8
	MaxKeywords     = 20
)

var (
	// ErrNothingToSummarize is returned for a marche without textes.
	ErrNothingToSummarize = errors.New("marche has no texte to summarize")
	// ErrEmptyText is returned when suggesting keywords for blank text.
	ErrEmptyText = errors.New("text is empty")
)

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// MarcheSource loads marches and their textes.
type MarcheSource interface {
	Resolve(ctx context.Context, idOrSlug string) (*marche.Marche, error)
	ListTextes(ctx context.Context, marcheID string) ([]marche.Texte, error)
}

// Summary is the editorial summary of a marche.
type Summary struct {
	MarcheID string `json:"marche_id"`
	Summary  string `json:"summary"`
}

// Service writes editorial content with a language model.
type Service struct {
	gen     Generator
	marches MarcheSource
}

// NewService creates an editorial Service.
func NewService(gen Generator, marches MarcheSource) *Service {
	return &Service{gen: gen, marches: marches}
}

// Summarize writes a short French editorial summary of a marche.
func (s *Service) Summarize(ctx context.Context, idOrSlug string) (*Summary, error) {
	m, err := s.marches.Resolve(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	textes, err := s.marches.ListTextes(ctx, m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list textes")
	}

	source := SourceText(textes)
	if source == "" {
		return nil, ErrNothingToSummarize
	}

	prompt := fmt.Sprintf(`Tu es l'éditeur des "Marches du Vivant" de Gaspard Boréal.
Rédige un résumé éditorial de deux à trois phrases, en français, au présent,
de la marche "%s" (%s). N'invente aucun fait absent des textes.

Textes :
%s`, m.Title(), m.Ville, source)

	out, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, errors.Wrap(err, "generate summary")
	}
	return &Summary{MarcheID: m.ID, Summary: strings.TrimSpace(out)}, nil
}

// SourceText flattens textes to plain text, truncated to MaxSourceChars.
func SourceText(textes []marche.Texte) string {
	var parts []string
	for _, t := range textes {
		body := strings.TrimSpace(html2text.HTML2Text(t.Contenu))
		title := strings.TrimSpace(t.Titre)
		switch {
		case body == "" && title == "":
			continue
		case title == "":
			parts = append(parts, body)
		default:
			parts = append(parts, title+"\n"+body)
		}
	}
	return truncate(strings.TrimSpace(strings.Join(parts, "\n\n")), MaxSourceChars)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// SuggestKeywords asks the model for up to limit lowercase keywords
// describing text.
func (s *Service) SuggestKeywords(ctx context.Context, text string, limit int) ([]string, error) {
	text = strings.TrimSpace(html2text.HTML2Text(text))
	if text == "" {
		return nil, ErrEmptyText
	}
	if limit <= 0 {
		limit = DefaultKeywords
	}
	limit = min(limit, MaxKeywords)

	prompt := fmt.Sprintf(`Propose au plus %d mots-clés en français pour le texte suivant.
Réponds uniquement par un tableau JSON de chaînes, sans commentaire.

%s`, limit, truncate(text, MaxSourceChars))

	out, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, errors.Wrap(err, "generate keywords")
	}
	return ParseKeywords(out, limit), nil
}

// ParseKeywords reads a model answer as a JSON array of strings, or as a
// comma or newline separated list when it is not valid JSON.
func ParseKeywords(answer string, limit int) []string {
	raw, ok := jsonArray(answer)
	if !ok {
		raw = strings.FieldsFunc(answer, func(r rune) bool {
			return r == ',' || r == '\n' || r == ';'
		})
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, limit)
	for _, k := range raw {
		k = cleanKeyword(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
		if len(out) == limit {
			break
		}
	}
	return out
}

func jsonArray(answer string) ([]string, bool) {
	start := strings.IndexByte(answer, '[')
	end := strings.LastIndexByte(answer, ']')
	if start < 0 || end < start {
		return nil, false
	}

	var out []string
	d := jx.DecodeStr(answer[start : end+1])
	err := d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.String {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, false
	}
	return out, true
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

func cleanKeyword(k string) string {
	k = listMarker.ReplaceAllString(k, "")
	k = strings.Trim(k, "\"'`«»[] ")
	return strings.ToLower(strings.Join(strings.Fields(k), " "))
}
