package species

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultCacheTTL bounds how long a resolved translation stays in memory.
	DefaultCacheTTL = 6 * time.Hour
	// MaxNames is the largest batch Translate accepts.
	MaxNames = 500

	aiConcurrency = 4
)

// ErrTooManyNames is returned when a batch exceeds MaxNames.
var ErrTooManyNames = errors.New("too many species names")

// Translator resolves vernacular names through memory, storage and AI.
type Translator struct {
	repo  Repository
	namer Namer // optional
	cache *cache.Cache
}

// NewTranslator creates a Translator. namer may be nil, in which case
// unknown names fall back to the scientific name.
func NewTranslator(repo Repository, namer Namer, ttl time.Duration) *Translator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Translator{
		repo:  repo,
		namer: namer,
		cache: cache.New(ttl, ttl*2),
	}
}

func cacheKey(lang, key string) string {
	return lang + "|" + key
}

// Translate returns one translation per input name, in input order. Each
// distinct name is resolved once.
func (t *Translator) Translate(ctx context.Context, names []string, lang string) ([]Translation, error) {
	if len(names) > MaxNames {
		return nil, ErrTooManyNames
	}
	lang = NormalizeLang(lang)

	resolved := make(map[string]Translation, len(names))
	var (
		pending []string
		first   = make(map[string]string, len(names)) // key -> scientific name as first given
	)
	for _, name := range names {
		key := Key(name)
		if key == "" {
			continue
		}
		if _, seen := first[key]; seen {
			continue
		}
		first[key] = strings.TrimSpace(name)

		if v, ok := t.cache.Get(cacheKey(lang, key)); ok {
			tr := v.(Translation)
			tr.ScientificName = first[key]
			resolved[key] = tr
			continue
		}
		pending = append(pending, key)
	}

	if len(pending) > 0 {
		local, err := t.repo.Lookup(ctx, lang, pending)
		if err != nil {
			return nil, errors.Wrap(err, "lookup translations")
		}
		var missing []string
		for _, key := range pending {
			if common, ok := local[key]; ok && common != "" {
				tr := Translation{ScientificName: first[key], CommonName: common, Source: SourceLocal}
				resolved[key] = tr
				t.cache.SetDefault(cacheKey(lang, key), tr)
				continue
			}
			missing = append(missing, key)
		}

		for key, tr := range t.askAI(ctx, lang, missing, first) {
			resolved[key] = tr
		}
	}

	out := make([]Translation, 0, len(names))
	for _, name := range names {
		key := Key(name)
		tr, ok := resolved[key]
		if !ok {
			tr = Translation{ScientificName: strings.TrimSpace(name), CommonName: strings.TrimSpace(name), Source: SourceOriginal}
		}
		out = append(out, tr)
	}
	return out, nil
}

// askAI resolves keys with the namer and persists what it learns. Failures
// are logged and leave the key unresolved.
func (t *Translator) askAI(ctx context.Context, lang string, keys []string, first map[string]string) map[string]Translation {
	out := make(map[string]Translation, len(keys))
	if t.namer == nil || len(keys) == 0 {
		return out
	}
	lg := zctx.From(ctx)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(aiConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			common, err := t.namer.CommonName(gctx, first[key], lang)
			if err != nil {
				lg.Warn("AI translation failed", zap.String("species", first[key]), zap.Error(err))
				return nil
			}
			common = strings.TrimSpace(common)
			if common == "" {
				return nil
			}
			mu.Lock()
			out[key] = Translation{ScientificName: first[key], CommonName: common, Source: SourceAI}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(out) == 0 {
		return out
	}
	entries := make([]Entry, 0, len(out))
	for key, tr := range out {
		entries = append(entries, Entry{Key: key, Lang: lang, ScientificName: tr.ScientificName, CommonName: tr.CommonName, Source: SourceAI})
		t.cache.SetDefault(cacheKey(lang, key), tr)
	}
	if err := t.repo.Save(ctx, entries); err != nil {
		lg.Warn("Persist AI translations", zap.Int("count", len(entries)), zap.Error(err))
	}
	return out
}
