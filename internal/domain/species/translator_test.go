package species

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockRepo struct {
	mu      sync.Mutex
	names   map[string]string // lang|key -> common name
	lookups int
	saved   []Entry
	err     error
}

func newMockRepo() *mockRepo {
	return &mockRepo{names: make(map[string]string)}
}

func (m *mockRepo) Lookup(_ context.Context, lang string, keys []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := m.names[lang+"|"+k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *mockRepo) Save(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.names[e.Lang+"|"+e.Key] = e.CommonName
		m.saved = append(m.saved, e)
	}
	return nil
}

type mockNamer struct {
	mu    sync.Mutex
	names map[string]string
	fail  map[string]bool
	calls []string
}

func (m *mockNamer) CommonName(_ context.Context, name, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	if m.fail[name] {
		return "", errors.New("quota exceeded")
	}
	return m.names[name], nil
}

// --- Tests ---

func TestTranslate_Chain(t *testing.T) {
	repo := newMockRepo()
	repo.names["fr|erithacus rubecula"] = "Rougegorge familier"
	namer := &mockNamer{
		names: map[string]string{"Lutra lutra": "Loutre d'Europe"},
		fail:  map[string]bool{"Quercus robur": true},
	}
	tr := NewTranslator(repo, namer, 0)

	got, err := tr.Translate(context.Background(), []string{
		"Erithacus rubecula",
		"Lutra lutra",
		"Quercus robur",
		"Xus unknownus",
	}, "")
	require.NoError(t, err)

	assert.Equal(t, []Translation{
		{ScientificName: "Erithacus rubecula", CommonName: "Rougegorge familier", Source: SourceLocal},
		{ScientificName: "Lutra lutra", CommonName: "Loutre d'Europe", Source: SourceAI},
		{ScientificName: "Quercus robur", CommonName: "Quercus robur", Source: SourceOriginal},
		{ScientificName: "Xus unknownus", CommonName: "Xus unknownus", Source: SourceOriginal},
	}, got)

	require.Len(t, repo.saved, 1)
	assert.Equal(t, Entry{Key: "lutra lutra", Lang: "fr", ScientificName: "Lutra lutra", CommonName: "Loutre d'Europe", Source: SourceAI}, repo.saved[0])
	assert.ElementsMatch(t, []string{"Lutra lutra", "Quercus robur", "Xus unknownus"}, namer.calls)
}

func TestTranslate_CacheAndDuplicates(t *testing.T) {
	repo := newMockRepo()
	repo.names["fr|parus major"] = "Mésange charbonnière"
	tr := NewTranslator(repo, nil, 0)

	got, err := tr.Translate(context.Background(), []string{"Parus major", "  PARUS   major ", "Parus major"}, "FR")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, g := range got {
		assert.Equal(t, "Mésange charbonnière", g.CommonName)
		assert.Equal(t, SourceLocal, g.Source)
	}
	assert.Equal(t, 1, repo.lookups)

	// Served from memory.
	_, err = tr.Translate(context.Background(), []string{"Parus major"}, "fr")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.lookups)
}

func TestTranslate_Errors(t *testing.T) {
	repo := newMockRepo()
	repo.err = errors.New("db down")
	tr := NewTranslator(repo, nil, 0)

	_, err := tr.Translate(context.Background(), []string{"Parus major"}, "fr")
	require.Error(t, err)

	_, err = tr.Translate(context.Background(), make([]string, MaxNames+1), "fr")
	require.ErrorIs(t, err, ErrTooManyNames)
}

func TestTranslate_Empty(t *testing.T) {
	tr := NewTranslator(newMockRepo(), nil, 0)

	got, err := tr.Translate(context.Background(), nil, "fr")
	require.NoError(t, err)
	assert.Empty(t, got)
}
