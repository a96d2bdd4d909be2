package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/species"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	batchSize     = 1000
	progressEvery = 100_000
	queueSize     = 4096
)

func main() {
	var (
		dataDir     string
		databaseURL string
		lang        string
		capacity    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data/species", "directory containing *.tsv.gz name lists")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&lang, "lang", species.DefaultLang, "language of the common names")
	flag.UintVar(&capacity, "capacity", 2_000_000, "expected number of distinct names")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, species.NormalizeLang(lang), capacity); err != nil {
		slog.Error("species ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("species ingest completed successfully")
}

// store is the part of the species repository the ingest needs.
type store interface {
	species.Repository
	ForEachKey(ctx context.Context, lang string, fn func(key string)) error
}

func run(ctx context.Context, dataDir, databaseURL, lang string, capacity uint) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.tsv.gz"))
	if err != nil {
		return errors.Wrap(err, "list name files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.tsv.gz file in %s", dataDir)
	}
	// Earlier files win on duplicates.
	slices.Sort(files)

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.WithApplicationName("species-ingest"))
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	stats, err := ingest(ctx, postgres.NewSpeciesRepository(pool), files, lang, capacity)
	if err != nil {
		return err
	}

	slog.Info("ingest stats",
		slog.Int("read", stats.read),
		slog.Int("duplicates", stats.duplicates),
		slog.Int("existing", stats.existing),
		slog.Int("written", stats.written),
	)
	return nil
}

type stats struct {
	read       int
	duplicates int
	existing   int
	written    int
}

// ingest streams every file concurrently and writes the names not yet
// stored. Stored keys are loaded into a bloom filter: a key the filter has
// never seen is new, a possible hit is confirmed against the database.
func ingest(ctx context.Context, repo store, files []string, lang string, capacity uint) (stats, error) {
	var st stats

	slog.Info("pass 1: loading stored keys", slog.String("lang", lang))

	stored := bloom.NewWithEstimates(capacity, bloomFPR)
	var n int
	if err := repo.ForEachKey(ctx, lang, func(key string) {
		stored.AddString(key)
		n++
	}); err != nil {
		return st, errors.Wrap(err, "load stored keys")
	}

	slog.Info("pass 1 complete", slog.Int("stored", n))

	// Pass 2: stream the files, one channel per file so that priority is
	// kept when merging.
	slog.Info("pass 2: streaming name lists", slog.Int("files", len(files)))

	g, gctx := errgroup.WithContext(ctx)
	queues := make([]chan species.Entry, len(files))
	for i, f := range files {
		queues[i] = make(chan species.Entry, queueSize)
		g.Go(readFile(gctx, f, lang, queues[i]))
	}

	g.Go(func() error {
		w := &writer{repo: repo, lang: lang, stored: stored, stats: &st}
		seen := make(map[string]struct{}, n)
		for _, q := range queues {
			for e := range q {
				st.read++
				if _, dup := seen[e.Key]; dup {
					st.duplicates++
					continue
				}
				seen[e.Key] = struct{}{}
				if err := w.add(gctx, e); err != nil {
					return err
				}
				if st.read%progressEvery == 0 {
					slog.Info("pass 2 progress", slog.Int("read", st.read), slog.Int("written", st.written))
				}
			}
		}
		return w.flush(gctx)
	})

	if err := g.Wait(); err != nil {
		return st, err
	}
	return st, nil
}

func readFile(ctx context.Context, path, lang string, out chan<- species.Entry) func() error {
	return func() error {
		defer close(out)

		var count int
		err := streamGzFile(ctx, path, func(line string) error {
			e, ok := parseLine(line, lang)
			if !ok {
				return nil
			}
			count++
			select {
			case out <- e:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}

		slog.Info("file complete", slog.String("file", filepath.Base(path)), slog.Int("names", count))
		return nil
	}
}

// parseLine reads "scientific name<TAB>common name". Comments and lines
// without a common name are ignored.
func parseLine(line, lang string) (species.Entry, bool) {
	if strings.HasPrefix(line, "#") {
		return species.Entry{}, false
	}
	scientific, common, ok := strings.Cut(line, "\t")
	if !ok {
		return species.Entry{}, false
	}
	scientific = strings.Join(strings.Fields(scientific), " ")
	common = strings.TrimSpace(common)
	key := species.Key(scientific)
	if key == "" || common == "" {
		return species.Entry{}, false
	}
	return species.Entry{
		Key:            key,
		Lang:           lang,
		ScientificName: scientific,
		CommonName:     common,
		Source:         species.SourceLocal,
	}, true
}

// writer batches new entries. Entries whose key may already be stored are
// checked in the database before being written.
type writer struct {
	repo   store
	lang   string
	stored *bloom.BloomFilter
	stats  *stats

	fresh []species.Entry
	maybe []species.Entry
}

func (w *writer) add(ctx context.Context, e species.Entry) error {
	if w.stored.TestString(e.Key) {
		w.maybe = append(w.maybe, e)
		if len(w.maybe) >= batchSize {
			return w.confirm(ctx)
		}
		return nil
	}
	w.fresh = append(w.fresh, e)
	if len(w.fresh) >= batchSize {
		return w.save(ctx)
	}
	return nil
}

func (w *writer) confirm(ctx context.Context) error {
	keys := make([]string, len(w.maybe))
	for i, e := range w.maybe {
		keys[i] = e.Key
	}
	found, err := w.repo.Lookup(ctx, w.lang, keys)
	if err != nil {
		return errors.Wrap(err, "confirm stored keys")
	}
	for _, e := range w.maybe {
		if _, ok := found[e.Key]; ok {
			w.stats.existing++
			continue
		}
		w.fresh = append(w.fresh, e)
	}
	w.maybe = w.maybe[:0]
	return w.save(ctx)
}

func (w *writer) save(ctx context.Context) error {
	if len(w.fresh) == 0 {
		return nil
	}
	if err := w.repo.Save(ctx, w.fresh); err != nil {
		return err
	}
	w.stats.written += len(w.fresh)
	w.fresh = w.fresh[:0]
	return nil
}

func (w *writer) flush(ctx context.Context) error {
	if len(w.maybe) > 0 {
		return w.confirm(ctx)
	}
	return w.save(ctx)
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
