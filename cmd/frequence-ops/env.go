package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/app"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/calendar"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/snapshot"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/sheets"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/storage/postgres"
)

type migrator interface {
	Migrate(ctx context.Context) (*sheets.Report, error)
}

type exporter interface {
	ExportEPUB(ctx context.Context, slug string) ([]byte, error)
}

type marches interface {
	List(ctx context.Context, f marche.Filter) ([]marche.Marche, error)
	AddPhoto(ctx context.Context, idOrSlug string, p marche.Photo) (*marche.Photo, error)
}

type refresher interface {
	Refresh(ctx context.Context, idOrSlug string) (*snapshot.Snapshots, error)
}

type uploader interface {
	Upload(ctx context.Context, bucket, name, contentType string, data []byte) (string, error)
}

type syncer interface {
	Sync(ctx context.Context) (*calendar.SyncResult, error)
}

// env is what the commands operate on. Optional services are nil when
// not configured.
type env struct {
	sheets      migrator
	books       exporter
	marches     marches
	snapshots   refresher
	uploader    uploader
	calendar    syncer
	imageBucket string
	close       func()
}

// envFactory opens an env. Tests replace it.
type envFactory func(ctx context.Context) (context.Context, *env, error)

// noopTelemetry disables tracing and metrics for one-shot commands.
type noopTelemetry struct{}

func (noopTelemetry) MeterProvider() metric.MeterProvider { return metricnoop.NewMeterProvider() }
func (noopTelemetry) TracerProvider() trace.TracerProvider {
	return tracenoop.NewTracerProvider()
}

func newEnv(ctx context.Context) (context.Context, *env, error) {
	lg, err := zap.NewDevelopment()
	if err != nil {
		return ctx, nil, errors.Wrap(err, "create logger")
	}
	ctx = zctx.Base(ctx, lg)

	cfg, err := app.LoadToolConfig()
	if err != nil {
		return ctx, nil, err
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.WithApplicationName("frequence-ops"))
	if err != nil {
		return ctx, nil, errors.Wrap(err, "connect to database")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return ctx, nil, errors.Wrap(err, "run migrations")
	}

	services, err := app.NewServices(ctx, cfg, pool, noopTelemetry{})
	if err != nil {
		pool.Close()
		return ctx, nil, err
	}

	e := &env{
		books:       services.Explorations,
		marches:     services.Marches,
		snapshots:   services.Snapshots,
		calendar:    services.Calendar,
		imageBucket: cfg.Storage.ImageBucket,
		close: func() {
			pool.Close()
			_ = lg.Sync()
		},
	}
	if services.Sheets != nil {
		e.sheets = services.Sheets
	}
	if services.Uploader != nil {
		e.uploader = services.Uploader
	}
	return ctx, e, nil
}
