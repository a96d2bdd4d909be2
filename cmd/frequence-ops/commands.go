package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
)

var errNotConfigured = errors.New("service not configured")

// listPage is the largest page the marche listing returns.
const listPage = 200

func newRootCmd(open envFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "frequence-ops",
		Short:         "Operator tasks for La Fréquence du Vivant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newSheetsCmd(open),
		newEPUBCmd(open),
		newSnapshotsCmd(open),
		newPhotosCmd(open),
		newCalendarCmd(open),
	)
	return root
}

// withEnv runs fn with an opened env and closes it afterwards.
func withEnv(open envFactory, fn func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, e, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()
		return fn(ctx, cmd, e, args)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSheetsCmd(open envFactory) *cobra.Command {
	sheetsCmd := &cobra.Command{
		Use:   "sheets",
		Short: "Google Sheets import",
	}
	sheetsCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Import marches from the configured spreadsheet",
		Args:  cobra.NoArgs,
		RunE: withEnv(open, func(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
			if e.sheets == nil {
				return errors.Wrap(errNotConfigured, "sheets")
			}
			report, err := e.sheets.Migrate(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		}),
	})
	return sheetsCmd
}

func newEPUBCmd(open envFactory) *cobra.Command {
	var output string

	epubCmd := &cobra.Command{
		Use:   "epub",
		Short: "EPUB books",
	}
	export := &cobra.Command{
		Use:   "export <exploration-slug>",
		Short: "Write an exploration as an EPUB book",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(open, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			slug := args[0]
			book, err := e.books.ExportEPUB(ctx, slug)
			if err != nil {
				return err
			}
			path := output
			if path == "" {
				path = slug + ".epub"
			}
			if err := os.WriteFile(path, book, 0o644); err != nil {
				return errors.Wrap(err, "write book")
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes)\n", path, len(book))
			return err
		}),
	}
	export.Flags().StringVarP(&output, "output", "o", "", "output file (default <slug>.epub)")
	epubCmd.AddCommand(export)
	return epubCmd
}

func newSnapshotsCmd(open envFactory) *cobra.Command {
	var (
		all         bool
		concurrency int
	)

	snapshotsCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Biodiversity and weather snapshots",
	}
	refresh := &cobra.Command{
		Use:   "refresh [marche...]",
		Short: "Capture new snapshots for marches",
		RunE: withEnv(open, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			refs := args
			if all {
				list, err := allMarches(ctx, e.marches)
				if err != nil {
					return err
				}
				refs = refs[:0:0]
				for _, m := range list {
					if m.HasCoordinates() {
						refs = append(refs, m.ID)
					}
				}
			}
			if len(refs) == 0 {
				return errors.New("no marche given: pass ids or slugs, or --all")
			}
			ok, failed := refreshAll(ctx, e.snapshots, refs, concurrency)
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d, failed %d\n", ok, failed)
			if err == nil && failed > 0 {
				err = errors.Errorf("%d refresh failed", failed)
			}
			return err
		}),
	}
	refresh.Flags().BoolVar(&all, "all", false, "refresh every marche having coordinates")
	refresh.Flags().IntVar(&concurrency, "concurrency", 4, "parallel refreshes")
	snapshotsCmd.AddCommand(refresh)
	return snapshotsCmd
}

func allMarches(ctx context.Context, store marches) ([]marche.Marche, error) {
	var out []marche.Marche
	for offset := 0; ; offset += listPage {
		page, err := store.List(ctx, marche.Filter{Limit: listPage, Offset: offset})
		if err != nil {
			return nil, errors.Wrap(err, "list marches")
		}
		out = append(out, page...)
		if len(page) < listPage {
			return out, nil
		}
	}
}

// refreshAll refreshes refs with at most concurrency calls in flight. A
// failed marche is logged and does not stop the others.
func refreshAll(ctx context.Context, r refresher, refs []string, concurrency int) (ok, failed int) {
	var nOK, nFailed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for _, ref := range refs {
		g.Go(func() error {
			if _, err := r.Refresh(ctx, ref); err != nil {
				zctx.From(ctx).Warn("Refresh failed", zap.String("marche", ref), zap.Error(err))
				nFailed.Add(1)
				return nil
			}
			nOK.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(nOK.Load()), int(nFailed.Load())
}

func newPhotosCmd(open envFactory) *cobra.Command {
	var titre string

	photosCmd := &cobra.Command{
		Use:   "photos",
		Short: "Marche photos",
	}
	add := &cobra.Command{
		Use:   "add <marche> <file>",
		Short: "Upload a photo and attach it to a marche",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(open, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			if e.uploader == nil {
				return errors.Wrap(errNotConfigured, "storage")
			}
			ref, file := args[0], args[1]
			data, err := os.ReadFile(file)
			if err != nil {
				return errors.Wrap(err, "read photo")
			}
			name := filepath.Base(file)
			url, err := e.uploader.Upload(ctx, e.imageBucket, name, mime.TypeByExtension(filepath.Ext(name)), data)
			if err != nil {
				return err
			}
			p, err := e.marches.AddPhoto(ctx, ref, marche.Photo{URL: url, Titre: titre})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"id": p.ID, "url": p.URL, "ordre": p.Ordre})
		}),
	}
	add.Flags().StringVar(&titre, "titre", "", "photo title")
	photosCmd.AddCommand(add)
	return photosCmd
}

func newCalendarCmd(open envFactory) *cobra.Command {
	calendarCmd := &cobra.Command{
		Use:   "calendar",
		Short: "Agenda of Gaspard Boréal",
	}
	calendarCmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Pull the calendar webhook into the database",
		Args:  cobra.NoArgs,
		RunE: withEnv(open, func(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
			res, err := e.calendar.Sync(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		}),
	})
	return calendarCmd
}
