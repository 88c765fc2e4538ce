package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/booksage/internal/models"
	"github.com/xhad/booksage/pkg/content"
)

var (
	serveStream bool
	serveWatch  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and websocket chat",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveStream, "stream", true, "stream websocket answers as they are generated")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "re-index the book file when it changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	app, err := Build(ctx, buildOptions{configPath: configPath})
	if err != nil {
		return err
	}
	defer app.Close()

	// A file-backed book has no separate indexing run to rely on.
	if app.book != nil {
		report, err := app.IndexFileBook(ctx)
		if err != nil {
			return err
		}
		logReport(app.logger, report)

		if serveWatch {
			watcher, err := content.NewWatcher(app.config.Content.File, app.book, app.logger)
			if err != nil {
				return err
			}
			go func() {
				_ = watcher.Run(ctx, func(bookID models.ContentID) {
					reindex(ctx, app, bookID)
				})
			}()
		}
	}

	return app.Server(serveStream).ListenAndServe(ctx)
}

func reindex(ctx context.Context, app *App, bookID models.ContentID) {
	report, err := app.indexer.IndexHierarchy(ctx, bookID)
	if err != nil {
		app.logger.Error("re-indexing book file failed", zap.Error(err))
		return
	}
	logReport(app.logger, report)
}

func logReport(logger *zap.Logger, report models.IndexReport) {
	logger.Info("indexed book file",
		zap.Int("chunks", report.ChunksIndexed),
		zap.Int("validation_issues", len(report.ValidationIssues)),
	)
}
