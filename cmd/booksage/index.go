package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/booksage/internal/models"
)

var (
	indexBook string
	indexAll  bool
	indexFile string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index a book into the vector store",
	Long: `Walks a book, or every book, depth first and stores one embedding per
chunk of each unit's text. Re-indexing replaces earlier chunks.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexBook, "book", "", "id of the book (or any unit) to index")
	indexCmd.Flags().BoolVar(&indexAll, "all", false, "index every book")
	indexCmd.Flags().StringVar(&indexFile, "file", "", "index the book in a YAML file")
	indexCmd.MarkFlagsMutuallyExclusive("book", "all", "file")
	indexCmd.MarkFlagsOneRequired("book", "all", "file")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var rootID models.ContentID
	if indexBook != "" {
		id, err := models.ParseContentID(indexBook)
		if err != nil {
			return err
		}
		rootID = id
	}

	bar := getProgressBar(-1, "📚 Indexing book...")
	app, err := Build(ctx, buildOptions{
		configPath: configPath,
		bookFile:   indexFile,
		progress: func(unit models.ContentUnit, chunks int) {
			bar.Describe(color.BlueString("📚 %s %s", unit.Type, unit.Title))
			_ = bar.Add(chunks)
		},
	})
	if err != nil {
		return err
	}
	defer app.Close()

	var report models.IndexReport
	switch {
	case indexAll:
		if app.lister == nil {
			return errors.New("content source cannot list books")
		}
		report, err = app.indexer.IndexAll(ctx, app.lister)
	case indexFile != "":
		report, err = app.IndexFileBook(ctx)
	default:
		report, err = app.indexer.IndexHierarchy(ctx, rootID)
	}
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	color.Green("\n✓ Indexed %d content chunks\n", report.ChunksIndexed)
	if len(report.ValidationIssues) > 0 {
		color.Yellow("%d validation issues found:\n", len(report.ValidationIssues))
		for _, issue := range report.ValidationIssues {
			color.Yellow("  - %s\n", issue)
		}
	}
	return nil
}
