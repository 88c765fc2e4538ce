package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/booksage/pkg/config"
	"github.com/xhad/booksage/pkg/content"
	"github.com/xhad/booksage/pkg/store"
)

var importFile string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the book content tables",
	RunE:  runMigrate,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy a YAML book into the content tables",
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "YAML book to import")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(migrateCmd, importCmd)
}

func databaseURL() (string, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database.URL == "" {
		return "", errors.New("database.url is not configured")
	}
	return cfg.Database.URL, nil
}

func runMigrate(_ *cobra.Command, _ []string) error {
	url, err := databaseURL()
	if err != nil {
		return err
	}
	if err := content.Migrate(url); err != nil {
		return err
	}
	color.Green("✓ Content schema is up to date\n")
	return nil
}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	url, err := databaseURL()
	if err != nil {
		return err
	}

	book, bookID, err := content.LoadFile(importFile)
	if err != nil {
		return err
	}

	pool, err := store.NewPool(ctx, store.PoolConfig{ConnString: url}, nil)
	if err != nil {
		return fmt.Errorf("setup database: %w", err)
	}
	defer pool.Close()

	if err := content.NewPostgres(pool).Import(ctx, book, bookID); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	color.Green("✓ Imported book %s\n", bookID)
	color.Cyan("Index it with: booksage index --book %s\n", bookID)
	return nil
}
