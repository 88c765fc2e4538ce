package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchLimit   int
	searchJSON    bool
	searchFilters map[string]string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed chunks",
	Long: `Returns the chunks most similar to the query, best first. Filters match
chunk metadata exactly, for example --filter book_title=Robotics.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringToStringVar(&searchFilters, "filter", nil, "metadata filter key=value")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := Build(ctx, buildOptions{configPath: configPath})
	if err != nil {
		return err
	}
	defer app.Close()

	filters := make(map[string]any, len(searchFilters))
	for k, v := range searchFilters {
		filters[k] = v
	}

	sources, err := app.rag.Search(ctx, args[0], searchLimit, filters)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(sources, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(sources) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, src := range sources {
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, src.Title, src.Confidence)
		if title, ok := src.Metadata["section_title"].(string); ok {
			cmd.Printf("      Section: %s\n", title)
		} else if title, ok := src.Metadata["chapter_title"].(string); ok {
			cmd.Printf("      Chapter: %s\n", title)
		}
		cmd.Printf("      %s\n", src.Content)
		cmd.Println()
	}
	return nil
}
