package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/booksage/pkg/rag"
)

var (
	askStream      bool
	askMaxResults  int
	askTemperature float64
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask questions about the indexed book",
	Long: `Answers one question, or starts an interactive chat when no question is
given. Type 'exit' to leave the chat.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askStream, "stream", true, "print the answer as it is generated")
	askCmd.Flags().IntVarP(&askMaxResults, "max-results", "n", 5, "number of passages to ground the answer on")
	askCmd.Flags().Float64Var(&askTemperature, "temperature", 0.7, "sampling temperature between 0 and 1")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := Build(ctx, buildOptions{configPath: configPath})
	if err != nil {
		return err
	}
	defer app.Close()

	if app.config.Content.Source == "file" && app.config.VectorStore.Kind == "memory" {
		if _, err := app.IndexFileBook(ctx); err != nil {
			return err
		}
	}

	opts := []rag.Option{rag.WithMaxResults(askMaxResults)}
	if cmd.Flags().Changed("temperature") {
		opts = append(opts, rag.WithTemperature(askTemperature))
	}

	if len(args) == 1 {
		answer(ctx, app, args[0], opts)
		return nil
	}

	color.Cyan("\nChat with your book (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if strings.ToLower(query) == "exit" {
			break
		}
		if query == "" {
			continue
		}

		answer(ctx, app, query, opts)
		if ctx.Err() != nil {
			break
		}
	}

	return scanner.Err()
}

func answer(ctx context.Context, app *App, query string, opts []rag.Option) {
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	spinner := getSpinner(" Thinking...")

	firstChunk := true
	if askStream {
		opts = append(opts, rag.WithStream(func(fragment string) {
			// Clear spinner on first chunk
			if firstChunk {
				_ = spinner.Finish()
				firstChunk = false
				fmt.Print("\n")
				assistantPrompt("Assistant: ")
			}
			fmt.Print(fragment)
		}))
	}

	result := app.rag.Answer(ctx, query, opts...)

	if firstChunk {
		_ = spinner.Finish()
		assistantPrompt("\nAssistant: %s", result.Response)
	}
	fmt.Print("\n")

	for i, src := range result.Sources {
		color.New(color.Faint).Printf("  [%d] %s (%.2f)\n", i+1, src.Title, src.Confidence)
	}
}
