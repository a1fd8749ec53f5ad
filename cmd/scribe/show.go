package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scribeworks/scribe/internal/types"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the current version of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printDocument(doc, true)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show every committed version of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		versions, err := store.History(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== %d version(s) of %s ===", len(versions), args[0])))
		for _, doc := range versions {
			printDocument(doc, false)
			fmt.Println()
		}
		return nil
	},
}

var relatedCmd = &cobra.Command{
	Use:   "related <id>",
	Short: "Find documents related to the given one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		docs, err := find.GetRelated(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Println("No related documents found.")
			return nil
		}
		for _, doc := range docs {
			printDocument(doc, false)
			fmt.Println()
		}
		return nil
	},
}

// printDocument renders one document; full includes the content body
func printDocument(doc *types.Document, full bool) {
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("%s  %s\n", yellow(doc.ID), gray(fmt.Sprintf("v%d %s", doc.Version, doc.Status)))
	fmt.Printf("  Topics:     %s\n", strings.Join(doc.Topics, ", "))
	fmt.Printf("  Confidence: %.2f\n", doc.Confidence)
	fmt.Printf("  Updated:    %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
	if len(doc.SourceQuestions) > 0 {
		fmt.Printf("  Questions:  %s\n", strings.Join(doc.SourceQuestions, "; "))
	}
	if full {
		fmt.Printf("\n%s\n", doc.Content)
	}
}

func init() {
	relatedCmd.Flags().Int("limit", 5, "maximum related documents")
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(relatedCmd)
}
