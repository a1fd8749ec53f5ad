package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scribeworks/scribe/internal/types"
)

var (
	searchTopics        []string
	searchStatus        string
	searchMinConfidence float64
	searchLimit         int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find documents by topic tags",
	Long:  `Exact-match structured search over topic tags, status, and confidence.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var status *types.Status
		if searchStatus != "" {
			s := types.Status(searchStatus)
			if !s.IsValid() {
				return fmt.Errorf("invalid status: %s", searchStatus)
			}
			status = &s
		}

		docs, err := find.FindByTopics(cmd.Context(), searchTopics, status, searchMinConfidence, searchLimit)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}
		for _, doc := range docs {
			printDocument(doc, false)
			fmt.Println()
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchTopics, "topic", nil, "topic tag (repeatable, required)")
	searchCmd.Flags().StringVar(&searchStatus, "status", "", "filter by status (draft|active|archived)")
	searchCmd.Flags().Float64Var(&searchMinConfidence, "min-confidence", 0, "minimum confidence")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum results")
	_ = searchCmd.MarkFlagRequired("topic")
	rootCmd.AddCommand(searchCmd)
}
