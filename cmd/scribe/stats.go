package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scribeworks/scribe/internal/storage"
	"github.com/scribeworks/scribe/internal/types"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := store.List(cmd.Context(), storage.DocumentFilter{})
		if err != nil {
			return err
		}

		byStatus := map[types.Status]int{}
		totalVersions := 0
		var confidenceSum float64
		for _, doc := range docs {
			byStatus[doc.Status]++
			totalVersions += doc.Version
			confidenceSum += doc.Confidence
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Corpus ==="))
		fmt.Printf("Documents:      %d\n", len(docs))
		for _, status := range []types.Status{types.StatusDraft, types.StatusActive, types.StatusArchived} {
			if n := byStatus[status]; n > 0 {
				fmt.Printf("  %-12s  %d\n", status+":", n)
			}
		}
		fmt.Printf("Versions:       %d\n", totalVersions)
		if len(docs) > 0 {
			fmt.Printf("Avg confidence: %.2f\n", confidenceSum/float64(len(docs)))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
