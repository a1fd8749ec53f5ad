package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/scribeworks/scribe/internal/engine"
	"github.com/scribeworks/scribe/internal/types"
)

var (
	ingestTopics     []string
	ingestQuestions  []string
	ingestConfidence float64
	ingestStrategy   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest one candidate document",
	Long: `Read candidate content from a file (or stdin when no file is given),
run the decide-and-merge pipeline, and print the decision.

The file may be plain text, or a YAML document with content, topics,
source_questions, and confidence fields. Flags override file metadata.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		candidate, err := readCandidate(args)
		if err != nil {
			return err
		}
		if len(ingestTopics) > 0 {
			candidate.Topics = ingestTopics
		}
		if len(ingestQuestions) > 0 {
			candidate.SourceQuestions = ingestQuestions
		}
		if cmd.Flags().Changed("confidence") {
			candidate.Confidence = ingestConfidence
		}

		strategy := types.MergeStrategy(ingestStrategy)
		result, err := eng.Ingest(cmd.Context(), candidate, strategy)
		if err != nil {
			return err
		}
		printDecision(result)
		return nil
	},
}

// readCandidate loads the candidate from the file argument or stdin. YAML
// input with a content field wins; anything else is treated as raw content.
func readCandidate(args []string) (*types.Candidate, error) {
	var data []byte
	var err error
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
		}
	} else {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
	}

	var candidate types.Candidate
	if err := yaml.Unmarshal(data, &candidate); err == nil && candidate.Content != "" {
		return &candidate, nil
	}
	return &types.Candidate{Content: string(data), Confidence: 0.5}, nil
}

// printDecision renders an ingest result for a human
func printDecision(result *engine.IngestResult) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	decision := result.Decision
	fmt.Printf("\n%s\n\n", cyan("=== Decision ==="))

	actionColor := green
	if decision.Action != types.ActionCreate {
		actionColor = yellow
	}
	fmt.Printf("Action:     %s\n", actionColor(string(decision.Action)))
	fmt.Printf("Document:   %s (version %d)\n", result.Document.ID, result.Document.Version)
	fmt.Printf("Confidence: %.3f\n", decision.Confidence)
	fmt.Printf("Reason:     %s\n", decision.Reason)
	if decision.Degraded {
		fmt.Printf("%s\n", gray("(decided in degraded mode: vector index unavailable)"))
	}
	if decision.Truncated {
		fmt.Printf("%s\n", gray("(fallback scan truncated: decision made on partial corpus)"))
	}

	if result.Report != nil {
		fmt.Printf("\nStrategy:   %s\n", result.Report.StrategyUsed)
		if result.Report.ParseFallback {
			fmt.Printf("%s\n", gray("(structural parse failed, merge degraded to append)"))
		}
		if len(result.Report.Conflicts) > 0 {
			fmt.Printf("\n%s\n", yellow(fmt.Sprintf("Conflicts (%d):", len(result.Report.Conflicts))))
			for _, c := range result.Report.Conflicts {
				fmt.Printf("  - %s\n", c)
			}
		}
	}
	fmt.Println()
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestTopics, "topic", nil, "topic tag (repeatable)")
	ingestCmd.Flags().StringSliceVar(&ingestQuestions, "question", nil, "source research question (repeatable)")
	ingestCmd.Flags().Float64Var(&ingestConfidence, "confidence", 0.5, "candidate confidence (0.0-1.0)")
	ingestCmd.Flags().StringVar(&ingestStrategy, "strategy", "", "merge strategy override (append|integrate|replace)")
	rootCmd.AddCommand(ingestCmd)
}
