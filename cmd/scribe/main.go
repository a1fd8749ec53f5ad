// scribe decides, for every incoming research write-up, whether it is a new
// topic or the same topic as something already stored, and merges it in
// without losing information.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/scribeworks/scribe/internal/config"
	"github.com/scribeworks/scribe/internal/engine"
	"github.com/scribeworks/scribe/internal/finder"
	"github.com/scribeworks/scribe/internal/gate"
	"github.com/scribeworks/scribe/internal/merge"
	"github.com/scribeworks/scribe/internal/similarity"
	"github.com/scribeworks/scribe/internal/storage"
	"github.com/scribeworks/scribe/internal/storage/sqlite"
	"github.com/scribeworks/scribe/internal/types"
)

var (
	configPath string

	cfg   config.Config
	store storage.Store
	eng   *engine.Engine
	find  *finder.Finder
)

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Document identity resolution and merge engine",
	Long: `scribe ingests pipeline-produced research documents and decides, per
document, whether to create a new entry, update an existing one, or merge
related content - without ever silently discarding information.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		store, err = sqlite.New(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("failed to open store at %s: %w", cfg.StorePath, err)
		}

		var index similarity.Index
		if embedder := cfg.Embedder(); embedder != nil {
			index = similarity.NewMemoryIndex(embedder, cfg.IndexConfig())
		}

		find, err = finder.New(store, index, cfg.FinderConfig())
		if err != nil {
			return err
		}
		g, err := gate.New(find, cfg.GateConfig())
		if err != nil {
			return err
		}
		m, err := merge.New(cfg.MergeConfig())
		if err != nil {
			return err
		}
		eng, err = engine.New(store, index, g, m, cfg.EngineConfig())
		if err != nil {
			return err
		}

		// The in-memory index starts cold per process; warm it from the
		// current corpus so index-path scoring works in one-shot commands
		if index != nil {
			warmIndex(cmd.Context(), store, index)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
	},
}

// warmIndex loads every non-archived document into the in-memory index.
// Best-effort: an unavailable index just leaves the finder in degraded mode.
func warmIndex(ctx context.Context, store storage.Store, index similarity.Index) {
	docs, err := store.List(ctx, storage.DocumentFilter{})
	if err != nil {
		log.Printf("[CLI] failed to list documents for index warmup: %v", err)
		return
	}
	for _, doc := range docs {
		if doc.Status == types.StatusArchived {
			continue
		}
		if err := index.Add(ctx, doc.ID, doc.Content); err != nil {
			log.Printf("[CLI] index warmup stopped at %s: %v", doc.ID, err)
			return
		}
	}
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "scribe.yaml", "path to config file")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
