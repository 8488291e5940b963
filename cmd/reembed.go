package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"supportkb/src/log"
)

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Regenerate all embeddings from scratch",
	Long: `The reembed command re-chunks and re-embeds every stored article,
ignoring stored content hashes. Run it after switching the embedding
model; the old vectors are useless in the new embedding space.`,
	RunE: runReembed,
}

func init() {
	rootCmd.AddCommand(reembedCmd)
	reembedCmd.Flags().Int("workers", 4, "number of articles processed in parallel")
}

func runReembed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openDB()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	deps, err := buildPipeline(ctx, db)
	if err != nil {
		return err
	}

	articles, err := deps.articles.List(ctx)
	if err != nil {
		return err
	}
	if len(articles) == 0 {
		fmt.Println("no articles to re-embed")
		return nil
	}

	workers, _ := cmd.Flags().GetInt("workers")
	bar := progressbar.Default(int64(len(articles)), "re-embedding")

	summary, err := deps.ingest.ReembedAll(ctx, workers, func() {
		if err := bar.Add(1); err != nil {
			log.Debug("progress bar update failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nre-embedded %d articles, %d failed\n", summary.Succeeded, summary.Failed)
	for _, failure := range summary.Failures {
		fmt.Printf("  article %d (%s): %s\n", failure.ArticleID, failure.Title, failure.Reason)
	}
	return nil
}
