package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"supportkb/src/infrastructure/integrations/zendesk"
	"supportkb/src/log"
	"supportkb/src/storage/minioctrl"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the help center and synchronize the knowledge base",
	Long: `The scrape command walks the configured help center category,
ingests new and changed articles and removes articles that no longer
exist on the site.`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	scrapeCmd.Flags().String("url", "", "help center category URL (overrides SCRAPE_CATEGORY_URL)")
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	categoryURL, _ := cmd.Flags().GetString("url")
	if categoryURL == "" {
		categoryURL = viper.GetString("scrape.category_url")
	}
	if categoryURL == "" {
		return fmt.Errorf("no category URL configured")
	}

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

	cfg := zendesk.Config{
		CategoryURL:       categoryURL,
		RequestsPerSecond: viper.GetFloat64("scrape.requests_per_second"),
	}

	if viper.GetBool("scrape.archive_pages") {
		archive, err := minioctrl.NewMinioService(
			viper.GetString("minio.endpoint"),
			viper.GetString("minio.access_key"),
			viper.GetString("minio.secret_key"),
			viper.GetBool("minio.use_ssl"),
		)
		if err != nil {
			return err
		}
		if err := archive.EnsureBucketExists(ctx, minioctrl.RawPagesBucket); err != nil {
			return err
		}
		cfg.Archive = archive
	}

	scraper, err := zendesk.NewScraper(cfg)
	if err != nil {
		return err
	}

	log.Info("scraping help center", "url", categoryURL)
	result, err := scraper.Scrape(ctx)
	if err != nil {
		return err
	}

	for _, failure := range result.Failures {
		log.Info("page skipped", "url", failure.URL, "reason", failure.Reason)
	}

	summary, err := deps.ingest.SyncScrape(ctx, result.Articles)
	if err != nil {
		return err
	}

	fmt.Printf("scraped %d articles (%d pages skipped)\n", len(result.Articles), len(result.Failures))
	fmt.Printf("ingested %d, unchanged %d, removed %d\n",
		summary.Ingested, summary.Unchanged, summary.Removed)
	return nil
}
