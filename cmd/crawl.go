package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newCrawlCmd creates the 'crawl' subcommand, which walks the listing and acquires every article.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Walks the topic listing and stores each article with its images",
		Long: `Opens the configured topic listing in Chrome, collects new article links page by
page and fetches each batch with a bounded worker pool until the cutoff year is
reached or the listing has no more stories.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctrl, cleanup, err := appInstance.NewCrawler()
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := ctrl.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d stories and their images in %s (%d skipped, %d failed, stop: %s)\n",
		summary.Acquired, summary.Elapsed.Round(time.Second), summary.Skipped, summary.Failed, summary.StopReason)
	return nil
}
