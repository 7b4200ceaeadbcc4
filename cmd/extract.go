package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newExtractCmd creates the 'extract' subcommand, which converts stored articles into records.
func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Converts every stored article into a JSON record",
		RunE:  runExtractCommand,
	}
}

func runExtractCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	runner, cleanup, err := appInstance.NewExtractor()
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := runner.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run extract: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Converted %d of %d documents in %s (%d failed)\n",
		summary.Converted, summary.Documents, summary.Elapsed.Round(time.Second), summary.Failed)
	return nil
}
