package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/citepipe/citepipe/internal/batch"
)

func newBatchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process pending URLs with a bounded worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}
			results, err := a.Batch().RunPending(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("run batch: %w", err)
			}
			summary := batch.Summarize(results)
			cmd.Printf("processed %d urls: %d succeeded, %d failed\n",
				summary.Total, summary.Succeeded, summary.Failed)
			for state, n := range summary.ByState {
				cmd.Printf("  %s: %d\n", state, n)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum URLs to process (0 = all pending)")
	return cmd
}
