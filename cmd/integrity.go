package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/citepipe/citepipe/internal/integrity"
)

func newIntegrityCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "integrity",
		Short: "Scan for linkage invariant violations",
		Long: `Scans every tracked URL for mismatches between the external item
linkage and the processing status. With --repair, non-critical issues are
fixed by applying their suggested repair; critical issues are only
reported.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			issues, err := a.Service().ScanIntegrity(ctx)
			if err != nil {
				return fmt.Errorf("integrity scan: %w", err)
			}
			if len(issues) == 0 {
				cmd.Println("no integrity issues found")
				return nil
			}

			for _, issue := range issues {
				cmd.Printf("%s url=%s status=%s critical=%t suggested=%s\n",
					issue.Type, issue.URLID, issue.Status, issue.Critical, issue.SuggestedRepair)

				if !repair || issue.SuggestedRepair == integrity.RepairNone {
					continue
				}
				result, err := a.Service().Repair(ctx, issue.URLID)
				if err != nil {
					return fmt.Errorf("repair url %s: %w", issue.URLID, err)
				}
				if result.Success {
					cmd.Printf("  repaired: state=%s\n", result.NewState)
				} else {
					cmd.Printf("  repair refused: %s\n", result.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "apply suggested repairs for non-critical issues")
	return cmd
}
