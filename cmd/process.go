package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newProcessCmd() *cobra.Command {
	var sectionID string

	cmd := &cobra.Command{
		Use:   "process <url-id-or-url>",
		Short: "Run the processing cascade for one URL",
		Long: `Runs the identifier and metadata cascade for a single tracked URL.
The argument is either an existing URL id or a raw URL; raw URLs are
registered under the section given with --section before processing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			urlID, parseErr := uuid.Parse(args[0])
			if parseErr != nil {
				entity, err := a.Service().CreateURL(ctx, sectionID, args[0])
				if err != nil {
					return fmt.Errorf("register url: %w", err)
				}
				urlID = entity.ID
				a.Logger().Info("registered url", zap.String("url_id", urlID.String()))
			}

			result, err := a.Service().Process(ctx, urlID)
			if err != nil {
				return fmt.Errorf("process url: %w", err)
			}

			if result.Success {
				key := ""
				if result.ItemKey != nil {
					key = *result.ItemKey
				}
				cmd.Printf("processed: state=%s item_key=%s\n", result.NewState, key)
				return nil
			}
			cmd.Printf("not stored: state=%s error=%s (%s)\n", result.NewState, result.Error, result.Category)
			return nil
		},
	}

	cmd.Flags().StringVar(&sectionID, "section", "default", "section to register raw URLs under")
	return cmd
}
