package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

func newPullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull <key>",
		Short: "Pull and merge the latest changesets into an existing briefcase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			key := briefcase.Key(args[0])

			if err := cc.Mgr.PullAndMergeChanges(cmd.Context(), key); err != nil {
				return fmt.Errorf("pulling: %w", err)
			}
			statusf(cmd, "%s is up to date", key)
			return nil
		},
	}
	return cmd
}
