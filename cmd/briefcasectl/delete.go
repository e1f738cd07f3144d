package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a closed briefcase from disk and the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			key := briefcase.Key(args[0])

			if err := cc.Mgr.Delete(cmd.Context(), key); err != nil {
				return fmt.Errorf("deleting: %w", err)
			}
			statusf(cmd, "deleted %s", key)
			return nil
		},
	}
	return cmd
}

func newPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Close and delete every briefcase, then sweep orphaned on-disk directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := cc.Mgr.PurgeCache(cmd.Context()); err != nil {
				return fmt.Errorf("purging: %w", err)
			}
			statusf(cmd, "cache purged")
			return nil
		},
	}
	return cmd
}
