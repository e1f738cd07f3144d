package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

func newReverseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverse <key> <changeset-id>",
		Short: "Roll a briefcase backward to an earlier changeset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			key := briefcase.Key(args[0])
			target := briefcase.ChangeSetId(args[1])

			if err := cc.Mgr.ReverseChanges(cmd.Context(), key, target); err != nil {
				return fmt.Errorf("reversing: %w", err)
			}
			statusf(cmd, "%s reversed to %s", key, target)
			return nil
		},
	}
	return cmd
}

func newReinstateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reinstate <key> <changeset-id>",
		Short: "Roll a reversed briefcase forward, merging past its parent if the target is newer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			key := briefcase.Key(args[0])
			target := briefcase.ChangeSetId(args[1])

			if err := cc.Mgr.ReinstateChanges(cmd.Context(), key, target); err != nil {
				return fmt.Errorf("reinstating: %w", err)
			}
			statusf(cmd, "%s reinstated to %s", key, target)
			return nil
		},
	}
	return cmd
}
