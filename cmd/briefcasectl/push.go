package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/briefcasehub/briefcase-manager/internal/nativedb"
)

func newPushCmd() *cobra.Command {
	var (
		description  string
		schemaChange bool
		relinquish   bool
	)

	cmd := &cobra.Command{
		Use:   "push <key>",
		Short: "Push locally staged changes to the hub as a new changeset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			key := briefcase.Key(args[0])

			changeType := nativedb.Regular
			if schemaChange {
				changeType = nativedb.Schema
			}

			if err := cc.Mgr.PushChangesByKey(cmd.Context(), key, description, changeType, relinquish); err != nil {
				return fmt.Errorf("pushing: %w", err)
			}

			e, _ := cc.Mgr.FindBriefcaseByKey(key)
			statusf(cmd, "pushed %s to changeset %s", key, e.ParentChangeSetId)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "changeset description")
	cmd.Flags().BoolVar(&schemaChange, "schema", false, "mark this changeset as a schema change")
	cmd.Flags().BoolVar(&relinquish, "relinquish-codes", false, "release code reservations after push")
	return cmd
}
