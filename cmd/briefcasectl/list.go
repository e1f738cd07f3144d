package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every briefcase currently tracked in the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			entries := cc.Mgr.GetBriefcases()

			if flagJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					string(e.Key),
					string(e.IModelId),
					e.SyncMode.String(),
					string(e.ParentChangeSetId),
					fmt.Sprintf("%v", e.IsOpen),
					e.DownloadStatus.String(),
				})
			}
			printTable(os.Stdout, []string{"KEY", "IMODEL", "MODE", "CHANGESET", "OPEN", "STATUS"}, rows)
			return nil
		},
	}
	return cmd
}
