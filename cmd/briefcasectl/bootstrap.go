package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/briefcasehub/briefcase-manager/internal/index"
)

// newBootstrapCmd rebuilds the index from an offline scan of the cache root
// without starting a Manager, for operators recovering from a lost index or
// inspecting what's on disk (spec §4.I offline bootstrap).
func newBootstrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "bootstrap",
		Short:       "Rebuild the index from an offline scan of the cache root",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipManagerAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, layout, logger, err := loadConfigAndLayout()
			if err != nil {
				return err
			}

			idx := index.New()
			if err := index.Bootstrap(cmd.Context(), idx, layout, newDbFactory, logger); err != nil {
				return fmt.Errorf("bootstrapping index: %w", err)
			}

			entries := idx.All()
			statusf(cmd, "scanned %s, found %d briefcase(s)", layout.VersionDir(), len(entries))
			for _, e := range entries {
				fmt.Printf("%s\t%s\n", e.Key(), e.Pathname)
			}
			return nil
		},
	}
	return cmd
}
