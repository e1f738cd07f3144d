package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/briefcasehub/briefcase-manager/internal/hub"
)

func newDownloadCmd() *cobra.Command {
	var (
		contextId   string
		mode        string
		versionKind string
		changeSetId string
		name        string
	)

	cmd := &cobra.Command{
		Use:   "download <imodel-id>",
		Short: "Materialize a briefcase for an iModel, waiting for the download to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			iModelId := briefcase.IModelId(args[0])

			syncMode, err := parseSyncMode(mode)
			if err != nil {
				return err
			}
			version, err := parseVersionSpec(versionKind, changeSetId, name)
			if err != nil {
				return err
			}

			props, future, cancel, err := cc.Mgr.RequestDownload(cmd.Context(), briefcase.ContextId(contextId), iModelId, syncMode, version)
			if err != nil {
				return fmt.Errorf("requesting download: %w", err)
			}
			defer cancel()

			statusf(cmd, "downloading briefcase %s for iModel %s (%s)...", props.BriefcaseId, iModelId, syncMode)

			final, err := future.Wait(cmd.Context())
			if err != nil {
				return fmt.Errorf("waiting for download: %w", err)
			}
			if final.DownloadStatus != briefcase.Complete {
				return fmt.Errorf("download did not complete: status=%v", final.DownloadStatus)
			}

			fmt.Printf("briefcase ready: %s\n", final.Pathname)
			return nil
		},
	}

	cmd.Flags().StringVar(&contextId, "context", "", "owning project/context id")
	cmd.Flags().StringVar(&mode, "mode", "fixed", "fixed, pull-only, or pull-push")
	cmd.Flags().StringVar(&versionKind, "version", "latest", "latest, first, named, or changeset")
	cmd.Flags().StringVar(&changeSetId, "changeset", "", "changeset id (required when --version=changeset)")
	cmd.Flags().StringVar(&name, "name", "", "named version name (required when --version=named)")
	return cmd
}

func parseSyncMode(s string) (briefcase.SyncMode, error) {
	switch s {
	case "fixed":
		return briefcase.FixedVersion, nil
	case "pull-only":
		return briefcase.PullOnly, nil
	case "pull-push":
		return briefcase.PullAndPush, nil
	default:
		return 0, fmt.Errorf("unknown --mode %q: want fixed, pull-only, or pull-push", s)
	}
}

func parseVersionSpec(kind, changeSetId, name string) (hub.VersionSpec, error) {
	switch kind {
	case "latest":
		return hub.VersionSpec{Kind: hub.VersionLatest}, nil
	case "first":
		return hub.VersionSpec{Kind: hub.VersionFirst}, nil
	case "named":
		if name == "" {
			return hub.VersionSpec{}, fmt.Errorf("--name is required when --version=named")
		}
		return hub.VersionSpec{Kind: hub.VersionNamed, Name: name}, nil
	case "changeset":
		if changeSetId == "" {
			return hub.VersionSpec{}, fmt.Errorf("--changeset is required when --version=changeset")
		}
		return hub.VersionSpec{Kind: hub.VersionAsOfChangeSet, ChangeSetId: briefcase.ChangeSetId(changeSetId)}, nil
	default:
		return hub.VersionSpec{}, fmt.Errorf("unknown --version %q: want latest, first, named, or changeset", kind)
	}
}
