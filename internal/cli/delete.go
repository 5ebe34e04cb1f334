package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openstats/factstore/internal/lifecycle"
	"github.com/openstats/factstore/internal/model"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dataSetID  string
		versionStr string
		releaseID  string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete dataset versions and their files",
		Long: `Delete a single dataset version, or every version created from one
release file.

Published versions are refused; withdraw first, or pass --force with
--release to take published versions out too.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			single := dataSetID != "" || versionStr != ""
			bulk := releaseID != ""
			if single == bulk {
				return fmt.Errorf("pass either --dataset with --version, or --release")
			}
			if single && (dataSetID == "" || versionStr == "") {
				return fmt.Errorf("--dataset and --version go together")
			}
			return runDelete(rootOpts, cmd, dataSetID, versionStr, releaseID, force)
		},
	}

	cmd.Flags().StringVar(&dataSetID, "dataset", "", "dataset id of the version to delete")
	cmd.Flags().StringVar(&versionStr, "version", "", "version number to delete, e.g. 1.1")
	cmd.Flags().StringVar(&releaseID, "release", "", "delete every version of this release file id")
	cmd.Flags().BoolVar(&force, "force", false, "with --release, delete published versions too")

	return cmd
}

func runDelete(opts *RootOptions, cmd *cobra.Command, dataSetID, versionStr, releaseID string, force bool) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return err
	}

	deleted := 0
	if releaseID != "" {
		deleted, err = env.manager.BulkDeleteVersions(ctx, releaseID, force)
	} else {
		var v model.DataSetVersion
		if v, err = env.findVersion(dataSetID, versionStr); err == nil {
			if err = env.manager.DeleteVersion(ctx, v.ID); err == nil {
				deleted = 1
			}
		}
	}

	if saveErr := env.saveCatalogue(); saveErr != nil && err == nil {
		err = saveErr
	}

	if err != nil {
		var refused *lifecycle.DeleteRefusedError
		if errors.As(err, &refused) {
			_ = formatter.Error("DELETE_REFUSED", err.Error(), nil)
			return WrapExitError(ExitFailure, "delete", err)
		}
		_ = formatter.Error("DELETE_FAILED", err.Error(), nil)
		return WrapExitError(lifecycleExitCode(err), "delete", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]int{"deleted": deleted})
	}
	fmt.Fprintf(formatter.Writer, "deleted %d version(s)\n", deleted)
	return nil
}
