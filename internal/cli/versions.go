package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openstats/factstore/internal/model"
)

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "versions <dataset-id>",
		Short:         "List a dataset's versions and their statuses",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersions(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runVersions(opts *RootOptions, cmd *cobra.Command, dataSetID string) error {
	formatter := newFormatter(opts, cmd)

	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return err
	}

	versions, err := env.manager.ListVersions(dataSetID)
	if err != nil {
		_ = formatter.Error("DATASET_NOT_FOUND", err.Error(), nil)
		return WrapExitError(ExitCommandError, "list versions", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(versions)
	}

	for _, v := range versions {
		line := fmt.Sprintf("%-8s %-12s release=%s", v.Version.String(), v.Status, v.ReleaseFileID)
		if v.Status == model.StatusPublished || v.Status == model.StatusWithdrawn {
			line += " published=" + v.Published.Format("2006-01-02")
		}
		fmt.Fprintln(formatter.Writer, line)
	}
	return nil
}

// findVersion locates one dataset version by its public number.
func (e *environment) findVersion(dataSetID, versionStr string) (model.DataSetVersion, error) {
	want, err := model.ParseVersion(versionStr)
	if err != nil {
		return model.DataSetVersion{}, err
	}
	versions, err := e.manager.ListVersions(dataSetID)
	if err != nil {
		return model.DataSetVersion{}, err
	}
	for _, v := range versions {
		if v.Version == want {
			return v, nil
		}
	}
	return model.DataSetVersion{}, fmt.Errorf("dataset %s has no version %s", dataSetID, want)
}
