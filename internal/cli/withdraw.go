package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewWithdrawCommand creates the withdraw command.
func NewWithdrawCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "withdraw <dataset-id> <version>",
		Short:         "Take a published version out of service",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithdraw(rootOpts, cmd, args[0], args[1])
		},
	}
	return cmd
}

func runWithdraw(opts *RootOptions, cmd *cobra.Command, dataSetID, versionStr string) error {
	formatter := newFormatter(opts, cmd)

	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return err
	}

	version, err := env.findVersion(dataSetID, versionStr)
	if err != nil {
		_ = formatter.Error("VERSION_NOT_FOUND", err.Error(), nil)
		return WrapExitError(ExitCommandError, "find version", err)
	}

	if err := env.manager.WithdrawVersion(cmd.Context(), version.ID); err != nil {
		_ = formatter.Error("WITHDRAW_FAILED", err.Error(), nil)
		return WrapExitError(lifecycleExitCode(err), "withdraw", err)
	}
	if err := env.saveCatalogue(); err != nil {
		return WrapExitError(ExitCommandError, "save catalogue", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]string{"status": "Withdrawn"})
	}
	fmt.Fprintf(formatter.Writer, "Dataset %s version %s withdrawn\n", dataSetID, version.Version.String())
	return nil
}
