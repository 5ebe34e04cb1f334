package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openstats/factstore/internal/ingest"
	"github.com/openstats/factstore/internal/lifecycle"
	"github.com/openstats/factstore/internal/model"
	"github.com/openstats/factstore/internal/store"
)

// IngestResult is the success payload of the ingest command.
type IngestResult struct {
	DataSetID        string `json:"dataSetId"`
	DataSetVersionID string `json:"dataSetVersionId"`
	Version          string `json:"version"`
	Status           string `json:"status"`
	UnresolvedFlags  int    `json:"unresolvedFlags,omitempty"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dataSetID  string
		releaseID  string
		instanceID string
	)

	cmd := &cobra.Command{
		Use:   "ingest <manifest.cue> <facts.csv>",
		Short: "Ingest a release into a new dataset version",
		Long: `Ingest a CUE manifest and CSV facts file into a new dataset version.

Without --dataset a new dataset is created at version 1.0. With
--dataset a successor of the dataset's latest published version is
created; its dimensions are reconciled against the published version
and the result published directly, or held for mapping review when
options disappeared.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(rootOpts, cmd, args[0], args[1], dataSetID, releaseID, instanceID)
		},
	}

	cmd.Flags().StringVar(&dataSetID, "dataset", "", "existing dataset id (create next version)")
	cmd.Flags().StringVar(&releaseID, "release", "", "source release file id")
	cmd.Flags().StringVar(&instanceID, "instance", "", "idempotency key for this run (required)")
	_ = cmd.MarkFlagRequired("instance")

	return cmd
}

func runIngest(opts *RootOptions, cmd *cobra.Command, manifestPath, factsPath, dataSetID, releaseID, instanceID string) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return err
	}

	manifest, err := ingest.LoadManifest(manifestPath)
	if err != nil {
		_ = formatter.Error("MANIFEST_INVALID", err.Error(), nil)
		return WrapExitError(ExitCommandError, "manifest", err)
	}

	var res lifecycle.CreateResult
	if dataSetID == "" {
		res, err = env.manager.CreateInitialVersion(ctx, lifecycle.InitialVersionRequest{
			DataSetName:    manifest.Name,
			DataSetSummary: manifest.Summary,
			ReleaseFileID:  releaseID,
			InstanceID:     instanceID,
		})
	} else {
		res, err = env.manager.CreateNextVersion(ctx, lifecycle.NextVersionRequest{
			DataSetID:     dataSetID,
			ReleaseFileID: releaseID,
			InstanceID:    instanceID,
		})
	}
	if err != nil {
		_ = formatter.Error("CREATE_FAILED", err.Error(), nil)
		return WrapExitError(ExitCommandError, "create version", err)
	}
	formatter.VerboseLog("Created version %s of dataset %s", res.DataSetVersionID, res.DataSetID)

	// Idempotent replay: the instance id matched an earlier run whose
	// version already left Draft.
	if version, err := env.manager.GetVersion(res.DataSetVersionID); err == nil && version.Status != model.StatusDraft {
		return outputIngestResult(formatter, env, res, version)
	}

	source := lifecycle.SourceFunc(func(ctx context.Context) (store.VersionData, error) {
		return ingest.Extract(ctx, manifestPath, factsPath)
	})
	processErr := env.manager.ProcessVersion(ctx, res.DataSetVersionID, source)

	// The registry changed whether processing succeeded or not.
	if err := env.saveCatalogue(); err != nil {
		return WrapExitError(ExitCommandError, "save catalogue", err)
	}

	if processErr != nil {
		_ = formatter.Error("PROCESSING_FAILED", processErr.Error(), nil)
		return WrapExitError(ExitFailure, "processing", processErr)
	}

	version, err := env.manager.GetVersion(res.DataSetVersionID)
	if err != nil {
		return WrapExitError(ExitCommandError, "lookup version", err)
	}
	return outputIngestResult(formatter, env, res, version)
}

func outputIngestResult(formatter *OutputFormatter, env *environment, res lifecycle.CreateResult, version model.DataSetVersion) error {
	result := IngestResult{
		DataSetID:        res.DataSetID,
		DataSetVersionID: res.DataSetVersionID,
		Version:          version.Version.String(),
		Status:           string(version.Status),
	}
	if changelog, err := env.manager.GetChangelog(res.DataSetVersionID); err == nil {
		result.UnresolvedFlags = changelog.Unresolved()
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "Dataset %s version %s: %s\n", result.DataSetID, result.Version, result.Status)
	if version.Status == model.StatusMapping {
		fmt.Fprintf(formatter.Writer, "%d mapping flag(s) need review: factstore mappings %s %s\n",
			result.UnresolvedFlags, result.DataSetID, result.Version)
	}
	return nil
}

// exit code helper shared with other lifecycle-facing commands
func lifecycleExitCode(err error) int {
	var stateErr *model.StateError
	if lifecycle.IsNotFound(err) || errors.As(err, &stateErr) {
		return ExitCommandError
	}
	return ExitFailure
}
