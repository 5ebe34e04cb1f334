package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openstats/factstore/internal/lifecycle"
)

// NewMappingsCommand creates the mappings command.
func NewMappingsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		resolvePrev string
		resolveTo   string
		kind        string
		publish     bool
	)

	cmd := &cobra.Command{
		Use:   "mappings <dataset-id> <version>",
		Short: "Show and resolve a version's mapping changelog",
		Long: `Show the mapping changelog a next version produced during
processing, resolve flagged entries and publish once none remain.

--resolve names the previous version's public id; --to names its
replacement in the new version, or stays empty to confirm removal.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMappings(rootOpts, cmd, args[0], args[1], resolvePrev, resolveTo, kind, publish)
		},
	}

	cmd.Flags().StringVar(&resolvePrev, "resolve", "", "flagged public id to resolve")
	cmd.Flags().StringVar(&resolveTo, "to", "", "public id the flagged option maps to (empty = removed)")
	cmd.Flags().StringVar(&kind, "kind", string(lifecycle.KindFilterOption), "mapping kind (filterOption|location)")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish the version after resolving")

	return cmd
}

func runMappings(opts *RootOptions, cmd *cobra.Command, dataSetID, versionStr, resolvePrev, resolveTo, kind string, publish bool) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	mappingKind := lifecycle.MappingKind(kind)
	if mappingKind != lifecycle.KindFilterOption && mappingKind != lifecycle.KindLocation {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown mapping kind %q", kind))
	}

	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return err
	}

	version, err := env.findVersion(dataSetID, versionStr)
	if err != nil {
		_ = formatter.Error("VERSION_NOT_FOUND", err.Error(), nil)
		return WrapExitError(ExitCommandError, "find version", err)
	}

	if resolvePrev != "" {
		if err := env.manager.ResolveMapping(ctx, version.ID, mappingKind, resolvePrev, resolveTo); err != nil {
			_ = formatter.Error("RESOLVE_FAILED", err.Error(), nil)
			return WrapExitError(lifecycleExitCode(err), "resolve mapping", err)
		}
		if err := env.saveCatalogue(); err != nil {
			return WrapExitError(ExitCommandError, "save catalogue", err)
		}
		formatter.VerboseLog("Resolved %s %s", kind, resolvePrev)
	}

	if publish {
		if err := env.manager.PublishVersion(ctx, version.ID); err != nil {
			var unresolved *lifecycle.UnresolvedMappingError
			if errors.As(err, &unresolved) {
				_ = formatter.Error("MAPPINGS_UNRESOLVED", err.Error(), nil)
				return WrapExitError(ExitFailure, "publish", err)
			}
			_ = formatter.Error("PUBLISH_FAILED", err.Error(), nil)
			return WrapExitError(lifecycleExitCode(err), "publish", err)
		}
		if err := env.saveCatalogue(); err != nil {
			return WrapExitError(ExitCommandError, "save catalogue", err)
		}
	}

	changelog, err := env.manager.GetChangelog(version.ID)
	if err != nil {
		_ = formatter.Error("NO_CHANGELOG", err.Error(), nil)
		return WrapExitError(ExitCommandError, "changelog", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(changelog)
	}
	return writeChangelogText(formatter, changelog)
}

func writeChangelogText(formatter *OutputFormatter, changelog *lifecycle.Changelog) error {
	w := formatter.Writer
	fmt.Fprintf(w, "%s -> %s\n", changelog.FromVersion.String(), changelog.ToVersion.String())

	for _, entry := range changelog.Entries {
		switch entry.Change {
		case lifecycle.ChangeMapped:
			fmt.Fprintf(w, "%-12s mapped  %s -> %s\n", entry.Kind, entry.PreviousPublicID, entry.NextPublicID)
		case lifecycle.ChangeAdded:
			fmt.Fprintf(w, "%-12s added   %s (%s)\n", entry.Kind, entry.NextPublicID, entry.Label)
		case lifecycle.ChangeRemoved:
			fmt.Fprintf(w, "%-12s removed %s (%s)\n", entry.Kind, entry.PreviousPublicID, entry.Label)
		case lifecycle.ChangeFlagged:
			fmt.Fprintf(w, "%-12s FLAGGED %s (%s)\n", entry.Kind, entry.PreviousPublicID, entry.Label)
		}
	}

	if n := changelog.Unresolved(); n > 0 {
		fmt.Fprintf(w, "%d flag(s) unresolved\n", n)
	}
	return nil
}
