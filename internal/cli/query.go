package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/openstats/factstore/internal/engine"
	"github.com/openstats/factstore/internal/query"
	"github.com/openstats/factstore/internal/store"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var draft bool

	cmd := &cobra.Command{
		Use:   "query <dataset-id> <version> <request.json>",
		Short: "Run a query request against a dataset version",
		Long: `Run a query request against one published dataset version.

The request file holds the indicators to project, an optional criteria
tree of facets combined with and/or/not, sort terms and paging. Results
reference dimensions by their public identifiers.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, cmd, args[0], args[1], args[2], draft)
		},
	}

	cmd.Flags().BoolVar(&draft, "draft", false, "allow querying draft and mapping versions")

	return cmd
}

func runQuery(opts *RootOptions, cmd *cobra.Command, dataSetID, versionStr, requestPath string, draft bool) error {
	formatter := newFormatter(opts, cmd)

	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(requestPath)
	if err != nil {
		_ = formatter.Error("REQUEST_UNREADABLE", err.Error(), nil)
		return WrapExitError(ExitCommandError, "read request", err)
	}
	var req query.Request
	if err := json.Unmarshal(data, &req); err != nil {
		_ = formatter.Error("REQUEST_INVALID", err.Error(), nil)
		return WrapExitError(ExitCommandError, "parse request", err)
	}

	version, err := env.findVersion(dataSetID, versionStr)
	if err != nil {
		_ = formatter.Error("VERSION_NOT_FOUND", err.Error(), nil)
		return WrapExitError(ExitCommandError, "find version", err)
	}

	engineOpts := []engine.Option{engine.WithLogger(env.logger)}
	if draft {
		engineOpts = append(engineOpts, engine.WithDraftPreview())
	}
	eng := engine.New(env.store, engineOpts...)

	resp, err := eng.RunQuery(cmd.Context(), version, req)
	if err != nil {
		return outputQueryError(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(resp)
	}
	return writeQueryText(formatter, resp)
}

func outputQueryError(formatter *OutputFormatter, err error) error {
	var queryErr *engine.QueryError
	if errors.As(err, &queryErr) {
		_ = formatter.Error(string(queryErr.Code), queryErr.Message, queryErr.Refs)
		return WrapExitError(ExitFailure, "query rejected", err)
	}
	var notReady *store.NotReadyError
	if errors.As(err, &notReady) {
		_ = formatter.Error("VERSION_NOT_READY", err.Error(), nil)
		return WrapExitError(ExitCommandError, "query", err)
	}
	_ = formatter.Error("QUERY_FAILED", err.Error(), nil)
	return WrapExitError(ExitFailure, "query", err)
}

func writeQueryText(formatter *OutputFormatter, resp *engine.Response) error {
	w := formatter.Writer
	fmt.Fprintf(w, "page %d of %d (%d results)\n",
		resp.Paging.Page, resp.Paging.TotalPages, resp.Paging.TotalResults)

	for _, row := range resp.Results {
		fmt.Fprintf(w, "%s %s %s %s", row.GeographicLevel, row.LocationID, row.TimePeriod.Period, row.TimePeriod.Code)
		for _, col := range sortedTextKeys(row.Filters) {
			fmt.Fprintf(w, " %s=%s", col, row.Filters[col])
		}
		fmt.Fprint(w, " |")
		for _, name := range sortedTextKeys(row.Values) {
			fmt.Fprintf(w, " %s=%s", name, row.Values[name])
		}
		fmt.Fprintln(w)
	}

	for _, fn := range resp.Footnotes {
		fmt.Fprintf(w, "note: %s\n", fn.Content)
	}
	return nil
}

func sortedTextKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
