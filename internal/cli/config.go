package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openstats/factstore/internal/lifecycle"
	"github.com/openstats/factstore/internal/paths"
	"github.com/openstats/factstore/internal/store"
)

// DefaultConfigFile is looked up in the working directory when no
// --config flag is given.
const DefaultConfigFile = "factstore.yaml"

// Config is the CLI configuration file.
type Config struct {
	// BasePath is the root directory dataset version files live under.
	BasePath string `yaml:"basePath"`

	// MappingPolicy selects how disappeared dimension options are
	// reconciled during next-version processing: "structural" maps
	// options whose attributes match, "flag" holds every one for
	// manual review. Defaults to structural.
	MappingPolicy string `yaml:"mappingPolicy,omitempty"`
}

// LoadConfig reads the config file. An explicit path must exist; the
// default file is optional.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.MappingPolicy != "" && cfg.MappingPolicy != "structural" && cfg.MappingPolicy != "flag" {
		return Config{}, fmt.Errorf("parse config %s: unknown mappingPolicy %q", path, cfg.MappingPolicy)
	}
	return cfg, nil
}

// loadEnvironment resolves config plus flags into the store and
// lifecycle manager a command runs against.
func loadEnvironment(opts *RootOptions, cmd *cobra.Command) (*environment, error) {
	cfg, err := LoadConfig(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	basePath := opts.BasePath
	if basePath == "" {
		basePath = cfg.BasePath
	}
	if basePath == "" {
		return nil, NewExitError(ExitCommandError, "no base path: set --base-path or basePath in "+DefaultConfigFile)
	}

	resolver, err := paths.NewResolver(paths.Config{BasePath: basePath})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "base path", err)
	}
	st := store.New(resolver)

	logger := slog.New(slog.DiscardHandler)
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	managerOpts := []lifecycle.Option{lifecycle.WithLogger(logger)}
	if cfg.MappingPolicy == "flag" {
		managerOpts = append(managerOpts, lifecycle.WithMappingPolicy(lifecycle.FlagForReviewPolicy{}))
	}
	manager := lifecycle.NewManager(st, managerOpts...)

	env := &environment{
		basePath: basePath,
		store:    st,
		manager:  manager,
		logger:   logger,
	}
	if err := env.loadCatalogue(); err != nil {
		return nil, err
	}
	return env, nil
}

// environment bundles the per-invocation wiring shared by commands.
type environment struct {
	basePath string
	store    *store.Store
	manager  *lifecycle.Manager
	logger   *slog.Logger
}

func (e *environment) loadCatalogue() error {
	snap, found, err := readCatalogue(e.basePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load catalogue", err)
	}
	if !found {
		return nil
	}
	if err := e.manager.Restore(snap); err != nil {
		return WrapExitError(ExitCommandError, "load catalogue", err)
	}
	return nil
}
