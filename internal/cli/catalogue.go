package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openstats/factstore/internal/lifecycle"
)

// catalogueFile sits next to the dataset directories and persists the
// registry between invocations. The lifecycle manager itself keeps
// registry state in memory only.
const catalogueFile = "catalogue.json"

func cataloguePath(basePath string) string {
	return filepath.Join(basePath, catalogueFile)
}

func readCatalogue(basePath string) (lifecycle.Snapshot, bool, error) {
	data, err := os.ReadFile(cataloguePath(basePath))
	if err != nil {
		if os.IsNotExist(err) {
			return lifecycle.Snapshot{}, false, nil
		}
		return lifecycle.Snapshot{}, false, err
	}

	var snap lifecycle.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return lifecycle.Snapshot{}, false, fmt.Errorf("parse %s: %w", cataloguePath(basePath), err)
	}
	return snap, true, nil
}

func (e *environment) saveCatalogue() error {
	data, err := json.MarshalIndent(e.manager.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalogue: %w", err)
	}
	if err := os.MkdirAll(e.basePath, 0o755); err != nil {
		return err
	}
	return os.WriteFile(cataloguePath(e.basePath), append(data, '\n'), 0o644)
}
