package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// loadCache reads the catalog cache file. A missing or corrupt file yields
// an empty catalog, never an error; the refresh policy handles the rest.
func loadCache(path string) *Catalog {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("cannot read project cache, treating as empty", "path", path, "error", err)
		}
		return &Catalog{}
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		slog.Warn("project cache is corrupt, treating as empty", "path", path, "error", err)
		return &Catalog{}
	}
	return &c
}

// saveCache atomically persists the catalog.
func saveCache(path string, c *Catalog) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: marshal cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("catalog: create cache dir: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("catalog: write cache %q: %w", path, err)
	}
	return nil
}
