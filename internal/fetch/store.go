package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mtsgrab/internal/logger"
)

// Store manages the on-disk segment cache for one session. Filenames are
// derived from segment URLs and unique per segment, so concurrent fetchers
// write disjoint files and the directory itself needs no locking.
type Store struct {
	dir string
	log logger.Logger
}

// NewStore creates the cache directory if needed and returns a Store for it.
func NewStore(dir string, log logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &Store{dir: dir, log: log}, nil
}

// Dir returns the cache directory path.
func (s *Store) Dir() string { return s.dir }

// Path returns the absolute cache path for a filename.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Has reports whether a cache entry exists for the filename.
func (s *Store) Has(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && !info.IsDir()
}

// Remove deletes a cache entry. Missing entries are not an error.
func (s *Store) Remove(name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache entry %s: %w", name, err)
	}
	return nil
}

// Sweep deletes every cache file whose name is not in the keep set, skipping
// subdirectories and .json files (debug dumps survive cleanup). It returns
// the number of files deleted. Sweep must not run while fetches for the same
// session are in flight.
func (s *Store) Sweep(keep map[string]struct{}) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warnf("Could not read cache directory %s for cleanup: %v", s.dir, err)
		return 0
	}

	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".json") {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.log.Warnf("Could not delete %s: %v", name, err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Infof("Deleted %d segment files from %s", deleted, s.dir)
	}
	return deleted
}
