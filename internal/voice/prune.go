package voice

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vovakirdan/localchat/internal/metrics"
)

// Prune deletes regular files in dir whose modification time is older than maxAge.
// Files that fail to delete are skipped; the first such error is returned alongside
// the number of files removed.
func Prune(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read voice dir: %w", err)
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	var firstErr error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", entry.Name(), err)
			}
			continue
		}
		removed++
	}
	metrics.PrunedFiles.Add(float64(removed))
	return removed, firstErr
}

// Prune deletes expired files from the transcoder's storage directory.
func (t *Transcoder) Prune(maxAge time.Duration) (int, error) {
	return Prune(t.cfg.Dir, maxAge, time.Now())
}
