package voice

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPruneRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	files := map[string]time.Duration{
		"voice_old.mp3":    8 * 24 * time.Hour,
		"voice_old.webm":   7*24*time.Hour + time.Minute,
		"voice_fresh.mp3":  6 * 24 * time.Hour,
		"voice_recent.mp3": time.Minute,
	}
	for name, age := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		mtime := now.Add(-age)
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	removed, err := Prune(dir, 7*24*time.Hour, now)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	for _, keep := range []string{"voice_fresh.mp3", "voice_recent.mp3", "nested"} {
		if _, err := os.Stat(filepath.Join(dir, keep)); err != nil {
			t.Fatalf("%s should survive: %v", keep, err)
		}
	}
}

func TestPruneMissingDir(t *testing.T) {
	removed, err := Prune(filepath.Join(t.TempDir(), "absent"), time.Hour, time.Now())
	if err != nil || removed != 0 {
		t.Fatalf("missing dir should be a no-op, got %d %v", removed, err)
	}
}
