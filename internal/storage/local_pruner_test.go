package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLocalAudioPrunerDeletesOldFiles(t *testing.T) {
	dir := t.TempDir()

	oldPath := filepath.Join(dir, "old.wav")
	newPath := filepath.Join(dir, "new.wav")
	if err := os.WriteFile(oldPath, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newPath, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldPath, old, old); err != nil {
		t.Fatal(err)
	}

	p := NewLocalAudioPruner(dir, 1, zerolog.Nop())
	p.prune()

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Errorf("expected old.wav to be pruned, stat err = %v", err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Errorf("expected new.wav to survive, stat err = %v", err)
	}
}

func TestLocalAudioPrunerDisabledWhenRetentionZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.wav")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-1000 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	p := NewLocalAudioPruner(dir, 0, zerolog.Nop())
	p.prune()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to survive with retention disabled, stat err = %v", err)
	}
}
