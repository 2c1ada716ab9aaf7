package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LocalAudioPruner deletes local audio files older than a retention window.
// Unlike CachePruner (which only evicts a local cache backed by durable S3
// storage), this runs when the local filesystem IS the canonical store, so
// a pruned file is gone for good — it implements spec.md §5's "audio GC
// task every 24h" for STORAGE_MODE=local deployments.
type LocalAudioPruner struct {
	audioDir  string
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewLocalAudioPruner creates a pruner that deletes files under audioDir
// whose modification time is older than retainDays. retainDays <= 0
// disables pruning (Start becomes a no-op loop that never deletes).
func NewLocalAudioPruner(audioDir string, retainDays int, log zerolog.Logger) *LocalAudioPruner {
	return &LocalAudioPruner{
		audioDir:  audioDir,
		retention: time.Duration(retainDays) * 24 * time.Hour,
		interval:  24 * time.Hour,
		log:       log.With().Str("component", "audio-pruner").Logger(),
		stop:      make(chan struct{}),
	}
}

func (p *LocalAudioPruner) Start() {
	go p.loop()
}

func (p *LocalAudioPruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *LocalAudioPruner) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

func (p *LocalAudioPruner) prune() {
	if p.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-p.retention)
	var pruned int

	filepath.WalkDir(p.audioDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(path) == nil {
				pruned++
			}
		}
		return nil
	})

	if pruned > 0 {
		p.log.Info().Int("pruned", pruned).Msg("local audio prune complete")
	}
}
