// Package checkpoint persists crawl state snapshots so interrupted runs
// resume where they left off.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/harvestkit/harvestkit/internal/state"
)

// DefaultInterval between periodic saves.
const DefaultInterval = 60 * time.Second

// File is the on-disk checkpoint document.
type File struct {
	state.Snapshot
	Timestamp time.Time `json:"timestamp"`
}

// Manager writes and reads checkpoint files. An empty path disables it.
type Manager struct {
	path     string
	interval time.Duration
	logger   *zap.Logger
}

func NewManager(path string, interval time.Duration, logger *zap.Logger) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{path: path, interval: interval, logger: logger}
}

// Save writes a snapshot atomically: the document goes to a temp file in
// the same directory and is renamed into place, so a crash mid-write
// never corrupts the previous checkpoint.
func (m *Manager) Save(st *state.CrawlState) error {
	if m.path == "" {
		return nil
	}
	doc := File{
		Snapshot:  st.Snapshot(),
		Timestamp: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	m.logger.Info("checkpoint saved",
		zap.String("path", m.path),
		zap.Int("visited", len(doc.Visited)))
	return nil
}

// Load reads the checkpoint file. Absent, disabled, or corrupt
// checkpoints all yield (nil, nil): a fresh start is always safe, and a
// bad file must not block a new run.
func (m *Manager) Load() (*File, error) {
	if m.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		m.logger.Warn("checkpoint unreadable, starting fresh", zap.Error(err))
		return nil, nil
	}
	var doc File
	if err := json.Unmarshal(data, &doc); err != nil {
		m.logger.Warn("checkpoint corrupt, starting fresh", zap.Error(err))
		return nil, nil
	}
	m.logger.Info("checkpoint loaded",
		zap.String("path", m.path),
		zap.Int("visited", len(doc.Visited)),
		zap.Time("saved_at", doc.Timestamp))
	return &doc, nil
}

// Run saves st every interval until ctx is cancelled. The final save on
// shutdown belongs to the orchestrator, not this loop.
func (m *Manager) Run(ctx context.Context, st *state.CrawlState) {
	if m.path == "" {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Save(st); err != nil {
				m.logger.Error("periodic checkpoint failed", zap.Error(err))
			}
		}
	}
}
