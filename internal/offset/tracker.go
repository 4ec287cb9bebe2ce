// Package offset turns the remote API's "download whole file" into "read
// only what's new". It remembers the last known size per (service, path),
// slices fresh downloads at that offset, and detects truncation/rotation
// when a file shrinks. Positions survive restarts via a JSON file written
// with an atomic tmp+rename.
package offset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/logpatrol/logpatrol/internal/logging"
	"github.com/logpatrol/logpatrol/pkg/types"
)

// DownloadFunc fetches the full current content of the file being tracked.
type DownloadFunc func(ctx context.Context) ([]byte, error)

// Delta is the outcome of one ReadDelta call. Content is empty when the
// file has not grown. The new offset becomes durable only after Commit.
type Delta struct {
	Content   []byte
	NewOffset int64
	Rotated   bool
}

// Tracker owns the per-file read positions for all monitored services.
type Tracker struct {
	mu        sync.RWMutex
	stateDir  string
	positions map[string]*types.FilePosition
	interval  time.Duration
	logger    *logging.Logger
	stopCh    chan struct{}
	saveCh    chan struct{}
	stopOnce  sync.Once
}

// NewTracker creates a tracker persisting positions under stateDir.
func NewTracker(stateDir string, interval time.Duration, logger *logging.Logger) (*Tracker, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	if interval == 0 {
		interval = 5 * time.Second
	}

	return &Tracker{
		stateDir:  stateDir,
		positions: make(map[string]*types.FilePosition),
		interval:  interval,
		logger:    logger.WithComponent("offset"),
		stopCh:    make(chan struct{}),
		saveCh:    make(chan struct{}, 1),
	}, nil
}

// Start begins the periodic persistence loop.
func (t *Tracker) Start() {
	go t.saveLoop()
}

// Stop stops the loop and writes a final snapshot.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
	if err := t.Save(); err != nil {
		t.logger.Error().Err(err).Msg("Final position save failed")
	}
}

// ReadDelta computes the new bytes for a file given its current listing
// size. The stored offset is untouched; callers must Commit the returned
// offset once processing succeeded, so a crash between read and commit
// re-reads rather than loses lines.
func (t *Tracker) ReadDelta(ctx context.Context, serviceID string, meta types.FileMeta, download DownloadFunc) (*Delta, error) {
	last := int64(0)
	if pos, ok := t.Position(serviceID, meta.Path); ok {
		last = pos.Size
	}

	rotated := meta.Size < last
	if meta.Size <= last && !rotated {
		// No growth. Covers the common idle tick.
		return &Delta{NewOffset: last}, nil
	}

	content, err := download(ctx)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", meta.Path, err)
	}

	if rotated || int64(len(content)) < last {
		// File shrank between listing and download, or outright rotation:
		// everything currently in the file is new.
		t.logger.Info().Str("service_id", serviceID).Str("path", meta.Path).
			Int64("last_size", last).Int64("current_size", int64(len(content))).
			Msg("File rotation detected, resetting offset")
		return &Delta{Content: content, NewOffset: int64(len(content)), Rotated: true}, nil
	}

	return &Delta{Content: content[last:], NewOffset: int64(len(content))}, nil
}

// Commit records a successfully processed offset.
func (t *Tracker) Commit(serviceID, path string, offset int64, kind types.FileKind) {
	t.mu.Lock()
	t.positions[key(serviceID, path)] = &types.FilePosition{
		ServiceID: serviceID,
		Path:      path,
		Size:      offset,
		LastRead:  time.Now(),
		Kind:      kind,
	}
	t.mu.Unlock()

	select {
	case t.saveCh <- struct{}{}:
	default:
	}
}

// Position returns the stored position for a file.
func (t *Tracker) Position(serviceID, path string) (*types.FilePosition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, ok := t.positions[key(serviceID, path)]
	return pos, ok
}

// Forget drops all positions for a service. Called when the service is
// unregistered.
func (t *Tracker) Forget(serviceID string) {
	prefix := serviceID + "\x00"

	t.mu.Lock()
	for k := range t.positions {
		if strings.HasPrefix(k, prefix) {
			delete(t.positions, k)
		}
	}
	t.mu.Unlock()

	select {
	case t.saveCh <- struct{}{}:
	default:
	}
}

// Load restores positions from disk.
func (t *Tracker) Load() error {
	data, err := os.ReadFile(t.stateFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read position file: %w", err)
	}

	var positions map[string]*types.FilePosition
	if err := json.Unmarshal(data, &positions); err != nil {
		return fmt.Errorf("unmarshal positions: %w", err)
	}

	t.mu.Lock()
	t.positions = positions
	t.mu.Unlock()
	return nil
}

// Save writes the current positions to disk atomically.
func (t *Tracker) Save() error {
	t.mu.RLock()
	data, err := json.MarshalIndent(t.positions, "", "  ")
	t.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}

	tmp := t.stateFile() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write position file: %w", err)
	}
	if err := os.Rename(tmp, t.stateFile()); err != nil {
		return fmt.Errorf("rename position file: %w", err)
	}
	return nil
}

func (t *Tracker) stateFile() string {
	return filepath.Join(t.stateDir, "positions.json")
}

func (t *Tracker) saveLoop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.Save(); err != nil {
				t.logger.Error().Err(err).Msg("Periodic position save failed")
			}
		case <-t.saveCh:
			if err := t.Save(); err != nil {
				t.logger.Error().Err(err).Msg("Triggered position save failed")
			}
		case <-t.stopCh:
			return
		}
	}
}

func key(serviceID, path string) string {
	return serviceID + "\x00" + path
}
