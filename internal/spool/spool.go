// Package spool keeps unrecognized log lines on disk so operators can
// audit classifier coverage gaps. The spool is bounded by entry count and
// age; overflow drops the newest entries rather than blocking the pipeline.
package spool

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/logpatrol/logpatrol/pkg/types"
)

var (
	ErrSpoolClosed = errors.New("spool is closed")
	ErrSpoolFull   = errors.New("spool is full")
)

// Entry is one unrecognized line with its origin.
type Entry struct {
	ServiceID  string    `json:"service_id"`
	SourceFile string    `json:"source_file"`
	Raw        string    `json:"raw"`
	SeenAt     time.Time `json:"seen_at"`
}

// Config holds spool configuration.
type Config struct {
	Dir           string
	MaxEntries    int
	MaxAge        time.Duration
	FlushInterval time.Duration
}

// Spool is a bounded disk-backed store of unrecognized lines.
type Spool struct {
	config Config

	mu      sync.RWMutex
	entries []Entry
	closed  bool
	dropped uint64

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a spool persisting under config.Dir.
func New(config Config) (*Spool, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("spool directory is required")
	}
	if config.MaxEntries == 0 {
		config.MaxEntries = 10000
	}
	if config.MaxAge == 0 {
		config.MaxAge = 72 * time.Hour
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = 30 * time.Second
	}

	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}

	s := &Spool{
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("load spool: %w", err)
	}

	go s.flushLoop()
	return s, nil
}

// Add records an unrecognized event.
func (s *Spool) Add(event *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSpoolClosed
	}
	if len(s.entries) >= s.config.MaxEntries {
		s.dropped++
		return ErrSpoolFull
	}

	s.entries = append(s.entries, Entry{
		ServiceID:  event.ServiceID,
		SourceFile: event.SourceFile,
		Raw:        event.Raw,
		SeenAt:     time.Now(),
	})
	return nil
}

// Entries returns a snapshot of spooled lines, newest last.
func (s *Spool) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of spooled entries.
func (s *Spool) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dropped returns how many entries were rejected because the spool was full.
func (s *Spool) Dropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

// Close flushes and stops the spool.
func (s *Spool) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
	return s.flush()
}

func (s *Spool) flushLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expire()
			s.flush()
		case <-s.stopCh:
			return
		}
	}
}

// expire drops entries older than the configured maximum age.
func (s *Spool) expire() {
	cutoff := time.Now().Add(-s.config.MaxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.SeenAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

func (s *Spool) flush() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.entries, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal spool: %w", err)
	}

	file := s.file()
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write spool: %w", err)
	}
	return os.Rename(tmp, file)
}

func (s *Spool) load() error {
	data, err := os.ReadFile(s.file())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &s.entries)
}

func (s *Spool) file() string {
	return filepath.Join(s.config.Dir, "unrecognized.json")
}
