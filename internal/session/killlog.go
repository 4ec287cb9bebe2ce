package session

import (
	"sync"
	"time"

	"github.com/logpatrol/logpatrol/pkg/types"
)

// KillRecord is one entry of the rolling kill log.
type KillRecord struct {
	At   time.Time        `json:"at"`
	Kill types.KillFields `json:"kill"`
}

// KillLog is a fixed-capacity ring of the most recent kills. Old entries
// are overwritten once the capacity wraps.
type KillLog struct {
	mu      sync.RWMutex
	entries []KillRecord
	next    int
	count   int
}

// NewKillLog creates a kill log holding up to capacity entries.
func NewKillLog(capacity int) *KillLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &KillLog{entries: make([]KillRecord, capacity)}
}

// Append records a kill.
func (l *KillLog) Append(record KillRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = record
	l.next = (l.next + 1) % len(l.entries)
	if l.count < len(l.entries) {
		l.count++
	}
}

// Recent returns up to n kills, newest first.
func (l *KillLog) Recent(n int) []KillRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > l.count {
		n = l.count
	}

	out := make([]KillRecord, 0, n)
	idx := l.next
	for i := 0; i < n; i++ {
		idx--
		if idx < 0 {
			idx = len(l.entries) - 1
		}
		out = append(out, l.entries[idx])
	}
	return out
}

// Len returns the number of stored kills.
func (l *KillLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}
