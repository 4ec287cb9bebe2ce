package notify

import (
	"sync"
	"time"

	"github.com/logpatrol/logpatrol/pkg/types"
)

// cooldownTable records the next allowed dispatch time per (destination,
// category) pair.
type cooldownTable struct {
	mu   sync.Mutex
	next map[string]time.Time
}

func newCooldownTable() *cooldownTable {
	return &cooldownTable{next: make(map[string]time.Time)}
}

// allow reports whether a dispatch may go out now, arming the cooldown
// window when it does.
func (t *cooldownTable) allow(destination string, category types.Category, window time.Duration, now time.Time) bool {
	key := destination + "\x00" + string(category)

	t.mu.Lock()
	defer t.mu.Unlock()

	if at, ok := t.next[key]; ok && now.Before(at) {
		return false
	}
	t.next[key] = now.Add(window)
	return true
}
