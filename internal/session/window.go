package session

import (
	"time"

	"github.com/logpatrol/logpatrol/pkg/types"
)

// Summary aggregates activity counters over a query window.
type Summary struct {
	Kills          int64 `json:"kills"`
	Deaths         int64 `json:"deaths"`
	Connections    int64 `json:"connections"`
	Disconnections int64 `json:"disconnections"`
	EconomyEvents  int64 `json:"economy_events"`
	BuildingEvents int64 `json:"building_events"`
}

func (s *Summary) add(other bucketCounts) {
	s.Kills += other.kills
	s.Deaths += other.deaths
	s.Connections += other.connections
	s.Disconnections += other.disconnections
	s.EconomyEvents += other.economy
	s.BuildingEvents += other.building
}

type bucketCounts struct {
	kills          int64
	deaths         int64
	connections    int64
	disconnections int64
	economy        int64
	building       int64
}

type bucket struct {
	minute int64 // unix minute this bucket currently represents
	counts bucketCounts
}

// window keeps per-minute counter buckets in a ring so summaries are a sum
// over at most len(buckets) entries, never a rescan of raw events.
type window struct {
	buckets []bucket
}

// newWindow creates a ring covering the given retention.
func newWindow(retention time.Duration) *window {
	minutes := int(retention / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return &window{buckets: make([]bucket, minutes)}
}

func (w *window) observe(category types.Category, at time.Time) {
	minute := at.Unix() / 60
	b := &w.buckets[minute%int64(len(w.buckets))]
	if b.minute != minute {
		b.minute = minute
		b.counts = bucketCounts{}
	}

	switch category {
	case types.CategoryKill:
		b.counts.kills++
		// A kill implies the victim's death.
		b.counts.deaths++
	case types.CategoryDeath:
		b.counts.deaths++
	case types.CategoryConnection:
		b.counts.connections++
	case types.CategoryDisconnection:
		b.counts.disconnections++
	case types.CategoryEconomy:
		b.counts.economy++
	case types.CategoryBaseBuilding, types.CategoryRaid:
		b.counts.building++
	}
}

func (w *window) summarize(span time.Duration, now time.Time) Summary {
	var s Summary
	if span <= 0 {
		span = time.Duration(len(w.buckets)) * time.Minute
	}

	oldest := now.Add(-span).Unix() / 60
	newest := now.Unix() / 60
	for i := range w.buckets {
		b := &w.buckets[i]
		if b.minute >= oldest && b.minute <= newest {
			s.add(b.counts)
		}
	}
	return s
}
