// Package classify turns raw log lines into typed events. Matching is a
// fixed-priority walk: a small set of high-specificity structural patterns
// first, then per-category pattern sets. The first match wins, so no line
// is ever double-classified; lines matching nothing become Unrecognized
// events rather than being dropped.
package classify

import (
	"strings"
	"sync"
	"time"

	"github.com/logpatrol/logpatrol/pkg/types"
)

// Classifier classifies lines for one service. It keeps a small amount of
// per-file state: the log date announced by admin-log header lines, used to
// anchor bare HH:MM:SS timestamps. Use one classifier per monitor loop.
type Classifier struct {
	serviceID string

	mu    sync.Mutex
	dates map[string]time.Time // source file -> date context

	now func() time.Time
}

// New creates a classifier for a service.
func New(serviceID string) *Classifier {
	return &Classifier{
		serviceID: serviceID,
		dates:     make(map[string]time.Time),
		now:       time.Now,
	}
}

// Classify classifies one raw line from sourceFile. Blank lines return nil.
func (c *Classifier) Classify(sourceFile, line string) *types.Event {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}

	event := &types.Event{
		ServiceID:  c.serviceID,
		Raw:        trimmed,
		SourceFile: sourceFile,
	}
	c.stampTime(event, sourceFile, trimmed)

	// Structural patterns carry unambiguous semantics and win outright.
	for _, rule := range structuralRules {
		if rule.re.MatchString(trimmed) {
			rule.apply(c, event, trimmed, sourceFile)
			return event
		}
	}

	// Category dictionary in fixed priority order; first category wins.
	for _, rule := range categoryRules {
		for _, re := range rule.patterns {
			if re.MatchString(trimmed) {
				event.Category = rule.category
				if rule.extract != nil {
					rule.extract(event, trimmed)
				}
				return event
			}
		}
	}

	event.Category = types.CategoryUnrecognized
	return event
}

// stampTime sets the event timestamp. Line-embedded timestamps are
// preferred; bare HH:MM:SS prefixes are anchored to the file's announced
// log date when one was seen. Otherwise the wall clock is used and the
// event is flagged approximate, since such timestamps are not comparable
// across files.
func (c *Classifier) stampTime(event *types.Event, sourceFile, line string) {
	if ts, ok := embeddedTimestamp(line); ok {
		event.Timestamp = ts
		return
	}

	if clock, ok := clockPrefix(line); ok {
		c.mu.Lock()
		date, haveDate := c.dates[sourceFile]
		c.mu.Unlock()
		if haveDate {
			event.Timestamp = time.Date(date.Year(), date.Month(), date.Day(),
				clock.Hour(), clock.Minute(), clock.Second(), 0, date.Location())
			return
		}
	}

	event.Timestamp = c.now()
	event.ApproxTime = true
}

// noteLogDate records the date context announced by an admin-log header.
func (c *Classifier) noteLogDate(sourceFile string, date time.Time) {
	c.mu.Lock()
	c.dates[sourceFile] = date
	c.mu.Unlock()
}
