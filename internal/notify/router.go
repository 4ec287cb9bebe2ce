// Package notify routes classified events to notification destinations.
// A feed map picks the destination and display template per category;
// alert-worthy events pass a per-(destination, category) cooldown so a
// recurring condition cannot spam a channel. Dispatch is best-effort: a
// failed send is logged and dropped, never retried.
package notify

import (
	"context"
	"time"

	"github.com/logpatrol/logpatrol/internal/logging"
	"github.com/logpatrol/logpatrol/pkg/types"
)

// Sink delivers a rendered message to a destination. Platform specifics
// (chat service, webhook transport) live behind this interface.
type Sink interface {
	Send(ctx context.Context, destination, message string) error
	Name() string
}

// Feed maps one category to a destination and display rules.
type Feed struct {
	Category    types.Category `yaml:"category"`
	Destination string         `yaml:"destination"`
	Template    string         `yaml:"template,omitempty"`
	Cooldown    time.Duration  `yaml:"cooldown,omitempty"`

	// Severity overrides the category's default severity when set.
	Severity *types.Severity `yaml:"severity,omitempty"`
}

// Config holds router configuration.
type Config struct {
	Feeds           []Feed        `yaml:"feeds"`
	DefaultCooldown time.Duration `yaml:"default_cooldown,omitempty"`
}

// DispatchResult reports what happened to one routed event.
type DispatchResult struct {
	Destination string
	Sent        bool
	Suppressed  bool
	Err         error
}

// Router applies the feed map, severity gating and cooldowns.
type Router struct {
	feeds     map[types.Category]Feed
	cooldowns *cooldownTable
	sink      Sink
	logger    *logging.Logger
	now       func() time.Time
}

// NewRouter creates a router. When several feeds name the same category the
// first one wins, matching the fixed-priority semantics of the classifier.
func NewRouter(config Config, sink Sink, logger *logging.Logger) *Router {
	if config.DefaultCooldown == 0 {
		config.DefaultCooldown = 5 * time.Minute
	}

	feeds := make(map[types.Category]Feed, len(config.Feeds))
	for _, feed := range config.Feeds {
		if _, exists := feeds[feed.Category]; exists {
			continue
		}
		if feed.Cooldown == 0 {
			feed.Cooldown = config.DefaultCooldown
		}
		feeds[feed.Category] = feed
	}

	return &Router{
		feeds:     feeds,
		cooldowns: newCooldownTable(),
		sink:      sink,
		logger:    logger.WithComponent("notify"),
		now:       time.Now,
	}
}

// Route dispatches one event. Events whose category has no feed are dropped
// here; they were already preserved upstream as raw events.
func (r *Router) Route(ctx context.Context, event *types.Event) []DispatchResult {
	feed, ok := r.feeds[event.Category]
	if !ok {
		return nil
	}

	severity := types.DefaultSeverity(event.Category)
	if feed.Severity != nil {
		severity = *feed.Severity
	}

	// Alert-worthy categories are throttled per (destination, category);
	// informational feeds flow untouched.
	if severity >= types.SeverityWarning {
		if !r.cooldowns.allow(feed.Destination, event.Category, feed.Cooldown, r.now()) {
			r.logger.Debug().Str("destination", feed.Destination).
				Str("category", string(event.Category)).
				Msg("Dispatch suppressed by cooldown")
			return []DispatchResult{{Destination: feed.Destination, Suppressed: true}}
		}
	}

	message := Render(feed.Template, event)
	if err := r.sink.Send(ctx, feed.Destination, message); err != nil {
		// Best-effort delivery: log and drop.
		r.logger.Warn().Err(err).Str("destination", feed.Destination).
			Str("sink", r.sink.Name()).Msg("Dispatch failed")
		return []DispatchResult{{Destination: feed.Destination, Err: err}}
	}

	return []DispatchResult{{Destination: feed.Destination, Sent: true}}
}
