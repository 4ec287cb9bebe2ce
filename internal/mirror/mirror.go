// Package mirror streams every classified event to downstream analytics
// stores: a Kafka topic for consumers and an Elasticsearch index for
// operator queries (including classifier-coverage audits over Unrecognized
// events). Mirrors are best-effort; a failing mirror never blocks the
// pipeline.
package mirror

import (
	"context"

	"github.com/logpatrol/logpatrol/internal/logging"
	"github.com/logpatrol/logpatrol/pkg/types"
)

// Mirror publishes classified events to a downstream store.
type Mirror interface {
	Publish(ctx context.Context, event *types.Event) error
	Close() error
	Name() string
}

// Multi fans out to several mirrors, containing each mirror's failures.
type Multi struct {
	mirrors []Mirror
	logger  *logging.Logger
}

// NewMulti creates a fan-out mirror.
func NewMulti(logger *logging.Logger, mirrors ...Mirror) *Multi {
	return &Multi{
		mirrors: mirrors,
		logger:  logger.WithComponent("mirror"),
	}
}

// Publish sends the event to every mirror. Failures are logged, not
// propagated.
func (m *Multi) Publish(ctx context.Context, event *types.Event) {
	for _, mirror := range m.mirrors {
		if err := mirror.Publish(ctx, event); err != nil {
			m.logger.Warn().Err(err).Str("mirror", mirror.Name()).
				Str("category", string(event.Category)).Msg("Mirror publish failed")
		}
	}
}

// Close closes all mirrors.
func (m *Multi) Close() {
	for _, mirror := range m.mirrors {
		if err := mirror.Close(); err != nil {
			m.logger.Warn().Err(err).Str("mirror", mirror.Name()).Msg("Mirror close failed")
		}
	}
}

// Len returns the number of configured mirrors.
func (m *Multi) Len() int {
	return len(m.mirrors)
}
