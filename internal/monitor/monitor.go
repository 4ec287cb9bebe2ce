// Package monitor runs one polling loop per monitored service. Loops are
// independent: a tick never runs concurrently with itself, file failures
// are contained to the file, tick failures to the service, and a run of
// consecutive errors trips a breaker that stops the monitor until an
// operator restarts it.
package monitor

import (
	"bufio"
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/logpatrol/logpatrol/internal/archive"
	"github.com/logpatrol/logpatrol/internal/classify"
	"github.com/logpatrol/logpatrol/internal/logging"
	"github.com/logpatrol/logpatrol/internal/metrics"
	"github.com/logpatrol/logpatrol/internal/mirror"
	"github.com/logpatrol/logpatrol/internal/notify"
	"github.com/logpatrol/logpatrol/internal/offset"
	"github.com/logpatrol/logpatrol/internal/remote"
	"github.com/logpatrol/logpatrol/internal/session"
	"github.com/logpatrol/logpatrol/internal/spool"
	"github.com/logpatrol/logpatrol/pkg/types"
)

// State is the lifecycle state of a monitor.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateTripped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateTripped:
		return "tripped"
	default:
		return "idle"
	}
}

// MinInterval is the enforced polling floor, protecting the upstream API.
const MinInterval = 2 * time.Minute

// Config holds per-monitor settings.
type Config struct {
	LogDir               string        `yaml:"log_dir"`
	Interval             time.Duration `yaml:"interval"`
	InterFileDelay       time.Duration `yaml:"inter_file_delay,omitempty"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors,omitempty"`
	MaxFilesPerTick      int           `yaml:"max_files_per_tick,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.LogDir == "" {
		c.LogDir = "/games/config"
	}
	if c.Interval < MinInterval {
		c.Interval = MinInterval
	}
	if c.InterFileDelay == 0 {
		c.InterFileDelay = 2 * time.Second
	}
	if c.MaxConsecutiveErrors == 0 {
		c.MaxConsecutiveErrors = 10
	}
	if c.MaxFilesPerTick == 0 {
		c.MaxFilesPerTick = 2
	}
}

// Status is the externally visible monitor state.
type Status struct {
	ServiceID       string        `json:"service_id"`
	Active          bool          `json:"active"`
	State           string        `json:"state"`
	StartedAt       time.Time     `json:"started_at,omitempty"`
	LastCheck       time.Time     `json:"last_check,omitempty"`
	ChecksCompleted uint64        `json:"checks_completed"`
	EventsProcessed uint64        `json:"events_processed"`
	Errors          uint64        `json:"errors"`
	Uptime          time.Duration `json:"uptime,omitempty"`
}

// Stats is the final accounting returned when a monitor stops.
type Stats struct {
	EventsProcessed uint64        `json:"events_processed"`
	ChecksCompleted uint64        `json:"checks_completed"`
	Errors          uint64        `json:"errors"`
	Uptime          time.Duration `json:"uptime"`
}

// deps bundles the shared collaborators a monitor needs.
type deps struct {
	client    *remote.Client
	tracker   *offset.Tracker
	store     *session.Store
	router    *notify.Router
	mirrors   *mirror.Multi
	archiver  *archive.S3Archiver
	spool     *spool.Spool
	collector *metrics.Collector
	tracer    trace.Tracer
	logger    *logging.Logger
}

// Monitor polls one service.
type Monitor struct {
	serviceID  string
	config     Config
	classifier *classify.Classifier
	deps       deps
	logger     *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	done   chan struct{}

	intervalCh chan time.Duration

	state       atomic.Int32
	tickRunning atomic.Bool

	checksCompleted atomic.Uint64
	eventsProcessed atomic.Uint64
	errorTotal      atomic.Uint64
	lastCheckNanos  atomic.Int64

	// consecutiveErrors is owned by the loop goroutine.
	consecutiveErrors int

	startedAt time.Time
	stopOnce  sync.Once
}

func newMonitor(serviceID string, config Config, d deps) *Monitor {
	config.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		serviceID:  serviceID,
		config:     config,
		classifier: classify.New(serviceID),
		deps:       d,
		logger:     d.logger.WithComponent("monitor").WithService(serviceID),
		ctx:        ctx,
		cancel:     cancel,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		intervalCh: make(chan time.Duration, 1),
		startedAt:  time.Now(),
	}
}

// start launches the polling loop.
func (m *Monitor) start() {
	m.state.Store(int32(StateRunning))
	m.deps.collector.MonitorsActive.Inc()
	go m.loop()
}

// stop prevents further ticks and waits for any in-flight tick to finish.
// The tick completes normally, it is not aborted; ctx cancellation is
// reserved for the breaker.
func (m *Monitor) stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.done
	m.cancel()
}

// SetInterval reschedules the loop without losing accumulated offsets. The
// floor still applies.
func (m *Monitor) SetInterval(interval time.Duration) {
	if interval < MinInterval {
		interval = MinInterval
	}
	select {
	case m.intervalCh <- interval:
	case <-m.stopCh:
	case <-m.ctx.Done():
	}
}

// Status reports the monitor's current counters.
func (m *Monitor) Status() Status {
	state := State(m.state.Load())
	status := Status{
		ServiceID:       m.serviceID,
		Active:          state == StateRunning,
		State:           state.String(),
		StartedAt:       m.startedAt,
		ChecksCompleted: m.checksCompleted.Load(),
		EventsProcessed: m.eventsProcessed.Load(),
		Errors:          m.errorTotal.Load(),
	}
	if nanos := m.lastCheckNanos.Load(); nanos > 0 {
		status.LastCheck = time.Unix(0, nanos)
	}
	if state == StateRunning {
		status.Uptime = time.Since(m.startedAt)
	}
	return status
}

func (m *Monitor) stats() Stats {
	return Stats{
		EventsProcessed: m.eventsProcessed.Load(),
		ChecksCompleted: m.checksCompleted.Load(),
		Errors:          m.errorTotal.Load(),
		Uptime:          time.Since(m.startedAt),
	}
}

func (m *Monitor) loop() {
	defer close(m.done)
	defer m.deps.collector.MonitorsActive.Dec()

	interval := m.config.Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			m.state.Store(int32(StateIdle))
			return

		case next := <-m.intervalCh:
			interval = next
			ticker.Reset(interval)
			m.logger.Info().Dur("interval", interval).Msg("Polling interval updated")

		case <-ticker.C:
			// Self-excluding: a due tick is skipped, not queued, while the
			// previous one is still executing.
			if !m.tickRunning.CompareAndSwap(false, true) {
				m.logger.Debug().Msg("Tick still running, skipping")
				continue
			}
			m.tick()
			m.tickRunning.Store(false)

			// Drop any beat that accumulated while the tick ran.
			select {
			case <-ticker.C:
			default:
			}

			if m.consecutiveErrors >= m.config.MaxConsecutiveErrors {
				m.trip()
				return
			}
		}
	}
}

// trip stops the monitor permanently; an operator must restart it.
func (m *Monitor) trip() {
	m.state.Store(int32(StateTripped))
	m.deps.collector.CircuitTripped.WithLabelValues(m.serviceID).Inc()
	m.logger.Error().Int("consecutive_errors", m.consecutiveErrors).
		Msg("Circuit breaker tripped, monitor stopped")
	m.cancel()
}

// tick runs one polling pass: list, delta-read, classify, reduce, route.
func (m *Monitor) tick() {
	ctx, span := m.deps.tracer.Start(m.ctx, "monitor.tick",
		trace.WithAttributes(attribute.String("service_id", m.serviceID)))
	defer span.End()

	start := time.Now()
	defer func() {
		m.deps.collector.TickDuration.WithLabelValues(m.serviceID).Observe(time.Since(start).Seconds())
		m.lastCheckNanos.Store(time.Now().UnixNano())
	}()

	files, err := m.deps.client.ListFiles(ctx, m.serviceID, m.config.LogDir)
	if err != nil {
		m.recordFailure(err, "list files failed")
		m.deps.collector.MonitorTicks.WithLabelValues(m.serviceID, "error").Inc()
		return
	}

	tickHadError := false
	for i, meta := range selectFiles(files, m.config.MaxFilesPerTick) {
		if i > 0 {
			// Small gap between file downloads to stay under upstream
			// rate limits.
			select {
			case <-time.After(m.config.InterFileDelay):
			case <-m.ctx.Done():
				return
			}
		}

		if err := m.processFile(ctx, meta); err != nil {
			// Contained to this file; the other files still process.
			m.recordFailure(err, "file processing failed")
			tickHadError = true
			continue
		}
		m.consecutiveErrors = 0
	}

	m.checksCompleted.Add(1)
	result := "ok"
	if tickHadError {
		result = "partial"
	}
	m.deps.collector.MonitorTicks.WithLabelValues(m.serviceID, result).Inc()
	m.updatePlayersGauge()
}

func (m *Monitor) processFile(ctx context.Context, meta types.FileMeta) error {
	kind := KindOf(meta.Name)

	delta, err := m.deps.tracker.ReadDelta(ctx, m.serviceID, meta, func(ctx context.Context) ([]byte, error) {
		return m.deps.client.DownloadFile(ctx, m.serviceID, meta.Path)
	})
	if err != nil {
		return err
	}

	if delta.Rotated {
		m.deps.collector.FileRotations.WithLabelValues(m.serviceID).Inc()
	}

	if len(delta.Content) > 0 {
		m.deps.collector.DeltaBytes.WithLabelValues(m.serviceID).Add(float64(len(delta.Content)))

		if m.deps.archiver != nil {
			// Archive failures are logged but do not fail the read: the
			// delta is already in hand.
			if err := m.deps.archiver.Store(ctx, m.serviceID, meta.Path, delta.Content, time.Now()); err != nil {
				m.logger.Warn().Err(err).Str("path", meta.Path).Msg("Delta archive failed")
			}
		}

		m.ingest(ctx, meta.Path, delta.Content)
	}

	// The offset becomes durable only now, after the delta was processed.
	m.deps.tracker.Commit(m.serviceID, meta.Path, delta.NewOffset, kind)
	return nil
}

// ingest classifies each line of a delta and fans the events out.
func (m *Monitor) ingest(ctx context.Context, sourceFile string, content []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		event := m.classifier.Classify(sourceFile, scanner.Text())
		if event == nil {
			continue
		}

		m.eventsProcessed.Add(1)
		m.deps.collector.EventsClassified.WithLabelValues(m.serviceID, string(event.Category)).Inc()

		m.deps.store.Apply(event)

		if event.Category == types.CategoryUnrecognized && m.deps.spool != nil {
			if err := m.deps.spool.Add(event); err != nil {
				m.logger.Debug().Err(err).Msg("Unrecognized line not spooled")
			}
		}

		if m.deps.mirrors != nil {
			m.deps.mirrors.Publish(ctx, event)
		}

		for _, result := range m.deps.router.Route(ctx, event) {
			switch {
			case result.Sent:
				m.deps.collector.Dispatches.WithLabelValues(result.Destination, "sent").Inc()
			case result.Suppressed:
				m.deps.collector.Dispatches.WithLabelValues(result.Destination, "suppressed").Inc()
			default:
				m.deps.collector.Dispatches.WithLabelValues(result.Destination, "failed").Inc()
			}
		}
	}

	if err := scanner.Err(); err != nil {
		m.logger.Warn().Err(err).Str("source_file", sourceFile).Msg("Delta scan stopped early")
	}
}

func (m *Monitor) recordFailure(err error, msg string) {
	m.consecutiveErrors++
	m.errorTotal.Add(1)
	m.deps.collector.MonitorErrors.WithLabelValues(m.serviceID).Inc()

	logEvent := m.logger.Warn().Err(err).Int("consecutive_errors", m.consecutiveErrors)
	if remote.IsRateLimited(err) {
		m.deps.collector.RemoteRateLimited.WithLabelValues(m.serviceID).Inc()
	}
	logEvent.Msg(msg)
}

func (m *Monitor) updatePlayersGauge() {
	online := len(m.deps.store.CurrentPlayers(m.serviceID))
	m.deps.collector.PlayersOnline.WithLabelValues(m.serviceID).Set(float64(online))
}
