package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/logpatrol/logpatrol/internal/archive"
	"github.com/logpatrol/logpatrol/internal/logging"
	"github.com/logpatrol/logpatrol/internal/metrics"
	"github.com/logpatrol/logpatrol/internal/mirror"
	"github.com/logpatrol/logpatrol/internal/notify"
	"github.com/logpatrol/logpatrol/internal/offset"
	"github.com/logpatrol/logpatrol/internal/remote"
	"github.com/logpatrol/logpatrol/internal/session"
	"github.com/logpatrol/logpatrol/internal/spool"
)

// CredentialStore is a mutable token map shared between the manager and the
// API client. Tokens registered at start time are removed again when the
// monitor stops, so a stopped service leaves no credential behind.
type CredentialStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{tokens: make(map[string]string)}
}

// Token implements remote.CredentialResolver.
func (c *CredentialStore) Token(_ context.Context, serviceID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	token, ok := c.tokens[serviceID]
	if !ok {
		return "", fmt.Errorf("no credential for service %s", serviceID)
	}
	return token, nil
}

func (c *CredentialStore) Set(serviceID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[serviceID] = token
}

func (c *CredentialStore) Delete(serviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, serviceID)
}

// ManagerConfig carries the shared collaborators and the default per-monitor
// settings applied when StartMonitoring gets no overrides.
type ManagerConfig struct {
	Defaults Config

	Client      *remote.Client
	Credentials *CredentialStore
	Tracker     *offset.Tracker
	Store       *session.Store
	Sink        notify.Sink
	Mirrors     *mirror.Multi
	Archiver    *archive.S3Archiver
	Spool       *spool.Spool
	Collector   *metrics.Collector
	Tracer      trace.Tracer
	Logger      *logging.Logger
}

// Manager owns the set of running monitors.
type Manager struct {
	config ManagerConfig
	logger *logging.Logger

	mu       sync.Mutex
	monitors map[string]*Monitor
}

func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if config.Tracker == nil {
		return nil, fmt.Errorf("offset tracker is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("notification sink is required")
	}
	if config.Collector == nil {
		config.Collector = metrics.NewCollector()
	}
	if config.Tracer == nil {
		config.Tracer = noop.NewTracerProvider().Tracer("monitor")
	}
	config.Defaults.applyDefaults()

	return &Manager{
		config:   config,
		logger:   config.Logger.WithComponent("manager"),
		monitors: make(map[string]*Monitor),
	}, nil
}

// StartMonitoring registers the service credential and launches a polling
// loop. Starting an already monitored service is an error; a tripped or
// stopped monitor must be stopped (a no-op for tripped ones) and started
// fresh. Offsets and session state from a previous run are picked up where
// they left off.
func (m *Manager) StartMonitoring(serviceID, token string, feeds []notify.Feed, overrides *Config) error {
	if serviceID == "" {
		return fmt.Errorf("service ID is required")
	}
	if token == "" {
		return fmt.Errorf("API token is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.monitors[serviceID]; ok {
		if State(existing.state.Load()) == StateRunning {
			return fmt.Errorf("service %s is already monitored", serviceID)
		}
		// Tripped or finished loop still registered: clear it out first.
		existing.stop()
		delete(m.monitors, serviceID)
	}

	config := m.config.Defaults
	if overrides != nil {
		if overrides.LogDir != "" {
			config.LogDir = overrides.LogDir
		}
		if overrides.Interval != 0 {
			config.Interval = overrides.Interval
		}
	}
	config.applyDefaults()

	if m.config.Credentials != nil {
		m.config.Credentials.Set(serviceID, token)
	}

	router := notify.NewRouter(notify.Config{Feeds: feeds}, m.config.Sink, m.config.Logger)

	mon := newMonitor(serviceID, config, deps{
		client:    m.config.Client,
		tracker:   m.config.Tracker,
		store:     m.config.Store,
		router:    router,
		mirrors:   m.config.Mirrors,
		archiver:  m.config.Archiver,
		spool:     m.config.Spool,
		collector: m.config.Collector,
		tracer:    m.config.Tracer,
		logger:    m.config.Logger,
	})
	m.monitors[serviceID] = mon
	mon.start()

	m.logger.Info().Str("service_id", serviceID).
		Dur("interval", config.Interval).Str("log_dir", config.LogDir).
		Int("feeds", len(feeds)).Msg("Monitoring started")
	return nil
}

// StopMonitoring halts the service's polling loop and returns its final
// counters. Tracked offsets and session state are kept so monitoring can
// resume later without re-reading old content; use Forget to discard them.
func (m *Manager) StopMonitoring(serviceID string) (Stats, error) {
	m.mu.Lock()
	mon, ok := m.monitors[serviceID]
	if ok {
		delete(m.monitors, serviceID)
	}
	m.mu.Unlock()

	if !ok {
		return Stats{}, fmt.Errorf("service %s is not monitored", serviceID)
	}

	mon.stop()
	if m.config.Credentials != nil {
		m.config.Credentials.Delete(serviceID)
	}

	stats := mon.stats()
	m.logger.Info().Str("service_id", serviceID).
		Uint64("events_processed", stats.EventsProcessed).
		Uint64("checks_completed", stats.ChecksCompleted).
		Dur("uptime", stats.Uptime).Msg("Monitoring stopped")
	return stats, nil
}

// GetStatus reports one service's monitor state. A known but stopped service
// reports inactive rather than an error.
func (m *Manager) GetStatus(serviceID string) (Status, error) {
	m.mu.Lock()
	mon, ok := m.monitors[serviceID]
	m.mu.Unlock()

	if !ok {
		return Status{}, fmt.Errorf("service %s is not monitored", serviceID)
	}
	return mon.Status(), nil
}

// Statuses lists all registered monitors sorted by service ID.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	statuses := make([]Status, 0, len(m.monitors))
	for _, mon := range m.monitors {
		statuses = append(statuses, mon.Status())
	}
	m.mu.Unlock()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].ServiceID < statuses[j].ServiceID
	})
	return statuses
}

// SetInterval changes a running monitor's polling cadence.
func (m *Manager) SetInterval(serviceID string, interval time.Duration) error {
	m.mu.Lock()
	mon, ok := m.monitors[serviceID]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("service %s is not monitored", serviceID)
	}
	mon.SetInterval(interval)
	return nil
}

// Summary returns the windowed activity summary for a service.
func (m *Manager) Summary(serviceID string, span time.Duration) session.Summary {
	return m.config.Store.Summary(serviceID, span)
}

// CurrentPlayers lists the service's currently connected players.
func (m *Manager) CurrentPlayers(serviceID string) []session.PlayerInfo {
	return m.config.Store.CurrentPlayers(serviceID)
}

// RecentKills returns the service's most recent kill records, newest first.
func (m *Manager) RecentKills(serviceID string, n int) []session.KillRecord {
	return m.config.Store.RecentKills(serviceID, n)
}

// Forget discards a stopped service's tracked offsets and session state.
// The next StartMonitoring treats the service's files as unseen and reads
// them in full.
func (m *Manager) Forget(serviceID string) error {
	m.mu.Lock()
	_, running := m.monitors[serviceID]
	m.mu.Unlock()

	if running {
		return fmt.Errorf("service %s is still monitored, stop it first", serviceID)
	}
	m.config.Tracker.Forget(serviceID)
	m.config.Store.Remove(serviceID)
	return nil
}

// Shutdown stops every monitor and waits for in-flight ticks.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	monitors := make([]*Monitor, 0, len(m.monitors))
	for id, mon := range m.monitors {
		monitors = append(monitors, mon)
		delete(m.monitors, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, mon := range monitors {
		wg.Add(1)
		go func(mon *Monitor) {
			defer wg.Done()
			mon.stop()
		}(mon)
	}
	wg.Wait()
	m.logger.Info().Int("monitors", len(monitors)).Msg("All monitors stopped")
}
