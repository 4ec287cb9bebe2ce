// Package shutdown coordinates graceful teardown on SIGINT/SIGTERM.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/logpatrol/logpatrol/internal/logging"
)

// Func performs one component's cleanup
type Func func(context.Context) error

type registration struct {
	name string
	fn   Func
}

// Manager collects shutdown functions and runs them when a signal arrives.
// Functions run in reverse registration order, so dependents stop before
// the things they depend on.
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration

	mu    sync.Mutex
	funcs []registration
	once  sync.Once
}

// New creates a shutdown manager
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		logger:  logger.WithComponent("shutdown"),
		timeout: timeout,
	}
}

// Register adds a named shutdown function
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, registration{name: name, fn: fn})
}

// Wait blocks until SIGINT or SIGTERM, then runs every registered function
func (m *Manager) Wait() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	m.logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	m.Shutdown()
}

// Shutdown runs all registered functions once, newest first, under a
// shared deadline
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.mu.Lock()
		funcs := make([]registration, len(m.funcs))
		copy(funcs, m.funcs)
		m.mu.Unlock()

		for i := len(funcs) - 1; i >= 0; i-- {
			reg := funcs[i]
			if err := reg.fn(ctx); err != nil {
				m.logger.Error().Err(err).Str("component", reg.name).Msg("Shutdown step failed")
				continue
			}
			m.logger.Debug().Str("component", reg.name).Msg("Shutdown step completed")
		}

		if ctx.Err() != nil {
			m.logger.Warn().Dur("timeout", m.timeout).Msg("Shutdown deadline exceeded")
			return
		}
		m.logger.Info().Msg("Graceful shutdown completed")
	})
}
