package session

import (
	"sort"
	"sync"
	"time"

	"github.com/logpatrol/logpatrol/pkg/types"
)

// SessionState is a player's presence on a service.
type SessionState string

const (
	StateOnline  SessionState = "online"
	StateOffline SessionState = "offline"
)

// PlayerSession is the online/offline lifecycle of one player on one
// service. Sessions are never hard-deleted, only aged out by Cleanup.
type PlayerSession struct {
	Name        string       `json:"name"`
	State       SessionState `json:"state"`
	ConnectedAt time.Time    `json:"connected_at"`
	LastSeenAt  time.Time    `json:"last_seen_at"`
}

// Tally is a per-player kill/death count.
type Tally struct {
	Kills  int64 `json:"kills"`
	Deaths int64 `json:"deaths"`
}

// PlayerInfo is one row of a current-players query.
type PlayerInfo struct {
	Name            string        `json:"name"`
	SessionDuration time.Duration `json:"session_duration"`
}

// serviceState is the arena for one service: only that service's monitor
// loop mutates it, reporting code takes read-locked snapshots.
type serviceState struct {
	sessions map[string]*PlayerSession
	tallies  map[string]*Tally
	kills    *KillLog
	window   *window
}

// Config holds store configuration.
type Config struct {
	KillLogSize     int
	WindowRetention time.Duration
	SessionMaxIdle  time.Duration
}

func (c *Config) applyDefaults() {
	if c.KillLogSize == 0 {
		c.KillLogSize = 100
	}
	if c.WindowRetention == 0 {
		c.WindowRetention = 24 * time.Hour
	}
	if c.SessionMaxIdle == 0 {
		c.SessionMaxIdle = 7 * 24 * time.Hour
	}
}

// Store owns session state for all monitored services.
type Store struct {
	config Config

	mu       sync.RWMutex
	services map[string]*serviceState

	now func() time.Time
}

// NewStore creates a session store.
func NewStore(config Config) *Store {
	config.applyDefaults()
	return &Store{
		config:   config,
		services: make(map[string]*serviceState),
		now:      time.Now,
	}
}

// Apply reduces an event and persists the resulting effects. It returns the
// effects so callers can observe what changed.
func (s *Store) Apply(event *types.Event) []Effect {
	effects := Reduce(event)

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state(event.ServiceID)
	state.window.observe(event.Category, event.Timestamp)

	for _, effect := range effects {
		switch effect.Kind {
		case EffectOnline:
			sess, ok := state.sessions[effect.Player]
			if !ok {
				sess = &PlayerSession{Name: effect.Player, ConnectedAt: effect.At}
				state.sessions[effect.Player] = sess
			} else if sess.State != StateOnline {
				sess.ConnectedAt = effect.At
			}
			sess.State = StateOnline
			sess.LastSeenAt = effect.At

		case EffectOffline:
			sess, ok := state.sessions[effect.Player]
			if !ok {
				// Disconnect without an observed connect. The session
				// start is unknown, so ConnectedAt stays zero.
				sess = &PlayerSession{Name: effect.Player}
				state.sessions[effect.Player] = sess
			}
			sess.State = StateOffline
			sess.LastSeenAt = effect.At

		case EffectResetAll:
			for _, sess := range state.sessions {
				if sess.State == StateOnline {
					sess.State = StateOffline
					sess.LastSeenAt = effect.At
				}
			}

		case EffectKill:
			state.kills.Append(KillRecord{At: effect.At, Kill: *effect.Kill})
			if effect.Kill.Killer != "" {
				s.tally(state, effect.Kill.Killer).Kills++
			}
			if effect.Kill.Victim != "" {
				s.tally(state, effect.Kill.Victim).Deaths++
			}

		case EffectDeath:
			s.tally(state, effect.Player).Deaths++
		}
	}

	return effects
}

// Summary aggregates activity over the trailing window span.
func (s *Store) Summary(serviceID string, span time.Duration) Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.services[serviceID]
	if !ok {
		return Summary{}
	}
	return state.window.summarize(span, s.now())
}

// CurrentPlayers lists online players with their session durations, sorted
// by name for stable output.
func (s *Store) CurrentPlayers(serviceID string) []PlayerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.services[serviceID]
	if !ok {
		return nil
	}

	now := s.now()
	players := make([]PlayerInfo, 0, len(state.sessions))
	for _, sess := range state.sessions {
		if sess.State != StateOnline {
			continue
		}
		players = append(players, PlayerInfo{
			Name:            sess.Name,
			SessionDuration: now.Sub(sess.ConnectedAt),
		})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Name < players[j].Name })
	return players
}

// RecentKills returns up to n kills for a service, newest first.
func (s *Store) RecentKills(serviceID string, n int) []KillRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.services[serviceID]
	if !ok {
		return nil
	}
	return state.kills.Recent(n)
}

// PlayerTally returns a player's kill/death counts.
func (s *Store) PlayerTally(serviceID, player string) Tally {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.services[serviceID]
	if !ok {
		return Tally{}
	}
	if t, ok := state.tallies[player]; ok {
		return *t
	}
	return Tally{}
}

// Remove drops all state for a service.
func (s *Store) Remove(serviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services, serviceID)
}

// Cleanup ages out sessions idle longer than the configured maximum.
func (s *Store) Cleanup() int {
	cutoff := s.now().Add(-s.config.SessionMaxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, state := range s.services {
		for name, sess := range state.sessions {
			if sess.State == StateOffline && sess.LastSeenAt.Before(cutoff) {
				delete(state.sessions, name)
				removed++
			}
		}
	}
	return removed
}

// state returns (creating if needed) the arena for a service. Callers hold
// the write lock.
func (s *Store) state(serviceID string) *serviceState {
	state, ok := s.services[serviceID]
	if !ok {
		state = &serviceState{
			sessions: make(map[string]*PlayerSession),
			tallies:  make(map[string]*Tally),
			kills:    NewKillLog(s.config.KillLogSize),
			window:   newWindow(s.config.WindowRetention),
		}
		s.services[serviceID] = state
	}
	return state
}

func (s *Store) tally(state *serviceState, player string) *Tally {
	t, ok := state.tallies[player]
	if !ok {
		t = &Tally{}
		state.tallies[player] = t
	}
	return t
}
