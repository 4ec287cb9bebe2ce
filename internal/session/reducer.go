// Package session derives per-service state from classified events: player
// presence, kill/death tallies, a rolling kill log, and incrementally
// aggregated activity counters for windowed summaries.
package session

import (
	"time"

	"github.com/logpatrol/logpatrol/pkg/types"
)

// EffectKind enumerates the state transitions an event can imply.
type EffectKind int

const (
	// EffectNone means the event changes no session state.
	EffectNone EffectKind = iota
	// EffectOnline creates or reopens the player's session.
	EffectOnline
	// EffectOffline closes the player's session.
	EffectOffline
	// EffectResetAll force-closes every session for the service. Emitted
	// for restart markers, where per-player disconnects never arrive.
	EffectResetAll
	// EffectKill records a kill (and the victim's death).
	EffectKill
	// EffectDeath records a death without an attributed killer.
	EffectDeath
)

// Effect is one derived state change. Reduce is pure: it only describes
// what should change, the Store persists it.
type Effect struct {
	Kind   EffectKind
	Player string
	Kill   *types.KillFields
	At     time.Time
}

// Reduce maps a classified event to its session-state effects.
func Reduce(event *types.Event) []Effect {
	switch event.Category {
	case types.CategoryConnection:
		if event.Player == nil || event.Player.Name == "" {
			return nil
		}
		return []Effect{{Kind: EffectOnline, Player: event.Player.Name, At: event.Timestamp}}

	case types.CategoryDisconnection:
		if event.Player == nil || event.Player.Name == "" {
			return nil
		}
		return []Effect{{Kind: EffectOffline, Player: event.Player.Name, At: event.Timestamp}}

	case types.CategoryRestart:
		return []Effect{{Kind: EffectResetAll, At: event.Timestamp}}

	case types.CategoryKill:
		if event.Kill == nil {
			return nil
		}
		return []Effect{{Kind: EffectKill, Player: event.Kill.Victim, Kill: event.Kill, At: event.Timestamp}}

	case types.CategoryDeath:
		if event.Player == nil || event.Player.Name == "" {
			return nil
		}
		return []Effect{{Kind: EffectDeath, Player: event.Player.Name, At: event.Timestamp}}
	}

	return nil
}
