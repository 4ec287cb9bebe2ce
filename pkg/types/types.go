// Package types defines the event model shared by the ingestion pipeline:
// classified log events, file metadata from the remote hosting API, and the
// per-file read positions kept by the offset tracker.
package types

import "time"

// Category is the semantic classification of a log line.
type Category string

const (
	CategoryConnection      Category = "connection"
	CategoryDisconnection   Category = "disconnection"
	CategoryKill            Category = "kill"
	CategoryDeath           Category = "death"
	CategoryBaseBuilding    Category = "base_building"
	CategoryRaid            Category = "raid"
	CategoryDynamicEvent    Category = "dynamic_event"
	CategoryEconomy         Category = "economy"
	CategoryVehicle         Category = "vehicle"
	CategoryAdminAction     Category = "admin_action"
	CategoryBroadcast       Category = "broadcast"
	CategoryConnectionIssue Category = "connection_issue"
	CategoryPlayerPosition  Category = "player_position"
	CategoryRestart         Category = "server_restart"
	CategoryUnrecognized    Category = "unrecognized"
)

// Severity ranks how alert-worthy a category is. Only warning and severe
// events are pushed to notification destinations.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeveritySevere
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeveritySevere:
		return "severe"
	default:
		return "info"
	}
}

// ParseSeverity maps a severity name back to its value.
func ParseSeverity(name string) (Severity, bool) {
	switch name {
	case "info":
		return SeverityInfo, true
	case "warning":
		return SeverityWarning, true
	case "severe":
		return SeveritySevere, true
	default:
		return SeverityInfo, false
	}
}

// FileKind identifies what sort of log file a path refers to.
type FileKind string

const (
	FileKindAdminLog     FileKind = "admin_log"
	FileKindServerReport FileKind = "server_report"
	FileKindGeneric      FileKind = "generic"
)

// FileMeta describes one entry from a remote directory listing.
type FileMeta struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// FilePosition is the persisted read state for one (service, path) pair.
// Size only decreases when a rotation is detected, in which case it resets
// to zero.
type FilePosition struct {
	ServiceID string    `json:"service_id"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	LastRead  time.Time `json:"last_read"`
	Kind      FileKind  `json:"kind"`
}

// Position is a 3D world coordinate extracted from a log line.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Event is one classified log line. It is immutable once built; exactly one
// of the category payload pointers is set for categories that carry fields.
type Event struct {
	ServiceID  string    `json:"service_id"`
	Timestamp  time.Time `json:"timestamp"`
	ApproxTime bool      `json:"approx_time,omitempty"` // wall-clock fallback, not line-embedded
	Category   Category  `json:"category"`
	Raw        string    `json:"raw"`
	SourceFile string    `json:"source_file"`

	Player   *PlayerFields   `json:"player,omitempty"`
	Kill     *KillFields     `json:"kill,omitempty"`
	Building *BuildingFields `json:"building,omitempty"`
	Economy  *EconomyFields  `json:"economy,omitempty"`
	Vehicle  *VehicleFields  `json:"vehicle,omitempty"`
	Admin    *AdminFields    `json:"admin,omitempty"`
	Message  *MessageFields  `json:"message,omitempty"`
	Dynamic  *DynamicFields  `json:"dynamic,omitempty"`
}

// PlayerFields is the payload for connection, disconnection, death and
// position events.
type PlayerFields struct {
	Name string    `json:"name"`
	Pos  *Position `json:"pos,omitempty"`
}

// KillFields is the payload for kill events. Everything beyond the victim
// is best-effort extraction; missing sub-fields stay zero.
type KillFields struct {
	Victim    string    `json:"victim"`
	Killer    string    `json:"killer,omitempty"`
	Weapon    string    `json:"weapon,omitempty"`
	DistanceM float64   `json:"distance_m,omitempty"`
	HitZone   string    `json:"hit_zone,omitempty"`
	Pos       *Position `json:"pos,omitempty"`
}

// BuildingFields is the payload for base-building and raid events.
type BuildingFields struct {
	Player string    `json:"player,omitempty"`
	Object string    `json:"object,omitempty"`
	Action string    `json:"action,omitempty"`
	Pos    *Position `json:"pos,omitempty"`
}

// EconomyFields is the payload for trade and currency events.
type EconomyFields struct {
	Player string `json:"player,omitempty"`
	Item   string `json:"item,omitempty"`
	Amount int64  `json:"amount,omitempty"`
}

// VehicleFields is the payload for vehicle events.
type VehicleFields struct {
	Player  string `json:"player,omitempty"`
	Vehicle string `json:"vehicle,omitempty"`
	Action  string `json:"action,omitempty"`
}

// AdminFields is the payload for admin-action events.
type AdminFields struct {
	Admin  string `json:"admin,omitempty"`
	Action string `json:"action,omitempty"`
	Target string `json:"target,omitempty"`
}

// MessageFields is the payload for broadcast and connection-issue events.
type MessageFields struct {
	Text string `json:"text"`
}

// DynamicFields is the payload for dynamic in-game events such as airdrops
// or artillery strikes with a parsed coordinate triple.
type DynamicFields struct {
	Name string    `json:"name,omitempty"`
	Pos  *Position `json:"pos,omitempty"`
}

// DefaultSeverity maps a category to its alerting severity. The mapping can
// be overridden per feed in configuration.
func DefaultSeverity(c Category) Severity {
	switch c {
	case CategoryRaid, CategoryRestart, CategoryConnectionIssue:
		return SeveritySevere
	case CategoryKill, CategoryAdminAction, CategoryBroadcast:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
