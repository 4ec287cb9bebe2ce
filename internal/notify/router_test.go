package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/logpatrol/logpatrol/internal/logging"
	"github.com/logpatrol/logpatrol/pkg/types"
)

type recordingSink struct {
	sent []string
	err  error
}

func (r *recordingSink) Send(_ context.Context, destination, message string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, destination+": "+message)
	return nil
}

func (r *recordingSink) Name() string { return "recording" }

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "json"})
}

func killEvent(at time.Time) *types.Event {
	return &types.Event{
		ServiceID: "svc-1",
		Timestamp: at,
		Category:  types.CategoryKill,
		Raw:       `Player "V" killed by Player "K"`,
		Kill:      &types.KillFields{Victim: "V", Killer: "K", Weapon: "M4"},
	}
}

func TestRoute_UnmappedCategoryIsDropped(t *testing.T) {
	sink := &recordingSink{}
	router := NewRouter(Config{Feeds: []Feed{
		{Category: types.CategoryKill, Destination: "pvp"},
	}}, sink, testLogger())

	results := router.Route(context.Background(), &types.Event{
		Category: types.CategoryEconomy,
		Raw:      "trade",
	})
	if results != nil {
		t.Errorf("unmapped category must route nowhere, got %v", results)
	}
	if len(sink.sent) != 0 {
		t.Errorf("nothing should be sent, got %v", sink.sent)
	}
}

func TestRoute_CooldownSuppressesSecondAlert(t *testing.T) {
	sink := &recordingSink{}
	router := NewRouter(Config{Feeds: []Feed{
		{Category: types.CategoryKill, Destination: "pvp", Cooldown: 5 * time.Minute},
	}}, sink, testLogger())

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	clock := base
	router.now = func() time.Time { return clock }

	// First alert goes out.
	results := router.Route(context.Background(), killEvent(base))
	if len(results) != 1 || !results[0].Sent {
		t.Fatalf("first alert should dispatch, got %v", results)
	}

	// Second within the window is suppressed.
	clock = base.Add(2 * time.Minute)
	results = router.Route(context.Background(), killEvent(clock))
	if len(results) != 1 || !results[0].Suppressed {
		t.Fatalf("second alert within cooldown should be suppressed, got %v", results)
	}

	// Third after the window goes out again.
	clock = base.Add(6 * time.Minute)
	results = router.Route(context.Background(), killEvent(clock))
	if len(results) != 1 || !results[0].Sent {
		t.Fatalf("alert after cooldown should dispatch, got %v", results)
	}

	if len(sink.sent) != 2 {
		t.Errorf("expected exactly 2 deliveries, got %d", len(sink.sent))
	}
}

func TestRoute_InfoFeedsAreNotCooled(t *testing.T) {
	sink := &recordingSink{}
	router := NewRouter(Config{Feeds: []Feed{
		{Category: types.CategoryConnection, Destination: "activity", Cooldown: time.Hour},
	}}, sink, testLogger())

	event := &types.Event{
		Category: types.CategoryConnection,
		Raw:      `Player "A" is connected`,
		Player:   &types.PlayerFields{Name: "A"},
	}
	for i := 0; i < 3; i++ {
		results := router.Route(context.Background(), event)
		if len(results) != 1 || !results[0].Sent {
			t.Fatalf("info dispatch %d should not be throttled, got %v", i, results)
		}
	}
	if len(sink.sent) != 3 {
		t.Errorf("expected 3 deliveries, got %d", len(sink.sent))
	}
}

func TestRoute_SeverityOverrideEnablesCooldown(t *testing.T) {
	severe := types.SeveritySevere
	sink := &recordingSink{}
	router := NewRouter(Config{Feeds: []Feed{
		{Category: types.CategoryConnection, Destination: "alerts", Cooldown: time.Hour, Severity: &severe},
	}}, sink, testLogger())

	event := &types.Event{
		Category: types.CategoryConnection,
		Player:   &types.PlayerFields{Name: "A"},
	}
	first := router.Route(context.Background(), event)
	second := router.Route(context.Background(), event)

	if !first[0].Sent {
		t.Error("first dispatch should go out")
	}
	if !second[0].Suppressed {
		t.Error("override to severe must enable the cooldown")
	}
}

func TestRoute_CooldownIsPerDestinationAndCategory(t *testing.T) {
	sink := &recordingSink{}
	router := NewRouter(Config{Feeds: []Feed{
		{Category: types.CategoryKill, Destination: "pvp", Cooldown: time.Hour},
		{Category: types.CategoryRaid, Destination: "pvp", Cooldown: time.Hour},
	}}, sink, testLogger())

	killResults := router.Route(context.Background(), killEvent(time.Now()))
	raidResults := router.Route(context.Background(), &types.Event{
		Category: types.CategoryRaid,
		Raw:      "gate destroyed",
		Building: &types.BuildingFields{Object: "gate", Action: "destroy"},
	})

	if !killResults[0].Sent || !raidResults[0].Sent {
		t.Error("different categories must not share a cooldown window")
	}
}

func TestRoute_SendFailureIsDropped(t *testing.T) {
	sink := &recordingSink{err: errors.New("webhook down")}
	router := NewRouter(Config{Feeds: []Feed{
		{Category: types.CategoryKill, Destination: "pvp"},
	}}, sink, testLogger())

	results := router.Route(context.Background(), killEvent(time.Now()))
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if results[0].Sent || results[0].Err == nil {
		t.Errorf("failed dispatch must report the error, got %+v", results[0])
	}
}

func TestRoute_FirstFeedPerCategoryWins(t *testing.T) {
	sink := &recordingSink{}
	router := NewRouter(Config{Feeds: []Feed{
		{Category: types.CategoryKill, Destination: "primary"},
		{Category: types.CategoryKill, Destination: "ignored"},
	}}, sink, testLogger())

	results := router.Route(context.Background(), killEvent(time.Now()))
	if results[0].Destination != "primary" {
		t.Errorf("expected first feed to win, got %s", results[0].Destination)
	}
}
