package notify

import (
	"testing"
	"time"

	"github.com/logpatrol/logpatrol/pkg/types"
)

func TestRender_EmptyTemplateUsesRaw(t *testing.T) {
	event := &types.Event{Raw: "the raw line"}
	if got := Render("", event); got != "the raw line" {
		t.Errorf("expected raw line, got %q", got)
	}
}

func TestRender_KillPlaceholders(t *testing.T) {
	event := &types.Event{
		ServiceID: "svc-1",
		Timestamp: time.Date(2026, 8, 30, 13, 2, 45, 0, time.UTC),
		Category:  types.CategoryKill,
		Kill:      &types.KillFields{Victim: "V", Killer: "K", Weapon: "M4", DistanceM: 123},
	}

	got := Render("{killer} killed {victim} ({weapon}, {distance}) at {time}", event)
	want := "K killed V (M4, 123m) at 13:02:45"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRender_UnknownPlaceholderLeftUntouched(t *testing.T) {
	event := &types.Event{Category: types.CategoryBroadcast, Raw: "hi"}
	if got := Render("{nope} {category}", event); got != "{nope} broadcast" {
		t.Errorf("got %q", got)
	}
}
