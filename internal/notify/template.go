package notify

import (
	"fmt"
	"strings"

	"github.com/logpatrol/logpatrol/pkg/types"
)

// Render fills a display template with event fields. Placeholders use
// {name} syntax; unknown placeholders are left untouched. An empty template
// falls back to the raw line.
func Render(template string, event *types.Event) string {
	if template == "" {
		return event.Raw
	}

	pairs := []string{
		"{category}", string(event.Category),
		"{service}", event.ServiceID,
		"{raw}", event.Raw,
		"{time}", event.Timestamp.Format("15:04:05"),
	}

	if event.Player != nil {
		pairs = append(pairs, "{player}", event.Player.Name)
	}
	if event.Kill != nil {
		pairs = append(pairs,
			"{victim}", event.Kill.Victim,
			"{killer}", event.Kill.Killer,
			"{weapon}", event.Kill.Weapon,
			"{hitzone}", event.Kill.HitZone,
			"{distance}", formatDistance(event.Kill.DistanceM),
		)
	}
	if event.Admin != nil {
		pairs = append(pairs,
			"{admin}", event.Admin.Admin,
			"{action}", event.Admin.Action,
			"{target}", event.Admin.Target,
		)
	}
	if event.Message != nil {
		pairs = append(pairs, "{message}", event.Message.Text)
	}
	if event.Dynamic != nil {
		pairs = append(pairs, "{event}", event.Dynamic.Name)
	}

	return strings.NewReplacer(pairs...).Replace(template)
}

func formatDistance(m float64) string {
	if m == 0 {
		return ""
	}
	return fmt.Sprintf("%.0fm", m)
}
