package classify

import (
	"regexp"

	"github.com/logpatrol/logpatrol/pkg/types"
)

// structuralRule is a high-specificity pattern with a structured payload.
type structuralRule struct {
	re    *regexp.Regexp
	apply func(c *Classifier, event *types.Event, line, sourceFile string)
}

// categoryRule is one entry of the fallback category dictionary.
type categoryRule struct {
	category types.Category
	patterns []*regexp.Regexp
	extract  func(event *types.Event, line string)
}

var (
	reAdminLogHeader = regexp.MustCompile(`^AdminLog started on (\d{4}-\d{2}-\d{2}) at (\d{2}:\d{2}:\d{2})`)
	reConnectMarker  = regexp.MustCompile(`Player "([^"]+)"(?: \(id=[^)]*\))? is connected`)
	reLogoutMarker   = regexp.MustCompile(`Player "([^"]+)"(?: \(id=[^)]*\))? has been disconnected`)
	reRespawnMarker  = regexp.MustCompile(`Player "([^"]+)"(?: \([^)]*\))? (?:has been respawned|regained consciousness)`)
	reCorpseMarker   = regexp.MustCompile(`(?:corpse of Player|Player "([^"]+)" \(DEAD\))`)
	reArtillery      = regexp.MustCompile(`[Aa]rtillery strike at \[\s*(-?[\d.]+)\s*,\s*(-?[\d.]+)\s*,\s*(-?[\d.]+)\s*\]`)
	reDiagToggle     = regexp.MustCompile(`^#{2,}\s*(?:PlayerList log|AdminLog diagnostics)\s*(?:start|stop|enabled|disabled)`)
)

var structuralRules = []structuralRule{
	{
		// A fresh admin log header means the server rebooted: it both
		// force-closes sessions downstream and anchors bare clock
		// timestamps for this file.
		re: reAdminLogHeader,
		apply: func(c *Classifier, event *types.Event, line, sourceFile string) {
			event.Category = types.CategoryRestart
			m := reAdminLogHeader.FindStringSubmatch(line)
			if ts, ok := parseDateClock(m[1], m[2]); ok {
				event.Timestamp = ts
				event.ApproxTime = false
				c.noteLogDate(sourceFile, ts)
			}
		},
	},
	{
		re: reLogoutMarker,
		apply: func(_ *Classifier, event *types.Event, line, _ string) {
			event.Category = types.CategoryDisconnection
			event.Player = &types.PlayerFields{
				Name: reLogoutMarker.FindStringSubmatch(line)[1],
				Pos:  parsePos(line),
			}
		},
	},
	{
		re: reConnectMarker,
		apply: func(_ *Classifier, event *types.Event, line, _ string) {
			event.Category = types.CategoryConnection
			event.Player = &types.PlayerFields{
				Name: reConnectMarker.FindStringSubmatch(line)[1],
				Pos:  parsePos(line),
			}
		},
	},
	{
		re: reRespawnMarker,
		apply: func(_ *Classifier, event *types.Event, line, _ string) {
			event.Category = types.CategoryPlayerPosition
			event.Player = &types.PlayerFields{
				Name: reRespawnMarker.FindStringSubmatch(line)[1],
				Pos:  parsePos(line),
			}
		},
	},
	{
		re: reCorpseMarker,
		apply: func(_ *Classifier, event *types.Event, line, _ string) {
			event.Category = types.CategoryDeath
			if name := playerName(line); name != "" {
				event.Player = &types.PlayerFields{Name: name, Pos: parsePos(line)}
			}
		},
	},
	{
		re: reArtillery,
		apply: func(_ *Classifier, event *types.Event, line, _ string) {
			event.Category = types.CategoryDynamicEvent
			m := reArtillery.FindStringSubmatch(line)
			event.Dynamic = &types.DynamicFields{
				Name: "artillery",
				Pos:  posFromStrings(m[1], m[2], m[3]),
			}
		},
	},
	{
		re: reDiagToggle,
		apply: func(_ *Classifier, event *types.Event, line, _ string) {
			event.Category = types.CategoryAdminAction
			event.Admin = &types.AdminFields{Action: "diagnostic_toggle"}
		},
	},
}

// categoryRules is the fallback dictionary, tested top to bottom.
var categoryRules = []categoryRule{
	{
		category: types.CategoryConnection,
		patterns: compile(
			`(?i)\bis connected\b`,
			`(?i)player .* has joined`,
			`(?i)\bconnected from\b`,
		),
		extract: extractPlayer,
	},
	{
		category: types.CategoryDisconnection,
		patterns: compile(
			`(?i)\b(?:is|has been|was) disconnected\b`,
			`(?i)player .* has left`,
			`(?i)\blogged out\b`,
		),
		extract: extractPlayer,
	},
	{
		category: types.CategoryKill,
		patterns: compile(
			`(?i)killed by player`,
			`(?i)player "[^"]+" killed player`,
			`(?i)\bkilled\b.*\bwith\b.*\bfrom\b`,
		),
		extract: extractKill,
	},
	{
		category: types.CategoryDeath,
		patterns: compile(
			`(?i)committed suicide`,
			`(?i)\bbled out\b`,
			`(?i)\bdied\b`,
			`(?i)killed by (?:zmb|zombie|infected|wolf|bear|animal)`,
			`(?i)hit by falldamage`,
		),
		extract: extractDeath,
	},
	{
		category: types.CategoryBaseBuilding,
		patterns: compile(
			`(?i)\b(?:placed|built|mounted|dismantled)\b`,
			`(?i)\bbase building\b`,
			`(?i)\bbuilt .* on\b`,
		),
		extract: extractBuilding,
	},
	{
		category: types.CategoryRaid,
		patterns: compile(
			`(?i)\bdestroyed\b.*\b(?:wall|gate|fence|tower|flag|safe|door)\b`,
			`(?i)\braid(?:ed)?\b`,
			`(?i)\b(?:detonated|exploded)\b`,
		),
		extract: extractBuilding,
	},
	{
		category: types.CategoryDynamicEvent,
		patterns: compile(
			`(?i)\bairdrop\b`,
			`(?i)heli(?:copter)? crash`,
			`(?i)\bdynamic event\b`,
		),
		extract: extractDynamic,
	},
	{
		category: types.CategoryEconomy,
		patterns: compile(
			`(?i)\b(?:purchased|bought|sold|traded)\b`,
			`(?i)\bpaid\b.*\bto\b`,
			`(?i)\bbank (?:deposit|withdraw)`,
		),
		extract: extractEconomy,
	},
	{
		category: types.CategoryVehicle,
		patterns: compile(
			`(?i)\b(?:entered|left|started|unlocked|locked)\b.*\bvehicle\b`,
			`(?i)\bvehicle\b.*\b(?:spawned|despawned|destroyed)\b`,
		),
		extract: extractVehicle,
	},
	{
		category: types.CategoryAdminAction,
		patterns: compile(
			`(?i)\badmin\b.*\b(?:kicked|banned|teleported|healed|spawned)\b`,
			`(?i)\b(?:kicked|banned) from (?:the )?server\b`,
		),
		extract: extractAdmin,
	},
	{
		category: types.CategoryBroadcast,
		patterns: compile(
			`(?i)^\[?broadcast\]?`,
			`(?i)\bserver announcement\b`,
			`(?i)\brestart in \d+ minutes\b`,
		),
		extract: extractMessage,
	},
	{
		category: types.CategoryConnectionIssue,
		patterns: compile(
			`(?i)\bping too high\b`,
			`(?i)\bconnection (?:lost|timeout|refused)\b`,
			`(?i)\bnetwork (?:lag|issue|desync)\b`,
		),
		extract: extractMessage,
	},
	{
		category: types.CategoryPlayerPosition,
		patterns: compile(
			`pos\s*=\s*<`,
			`(?i)player "[^"]+" \(pos`,
		),
		extract: extractPlayer,
	},
}

func compile(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return res
}
