package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/logpatrol/logpatrol/pkg/types"
)

// Field extraction is best-effort: a missing sub-field never invalidates
// the event, it just stays zero.

var (
	rePlayerName = regexp.MustCompile(`Player "([^"]+)"`)
	rePos        = regexp.MustCompile(`pos\s*=?\s*<\s*(-?[\d.]+)\s*,\s*(-?[\d.]+)\s*,\s*(-?[\d.]+)\s*>`)
	reKilledBy   = regexp.MustCompile(`(?i)killed by (?:Player )?"?([\w\- ]+?)"?(?:\s+with|\s+from|$)`)
	reWeapon     = regexp.MustCompile(`(?i)\b(?:with|by) ([\w\-]+)(?:\s+from|\s*$)`)
	reDistance   = regexp.MustCompile(`(?i)(?:distance[:=]?|from)\s*(\d+(?:\.\d+)?)\s*m\b`)
	reHitZone    = regexp.MustCompile(`(?i)\bhit (head|brain|torso|chest|arm|leg|hand|foot)\b`)
	reQuoted     = regexp.MustCompile(`"([^"]+)"`)
	reAmount     = regexp.MustCompile(`(?i)(?:for|paid|amount[:=]?)\s*\$?(\d+)`)
	reObject     = regexp.MustCompile(`(?i)(?:placed|built|mounted|dismantled|destroyed|detonated|raided)\s+(?:a\s+|the\s+)?([\w\- ]+?)(?:\s+(?:at|on|near|pos)|$)`)
	reVehicle    = regexp.MustCompile(`(?i)vehicle\s+"?([\w\- ]+?)"?(?:\s|$)`)
	reAdminPair  = regexp.MustCompile(`(?i)admin "?([\w\- ]+?)"? (kicked|banned|teleported|healed|spawned)(?: player)?(?: "?([\w\- ]+?)"?)?$`)
)

func playerName(line string) string {
	if m := rePlayerName.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	if m := reQuoted.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

func parsePos(line string) *types.Position {
	m := rePos.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	return posFromStrings(m[1], m[2], m[3])
}

func posFromStrings(x, y, z string) *types.Position {
	fx, errX := strconv.ParseFloat(x, 64)
	fy, errY := strconv.ParseFloat(y, 64)
	fz, errZ := strconv.ParseFloat(z, 64)
	if errX != nil || errY != nil || errZ != nil {
		return nil
	}
	return &types.Position{X: fx, Y: fy, Z: fz}
}

func extractPlayer(event *types.Event, line string) {
	if name := playerName(line); name != "" {
		event.Player = &types.PlayerFields{Name: name, Pos: parsePos(line)}
	}
}

func extractKill(event *types.Event, line string) {
	kill := &types.KillFields{
		Victim: playerName(line),
		Pos:    parsePos(line),
	}
	if m := reKilledBy.FindStringSubmatch(line); m != nil {
		kill.Killer = strings.TrimSpace(m[1])
	}
	if m := reWeapon.FindStringSubmatch(line); m != nil {
		kill.Weapon = m[1]
	}
	if m := reDistance.FindStringSubmatch(line); m != nil {
		kill.DistanceM, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := reHitZone.FindStringSubmatch(line); m != nil {
		kill.HitZone = strings.ToLower(m[1])
	}
	event.Kill = kill
}

func extractDeath(event *types.Event, line string) {
	if name := playerName(line); name != "" {
		event.Player = &types.PlayerFields{Name: name, Pos: parsePos(line)}
	}
}

func extractBuilding(event *types.Event, line string) {
	building := &types.BuildingFields{
		Player: playerName(line),
		Pos:    parsePos(line),
	}
	if m := reObject.FindStringSubmatch(line); m != nil {
		building.Object = strings.TrimSpace(m[1])
	}
	switch {
	case containsFold(line, "placed"), containsFold(line, "built"), containsFold(line, "mounted"):
		building.Action = "build"
	case containsFold(line, "dismantled"):
		building.Action = "dismantle"
	case containsFold(line, "destroyed"), containsFold(line, "detonated"), containsFold(line, "exploded"):
		building.Action = "destroy"
	}
	event.Building = building
}

func extractDynamic(event *types.Event, line string) {
	dynamic := &types.DynamicFields{Pos: parsePos(line)}
	switch {
	case containsFold(line, "airdrop"):
		dynamic.Name = "airdrop"
	case containsFold(line, "heli"):
		dynamic.Name = "heli_crash"
	}
	event.Dynamic = dynamic
}

func extractEconomy(event *types.Event, line string) {
	economy := &types.EconomyFields{Player: playerName(line)}
	if m := reAmount.FindStringSubmatch(line); m != nil {
		economy.Amount, _ = strconv.ParseInt(m[1], 10, 64)
	}
	event.Economy = economy
}

func extractVehicle(event *types.Event, line string) {
	vehicle := &types.VehicleFields{Player: playerName(line)}
	if m := reVehicle.FindStringSubmatch(line); m != nil {
		vehicle.Vehicle = strings.TrimSpace(m[1])
	}
	switch {
	case containsFold(line, "entered"):
		vehicle.Action = "enter"
	case containsFold(line, "left"):
		vehicle.Action = "leave"
	case containsFold(line, "destroyed"):
		vehicle.Action = "destroy"
	}
	event.Vehicle = vehicle
}

func extractAdmin(event *types.Event, line string) {
	admin := &types.AdminFields{}
	if m := reAdminPair.FindStringSubmatch(line); m != nil {
		admin.Admin = strings.TrimSpace(m[1])
		admin.Action = strings.ToLower(m[2])
		admin.Target = strings.TrimSpace(m[3])
	} else if name := playerName(line); name != "" {
		admin.Target = name
	}
	event.Admin = admin
}

func extractMessage(event *types.Event, line string) {
	event.Message = &types.MessageFields{Text: line}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
