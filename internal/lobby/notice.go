package lobby

import (
	"strconv"
	"strings"
)

// substituteNotice replaces the literal "{players_online}" placeholder
// spec §6 names with the current logged-in population.
func substituteNotice(notice string, playersOnline int) string {
	return strings.ReplaceAll(notice, "{players_online}", strconv.Itoa(playersOnline))
}
