package models

import (
	"time"

	platformstrings "tollgate/pkg/platform/strings"
)

// CounterKey builds the store key for a rule and zone key. Segments are
// escaped so a user-controlled identifier containing ':' cannot address an
// adjacent counter.
func CounterKey(appID, ruleID, zoneKey string) string {
	return "rl:" + platformstrings.EscapeKeySegment(appID) + ":" + platformstrings.EscapeKeySegment(ruleID) + ":" + platformstrings.EscapeKeySegment(zoneKey)
}

// Count is the state of a counter after an increment.
type Count struct {
	Hits    int
	ResetAt time.Time
}
