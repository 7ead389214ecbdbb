package session

import "time"

// DefaultStaleAfter is the staleness threshold used when none is configured.
const DefaultStaleAfter = 30 * time.Second

// IsStale reports whether ps has been inactive for longer than threshold at now.
// Staleness is derived at read time and never stored.
func IsStale(ps PlayerSession, now time.Time, threshold time.Duration) bool {
	return now.Sub(ps.LastActivityAt) > threshold
}

// PlayerSessionView is a PlayerSession annotated with its derived presence.
type PlayerSessionView struct {
	PlayerSession
	Stale bool `json:"stale"`
}

// HeartbeatResult reports the outcome of a heartbeat.
type HeartbeatResult struct {
	Session PlayerSession `json:"session"`
	// WasStale is true when the beat revived a session that had gone stale.
	WasStale bool `json:"wasStale"`
}
