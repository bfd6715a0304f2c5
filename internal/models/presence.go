package models

import (
	"time"

	"github.com/AaravAtGit/DecentChat/internal/graph"
)

const (
	// HeartbeatInterval is how often a logged-in client refreshes its presence.
	HeartbeatInterval = 15 * time.Second

	// StaleAfter is how long a presence record counts as online after its last beat.
	StaleAfter = 30 * time.Second
)

// Presence is a per-user liveness record refreshed by heartbeats.
type Presence struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"lastSeen"` // Unix ms
}

// IsOnline reports whether the record counts as online at now.
func (p Presence) IsOnline(now time.Time, staleAfter time.Duration) bool {
	if !p.Online {
		return false
	}
	return now.UnixMilli()-p.LastSeen < staleAfter.Milliseconds()
}

// Node encodes the record. Offline records omit the username, as logout writes do.
func (p Presence) Node(state float64) *graph.Node {
	n := graph.NewNode(PresenceSoul(p.Username)).
		Set("online", p.Online, state).
		Set("lastSeen", p.LastSeen, state)
	if p.Online {
		n.Set("username", p.Username, state)
	}
	return n
}

// PresenceFromNode decodes a presence node keyed by username.
func PresenceFromNode(username string, n *graph.Node) (Presence, bool) {
	if n == nil || username == "" || username == Sentinel {
		return Presence{}, false
	}
	return Presence{
		Username: username,
		Online:   n.Bool("online"),
		LastSeen: int64(n.Float("lastSeen")),
	}, true
}
