package models

import (
	"github.com/AaravAtGit/DecentChat/internal/graph"
)

// Profile is a user's public settings.
type Profile struct {
	Username       string `json:"username"`
	DisplayName    string `json:"displayName"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	LastUpdated    int64  `json:"lastUpdated"`
}

// Node encodes the profile.
func (p Profile) Node(state float64) *graph.Node {
	return graph.NewNode(ProfileSoul(p.Username)).
		Set("displayName", p.DisplayName, state).
		Set("profilePicture", p.ProfilePicture, state).
		Set("lastUpdated", p.LastUpdated, state)
}

// ProfileFromNode decodes a profile node.
func ProfileFromNode(username string, n *graph.Node) (Profile, bool) {
	if n == nil {
		return Profile{}, false
	}
	return Profile{
		Username:       username,
		DisplayName:    n.String("displayName"),
		ProfilePicture: n.String("profilePicture"),
		LastUpdated:    int64(n.Float("lastUpdated")),
	}, true
}
