package models

import (
	"github.com/AaravAtGit/DecentChat/internal/graph"
)

// Channel represents a named message stream.
type Channel struct {
	Name      string `json:"name"`
	CreatedBy string `json:"createdBy"`
	Timestamp int64  `json:"timestamp"`
}

// Node encodes the channel record.
func (c Channel) Node(state float64) *graph.Node {
	return graph.NewNode(ChannelSoul(c.Name)).
		Set("name", c.Name, state).
		Set("createdBy", c.CreatedBy, state).
		Set("timestamp", c.Timestamp, state)
}

// ChannelFromNode decodes a channel node.
func ChannelFromNode(n *graph.Node) (Channel, bool) {
	if n == nil || n.String("name") == "" {
		return Channel{}, false
	}
	return Channel{
		Name:      n.String("name"),
		CreatedBy: n.String("createdBy"),
		Timestamp: int64(n.Float("timestamp")),
	}, true
}
