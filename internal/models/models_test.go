package models

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/AaravAtGit/DecentChat/internal/graph"
)

func TestPresenceStaleness(t *testing.T) {
	now := time.UnixMilli(100_000)
	p := Presence{Username: "alice", Online: true, LastSeen: 100_000 - 29_999}
	assert.Equal(t, p.IsOnline(now, 30*time.Second), true)

	p.LastSeen = 100_000 - 30_000
	assert.Equal(t, p.IsOnline(now, 30*time.Second), false)

	p = Presence{Username: "alice", Online: false, LastSeen: 100_000}
	assert.Equal(t, p.IsOnline(now, 30*time.Second), false)
}

func TestMessageNodeRoundTrip(t *testing.T) {
	in := Message{ID: "1700000000000", Type: TypeMedia, Content: "https://gw/ipfs/Qm", Sender: "bob", Timestamp: 1700000000000, Channel: "general"}
	n := in.Node(1)
	assert.Equal(t, n.Soul, "messages/general/1700000000000")

	out, ok := MessageFromNode(in.ID, n)
	assert.Equal(t, ok, true)
	assert.Equal(t, out, in)
	assert.Equal(t, out.Body(), "https://gw/ipfs/Qm")
}

func TestMessageFromNodeSkipsSentinel(t *testing.T) {
	n := graph.NewNode("messages").Set(Sentinel, true, 1)
	_, ok := MessageFromNode("x", n)
	assert.Equal(t, ok, false)

	_, ok = MessageFromNode(Sentinel, graph.NewNode("y").Set("text", "hi", 1))
	assert.Equal(t, ok, false)
}
