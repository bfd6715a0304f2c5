package models

import (
	"github.com/AaravAtGit/DecentChat/internal/graph"
)

// MessageType distinguishes plain text from media links.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeMedia MessageType = "media"
)

// Message represents a chat message stored as a graph node.
type Message struct {
	ID        string      `json:"id"` // epoch millis, client generated
	Type      MessageType `json:"type"`
	Text      string      `json:"text,omitempty"`
	Content   string      `json:"content,omitempty"` // media URL
	Sender    string      `json:"sender"`
	Timestamp int64       `json:"timestamp"` // Unix ms
	Channel   string      `json:"channel"`
}

// Body returns the text for text messages and the URL for media.
func (m Message) Body() string {
	if m.Type == TypeMedia {
		return m.Content
	}
	return m.Text
}

// Node encodes the message under its soul.
func (m Message) Node(state float64) *graph.Node {
	n := graph.NewNode(MessageSoul(m.Channel, m.ID)).
		Set("type", string(m.Type), state).
		Set("sender", m.Sender, state).
		Set("timestamp", m.Timestamp, state).
		Set("channel", m.Channel, state)
	if m.Type == TypeMedia {
		n.Set("content", m.Content, state)
	} else {
		n.Set("text", m.Text, state)
	}
	return n
}

// MessageFromNode decodes a message node. Sentinel and empty nodes are rejected.
func MessageFromNode(id string, n *graph.Node) (Message, bool) {
	if n == nil || id == Sentinel {
		return Message{}, false
	}
	if _, ok := n.Get(Sentinel); ok {
		return Message{}, false
	}
	m := Message{
		ID:        id,
		Type:      MessageType(n.String("type")),
		Text:      n.String("text"),
		Content:   n.String("content"),
		Sender:    n.String("sender"),
		Timestamp: int64(n.Float("timestamp")),
		Channel:   n.String("channel"),
	}
	if m.Type == "" {
		// Older records carry only text.
		m.Type = TypeText
	}
	if m.Text == "" && m.Content == "" {
		return Message{}, false
	}
	return m, true
}
