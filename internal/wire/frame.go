// Package wire defines the JSON frames exchanged on the /gun sync endpoint.
package wire

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"github.com/AaravAtGit/DecentChat/internal/graph"
)

// Frame is a single sync message.
//
// A put carries a graph diff, a get carries a lexical query, and a reply
// references the request id in "@".
type Frame struct {
	ID  string     `json:"#,omitempty"`
	Ack string     `json:"@,omitempty"`
	DAM string     `json:"dam,omitempty"` // "hi" on connect
	PID string     `json:"pid,omitempty"`
	Put graph.Diff `json:"put,omitempty"`
	Get *Lex       `json:"get,omitempty"`
	OK  int        `json:"ok,omitempty"`
	Err string     `json:"err,omitempty"`
}

// Lex selects a node, or a single field of it.
type Lex struct {
	Soul  string `json:"#"`
	Field string `json:".,omitempty"`
}

// NewID returns a fresh frame id.
func NewID() string {
	return ulid.Make().String()
}

// Hi builds the greeting sent by the relay after upgrade.
func Hi(pid string) *Frame {
	return &Frame{ID: NewID(), DAM: "hi", PID: pid}
}

// Encode marshals a frame.
func Encode(f *Frame) ([]byte, error) {
	return json.Marshal(f)
}

// Decode parses a websocket message that holds a frame or an array of frames.
func Decode(data []byte) ([]*Frame, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var frames []*Frame
		if err := json.Unmarshal(data, &frames); err != nil {
			return nil, err
		}
		return frames, nil
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return []*Frame{&f}, nil
}
