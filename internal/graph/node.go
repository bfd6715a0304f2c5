// Package graph holds the shared node graph: nodes keyed by soul, fields with per-field
// states, and a last-write-wins merge.
package graph

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// ErrInvalidValue is returned for field values that are not primitives or links.
var ErrInvalidValue = errors.New("invalid value")

// Link points at another node by soul.
type Link struct {
	Soul string
}

// Node is a set of fields under one soul. Every field carries the state it was written with.
type Node struct {
	Soul   string
	Values map[string]any
	States map[string]float64
}

// Diff is a batch of nodes keyed by soul. A nil node means "not found" in get replies.
type Diff map[string]*Node

// NewNode creates an empty node.
func NewNode(soul string) *Node {
	return &Node{
		Soul:   soul,
		Values: make(map[string]any),
		States: make(map[string]float64),
	}
}

// Set writes a field with the given state. Integer values are normalized to float64.
func (n *Node) Set(field string, value any, state float64) *Node {
	n.Values[field] = normalize(value)
	n.States[field] = state
	return n
}

// Get returns a field value.
func (n *Node) Get(field string) (any, bool) {
	if n == nil {
		return nil, false
	}
	v, ok := n.Values[field]
	return v, ok
}

// String returns a string field or "".
func (n *Node) String(field string) string {
	v, _ := n.Get(field)
	s, _ := v.(string)
	return s
}

// Float returns a numeric field or 0.
func (n *Node) Float(field string) float64 {
	v, _ := n.Get(field)
	f, _ := v.(float64)
	return f
}

// Bool returns a bool field or false.
func (n *Node) Bool(field string) bool {
	v, _ := n.Get(field)
	b, _ := v.(bool)
	return b
}

// Link returns the soul a field links to.
func (n *Node) Link(field string) (string, bool) {
	v, _ := n.Get(field)
	l, ok := v.(Link)
	return l.Soul, ok
}

// Fields returns field names in sorted order.
func (n *Node) Fields() []string {
	fields := make([]string, 0, len(n.Values))
	for f := range n.Values {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Only returns a copy of the node restricted to one field.
func (n *Node) Only(field string) *Node {
	out := NewNode(n.Soul)
	if v, ok := n.Values[field]; ok {
		out.Values[field] = v
		out.States[field] = n.States[field]
	}
	return out
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := NewNode(n.Soul)
	for f, v := range n.Values {
		out.Values[f] = v
		out.States[f] = n.States[f]
	}
	return out
}

// Validate checks that every field has a state and a storable value.
func (n *Node) Validate() error {
	if n.Soul == "" {
		return errors.New("node has no soul")
	}
	for f, v := range n.Values {
		if f == "" || f == "_" {
			return fmt.Errorf("%w: field name %q", ErrInvalidValue, f)
		}
		if _, ok := n.States[f]; !ok {
			return fmt.Errorf("field %q of %s has no state", f, n.Soul)
		}
		if !validValue(v) {
			return fmt.Errorf("%w: field %q of %s", ErrInvalidValue, f, n.Soul)
		}
	}
	return nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	}
	return v
}

func validValue(v any) bool {
	switch v.(type) {
	case nil, string, bool, float64, Link:
		return true
	}
	return false
}

// Wire format: {"_": {"#": soul, ">": {field: state}}, field: value}, links as {"#": soul}.

type meta struct {
	Soul   string             `json:"#"`
	States map[string]float64 `json:">"`
}

// MarshalJSON encodes the node in wire format.
func (n Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Values)+1)
	states := n.States
	if states == nil {
		states = map[string]float64{}
	}
	out["_"] = meta{Soul: n.Soul, States: states}
	for f, v := range n.Values {
		if l, ok := v.(Link); ok {
			out[f] = map[string]string{"#": l.Soul}
			continue
		}
		out[f] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire format.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = *NewNode("")
	if m, ok := raw["_"]; ok {
		var md meta
		if err := json.Unmarshal(m, &md); err != nil {
			return fmt.Errorf("node meta: %w", err)
		}
		n.Soul = md.Soul
		for f, s := range md.States {
			n.States[f] = s
		}
	}
	for f, r := range raw {
		if f == "_" {
			continue
		}
		v, err := decodeValue(r)
		if err != nil {
			return fmt.Errorf("field %q: %w", f, err)
		}
		n.Values[f] = v
	}
	return nil
}

func decodeValue(r json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(r)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var l map[string]string
		if err := json.Unmarshal(trimmed, &l); err != nil {
			return nil, ErrInvalidValue
		}
		soul, ok := l["#"]
		if !ok || len(l) != 1 {
			return nil, ErrInvalidValue
		}
		return Link{Soul: soul}, nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, err
	}
	if !validValue(v) {
		return nil, ErrInvalidValue
	}
	return v, nil
}

// Clock hands out strictly increasing states derived from wall-clock millis.
type Clock struct {
	mu   sync.Mutex
	last float64
	now  func() time.Time
}

// NewClock creates a clock over now (time.Now when nil).
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// State returns the next state.
func (c *Clock) State() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := float64(c.now().UnixMilli())
	if s <= c.last {
		s = c.last + 0.001
	}
	c.last = s
	return s
}

var defaultClock = NewClock(nil)

// State returns the next state from the process-wide clock.
func State() float64 {
	return defaultClock.State()
}

// EncodeValue renders a single field value in wire form, for stores that keep one row per field.
func EncodeValue(v any) (string, error) {
	if l, ok := v.(Link); ok {
		v = map[string]string{"#": l.Soul}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeValue parses a value produced by EncodeValue.
func DecodeValue(s string) (any, error) {
	return decodeValue(json.RawMessage(s))
}
