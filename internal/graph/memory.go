package graph

import (
	"context"
	"sync"
)

// Memory is an in-process graph with live subscriptions.
type Memory struct {
	mu    sync.RWMutex
	nodes map[string]*Node

	subMu sync.Mutex
	subs  map[string]map[int]func(*Node)
	next  int
}

// NewMemory creates an empty graph.
func NewMemory() *Memory {
	return &Memory{
		nodes: make(map[string]*Node),
		subs:  make(map[string]map[int]func(*Node)),
	}
}

// Merge applies a diff field by field and returns only what changed.
// Higher state wins; on equal states the value with the greater encoding wins.
func (m *Memory) Merge(diff Diff) Diff {
	m.mu.Lock()
	changed := m.changes(diff)
	for soul, delta := range changed {
		cur, ok := m.nodes[soul]
		if !ok {
			cur = NewNode(soul)
			m.nodes[soul] = cur
		}
		for f, v := range delta.Values {
			cur.Values[f] = v
			cur.States[f] = delta.States[f]
		}
	}
	m.mu.Unlock()

	for soul := range changed {
		m.notify(soul)
	}
	return changed
}

// Changes returns the part of diff that Merge would apply, without applying it.
func (m *Memory) Changes(diff Diff) Diff {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changes(diff)
}

func (m *Memory) changes(diff Diff) Diff {
	changed := make(Diff)
	for soul, in := range diff {
		if in == nil {
			continue
		}
		if in.Soul == "" {
			in.Soul = soul
		}
		cur := m.nodes[in.Soul]
		var delta *Node
		for f, v := range in.Values {
			state := in.States[f]
			if cur != nil {
				if curState, exists := cur.States[f]; exists && !Wins(v, state, cur.Values[f], curState) {
					continue
				}
			}
			if delta == nil {
				delta = NewNode(in.Soul)
			}
			delta.Values[f] = v
			delta.States[f] = state
		}
		if delta != nil {
			changed[in.Soul] = delta
		}
	}
	return changed
}

// Wins reports whether value v at state beats the current value. States compare first;
// equal states fall back to the encoded values, the same order the node stores apply.
func Wins(v any, state float64, cur any, curState float64) bool {
	if state != curState {
		return state > curState
	}
	return lexical(v) > lexical(cur)
}

// Node returns a copy of a node, or nil.
func (m *Memory) Node(soul string) *Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes[soul].Clone()
}

// Len returns the number of nodes held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// Put merges a diff.
func (m *Memory) Put(_ context.Context, diff Diff) error {
	for _, n := range diff {
		if n == nil {
			continue
		}
		if err := n.Validate(); err != nil {
			return err
		}
	}
	m.Merge(diff)
	return nil
}

// Get returns a copy of the node or nil when missing.
func (m *Memory) Get(_ context.Context, soul string) (*Node, error) {
	return m.Node(soul), nil
}

// On calls fn with the current node (if any) and again on every change.
// Callbacks run outside the graph lock.
func (m *Memory) On(soul string, fn func(*Node)) func() {
	m.subMu.Lock()
	if m.subs[soul] == nil {
		m.subs[soul] = make(map[int]func(*Node))
	}
	id := m.next
	m.next++
	m.subs[soul][id] = fn
	m.subMu.Unlock()

	if n := m.Node(soul); n != nil {
		fn(n)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs[soul], id)
			if len(m.subs[soul]) == 0 {
				delete(m.subs, soul)
			}
			m.subMu.Unlock()
		})
	}
}

func (m *Memory) notify(soul string) {
	m.subMu.Lock()
	fns := make([]func(*Node), 0, len(m.subs[soul]))
	for _, fn := range m.subs[soul] {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()
	if len(fns) == 0 {
		return
	}
	n := m.Node(soul)
	for _, fn := range fns {
		fn(n.Clone())
	}
}

// lexical is the tie-break key: the stored encoding of the value.
func lexical(v any) string {
	enc, err := EncodeValue(v)
	if err != nil {
		return ""
	}
	return enc
}
