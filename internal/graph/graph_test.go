package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/goccy/go-json"
)

func TestMergeHigherStateWins(t *testing.T) {
	g := NewMemory()
	g.Merge(Diff{"a": NewNode("a").Set("name", "old", 10)})

	changed := g.Merge(Diff{"a": NewNode("a").Set("name", "stale", 5)})
	assert.Equal(t, len(changed), 0)
	assert.Equal(t, g.Node("a").String("name"), "old")

	changed = g.Merge(Diff{"a": NewNode("a").Set("name", "new", 11)})
	assert.Equal(t, len(changed), 1)
	assert.Equal(t, g.Node("a").String("name"), "new")
}

func TestMergeTieBreakIsLexical(t *testing.T) {
	g := NewMemory()
	g.Merge(Diff{"a": NewNode("a").Set("v", "b", 10)})
	g.Merge(Diff{"a": NewNode("a").Set("v", "a", 10)})
	assert.Equal(t, g.Node("a").String("v"), "b")

	g.Merge(Diff{"a": NewNode("a").Set("v", "c", 10)})
	assert.Equal(t, g.Node("a").String("v"), "c")
}

func TestMergeTieBreakIsOrderIndependentAcrossTypes(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	a.Merge(Diff{"x": NewNode("x").Set("v", "hello", 5)})
	a.Merge(Diff{"x": NewNode("x").Set("v", true, 5)})
	b.Merge(Diff{"x": NewNode("x").Set("v", true, 5)})
	b.Merge(Diff{"x": NewNode("x").Set("v", "hello", 5)})

	va, _ := a.Node("x").Get("v")
	vb, _ := b.Node("x").Get("v")
	assert.Equal(t, va, vb)
	// `true` encodes greater than `"hello"`
	assert.Equal(t, va, true)
}

func TestChangesDoesNotApply(t *testing.T) {
	g := NewMemory()
	g.Merge(Diff{"a": NewNode("a").Set("x", 1, 1)})

	changes := g.Changes(Diff{"a": NewNode("a").Set("x", 1, 1).Set("y", 2, 1)})
	assert.Equal(t, len(changes["a"].Values), 1)
	_, ok := g.Node("a").Get("y")
	assert.Equal(t, ok, false)
}

func TestMergeReturnsOnlyChangedFields(t *testing.T) {
	g := NewMemory()
	g.Merge(Diff{"a": NewNode("a").Set("x", 1, 1).Set("y", 2, 1)})

	changed := g.Merge(Diff{"a": NewNode("a").Set("x", 1, 1).Set("y", 3, 2)})
	delta := changed["a"]
	if delta == nil {
		t.Fatal("expected a delta for a")
	}
	assert.Equal(t, delta.Fields(), []string{"y"})
	assert.Equal(t, delta.Float("y"), float64(3))
}

func TestOnReplaysAndFollows(t *testing.T) {
	g := NewMemory()
	g.Merge(Diff{"a": NewNode("a").Set("n", "first", 1)})

	var seen []string
	cancel := g.On("a", func(n *Node) { seen = append(seen, n.String("n")) })
	g.Merge(Diff{"a": NewNode("a").Set("n", "second", 2)})
	cancel()
	g.Merge(Diff{"a": NewNode("a").Set("n", "third", 3)})

	assert.Equal(t, seen, []string{"first", "second"})
}

func TestOnCallbackMaySubscribe(t *testing.T) {
	g := NewMemory()
	g.Merge(Diff{
		"parent": NewNode("parent").Set("child", Link{Soul: "child"}, 1),
		"child":  NewNode("child").Set("v", "hello", 1),
	})

	got := ""
	g.On("parent", func(n *Node) {
		soul, ok := n.Link("child")
		if !ok {
			return
		}
		g.On(soul, func(c *Node) { got = c.String("v") })
	})
	assert.Equal(t, got, "hello")
}

func TestPutRejectsMissingState(t *testing.T) {
	g := NewMemory()
	n := NewNode("a")
	n.Values["x"] = "no state"
	if err := g.Put(context.Background(), Diff{"a": n}); err == nil {
		t.Fatal("expected error for field without state")
	}
}

func TestNodeJSON(t *testing.T) {
	n := NewNode("messages/general").
		Set("123", Link{Soul: "messages/general/123"}, 5).
		Set("initialized", true, 1)

	data, err := json.Marshal(n)
	if err != nil {
		t.Fatal(err)
	}

	var back Node
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, back.Soul, "messages/general")
	soul, ok := back.Link("123")
	assert.Equal(t, ok, true)
	assert.Equal(t, soul, "messages/general/123")
	assert.Equal(t, back.Bool("initialized"), true)
	assert.Equal(t, back.States["123"], float64(5))
}

func TestNodeJSONRejectsNestedObjects(t *testing.T) {
	var n Node
	err := n.UnmarshalJSON([]byte(`{"_":{"#":"a",">":{"x":1}},"x":{"nested":true}}`))
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestClockIsStrictlyIncreasing(t *testing.T) {
	fixed := time.UnixMilli(1000)
	c := NewClock(func() time.Time { return fixed })
	a, b := c.State(), c.State()
	if b <= a {
		t.Fatalf("expected %v > %v", b, a)
	}
}
