package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/AaravAtGit/DecentChat/internal/graph"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "nodes.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteGetUnknownSoul(t *testing.T) {
	s := openTestStore(t)

	node, err := s.GetNode(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if node != nil {
		t.Fatalf("expected nil node, got %+v", node)
	}
}

func TestSQLitePutKeepsHigherState(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first := graph.NewNode("users/alice").
		Set("displayName", "Alice", 10).
		Set("avatar", graph.Link{Soul: "files/a"}, 10)
	if err := s.PutNode(ctx, first); err != nil {
		t.Fatal(err)
	}

	stale := graph.NewNode("users/alice").Set("displayName", "Old", 5)
	newer := graph.NewNode("users/alice").Set("lastUpdated", 1700000000000.0, 11)
	if err := s.PutNode(ctx, stale); err != nil {
		t.Fatal(err)
	}
	if err := s.PutNode(ctx, newer); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetNode(ctx, "users/alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.String("displayName") != "Alice" {
		t.Errorf("displayName = %q, want Alice", got.String("displayName"))
	}
	if soul, ok := got.Link("avatar"); !ok || soul != "files/a" {
		t.Errorf("avatar = %q %v, want link to files/a", soul, ok)
	}
	if got.Float("lastUpdated") != 1700000000000 {
		t.Errorf("lastUpdated = %v", got.Float("lastUpdated"))
	}
	if got.States["lastUpdated"] != 11 {
		t.Errorf("lastUpdated state = %v, want 11", got.States["lastUpdated"])
	}
}

func TestSQLiteEqualStateTieBreak(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, v := range []string{"b", "a", "c"} {
		if err := s.PutNode(ctx, graph.NewNode("x").Set("f", v, 1)); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := s.GetNode(ctx, "x")
	if got.String("f") != "c" {
		t.Errorf("f = %q, want c", got.String("f"))
	}
}

func TestSQLiteCountNodes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	s.PutNode(ctx, graph.NewNode("a").Set("x", 1, 1).Set("y", 2, 1))
	s.PutNode(ctx, graph.NewNode("b").Set("x", true, 1))

	count, err := s.CountNodes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestSQLiteTieBreakMatchesMemory(t *testing.T) {
	ctx := context.Background()
	values := []any{"hello", true, false, nil, 42.5, "", graph.Link{Soul: "users/alice"}}

	for i := range values {
		for j := range values {
			if i == j {
				continue
			}
			s := openTestStore(t)
			g := graph.NewMemory()
			for _, v := range []any{values[i], values[j]} {
				n := graph.NewNode("x").Set("f", v, 5)
				g.Merge(graph.Diff{"x": n.Clone()})
				if err := s.PutNode(ctx, n); err != nil {
					t.Fatal(err)
				}
			}

			got, err := s.GetNode(ctx, "x")
			if err != nil {
				t.Fatal(err)
			}
			mem, _ := g.Node("x").Get("f")
			stored, _ := got.Get("f")
			if mem != stored {
				t.Errorf("%v then %v: memory kept %v, sqlite kept %v", values[i], values[j], mem, stored)
			}
		}
	}
}
