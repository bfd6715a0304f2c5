package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/AaravAtGit/DecentChat/internal/crypto"
	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/models"
	"github.com/AaravAtGit/DecentChat/internal/wire"
)

type testPeer struct {
	t    *testing.T
	conn *websocket.Conn
}

func startHub(t *testing.T, opts ...Option) (*Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(graph.NewMemory(), nil, zerolog.Nop(), opts...)
	go hub.Run(ctx)
	if err := hub.Seed(ctx); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *testPeer {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	p := &testPeer{t: t, conn: conn}

	hi := p.read()
	if hi.DAM != "hi" {
		t.Fatalf("expected hi frame, got %+v", hi)
	}
	return p
}

func (p *testPeer) send(f *wire.Frame) {
	p.t.Helper()
	data, err := wire.Encode(f)
	if err != nil {
		p.t.Fatal(err)
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		p.t.Fatal(err)
	}
}

func (p *testPeer) read() *wire.Frame {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := p.conn.ReadMessage()
	if err != nil {
		p.t.Fatal(err)
	}
	frames, err := wire.Decode(data)
	if err != nil {
		p.t.Fatal(err)
	}
	return frames[0]
}

// readAck skips broadcasts until the reply to id arrives.
func (p *testPeer) readAck(id string) *wire.Frame {
	p.t.Helper()
	for {
		f := p.read()
		if f.Ack == id {
			return f
		}
	}
}

func TestSeed(t *testing.T) {
	hub, _ := startHub(t)

	for _, soul := range []string{"messages", "users"} {
		n, err := hub.Read(context.Background(), soul)
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, n.Bool("initialized"), true)
	}
}

func TestPutIsAckedAndBroadcast(t *testing.T) {
	_, url := startHub(t)
	a := dial(t, url)
	b := dial(t, url)

	put := &wire.Frame{ID: "p1", Put: graph.Diff{
		"messages/general/1": graph.NewNode("messages/general/1").Set("text", "hi", 1),
	}}
	a.send(put)

	ack := a.readAck("p1")
	assert.Equal(t, ack.OK, 1)
	assert.Equal(t, ack.Err, "")

	got := b.read()
	assert.Equal(t, got.Put["messages/general/1"].String("text"), "hi")
}

func TestStalePutIsNotBroadcast(t *testing.T) {
	hub, url := startHub(t)
	hub.Graph().Merge(graph.Diff{"x": graph.NewNode("x").Set("f", "new", 10)})

	a := dial(t, url)
	a.send(&wire.Frame{ID: "p1", Put: graph.Diff{"x": graph.NewNode("x").Set("f", "old", 5)}})
	assert.Equal(t, a.readAck("p1").OK, 1)

	assert.Equal(t, hub.Graph().Node("x").String("f"), "new")
}

func TestGetAnswersFromGraph(t *testing.T) {
	hub, url := startHub(t)
	hub.Graph().Merge(graph.Diff{"users/alice": graph.NewNode("users/alice").
		Set("displayName", "Alice", 1).
		Set("profilePicture", "p.png", 1)})

	a := dial(t, url)
	a.send(&wire.Frame{ID: "g1", Get: &wire.Lex{Soul: "users/alice", Field: "displayName"}})
	reply := a.readAck("g1")

	n := reply.Put["users/alice"]
	assert.Equal(t, n.String("displayName"), "Alice")
	_, has := n.Get("profilePicture")
	assert.Equal(t, has, false)

	a.send(&wire.Frame{ID: "g2", Get: &wire.Lex{Soul: "users/nobody"}})
	reply = a.readAck("g2")
	missing, ok := reply.Put["users/nobody"]
	assert.Equal(t, ok, true)
	assert.Equal(t, missing == nil, true)
}

func TestInvalidPutIsRejected(t *testing.T) {
	_, url := startHub(t)
	a := dial(t, url)

	n := graph.NewNode("x")
	n.Values["f"] = "no state"
	a.send(&wire.Frame{ID: "p1", Put: graph.Diff{"x": n}})

	ack := a.readAck("p1")
	assert.Equal(t, ack.OK, 0)
	assert.NotEqual(t, ack.Err, "")
}

func TestAliasCannotBeRebound(t *testing.T) {
	hub, _ := startHub(t)
	ctx := context.Background()

	first := graph.Diff{"~@alice": graph.NewNode("~@alice").Set("~pubA", graph.Link{Soul: "~pubA"}, 1)}
	if err := hub.put(ctx, nil, first, false); err != nil {
		t.Fatal(err)
	}

	again := graph.Diff{"~@alice": graph.NewNode("~@alice").Set("~pubA", graph.Link{Soul: "~pubA"}, 2)}
	if err := hub.put(ctx, nil, again, false); err != nil {
		t.Fatalf("rewriting the same link should pass: %v", err)
	}

	other := graph.Diff{"~@alice": graph.NewNode("~@alice").Set("~pubB", graph.Link{Soul: "~pubB"}, 3)}
	err := hub.put(ctx, nil, other, false)
	assert.NotEqual(t, err, nil)
}

type recordingPublisher struct {
	diffs chan graph.Diff
}

func (r *recordingPublisher) Publish(_ context.Context, _ string, diff graph.Diff) error {
	r.diffs <- diff
	return nil
}

func TestPublishLocalButNotRemote(t *testing.T) {
	pub := &recordingPublisher{diffs: make(chan graph.Diff, 4)}
	hub, _ := startHub(t, WithPublisher(pub))
	ctx := context.Background()

	if err := hub.put(ctx, nil, graph.Diff{"a": graph.NewNode("a").Set("f", 1, 1)}, true); err != nil {
		t.Fatal(err)
	}
	hub.ApplyRemote(ctx, graph.Diff{"b": graph.NewNode("b").Set("f", 1, 1)})

	assert.Equal(t, len(pub.diffs), 1)
	got := <-pub.diffs
	_, ok := got["a"]
	assert.Equal(t, ok, true)
	assert.Equal(t, hub.Graph().Node("b").Float("f"), float64(1))
}

func identity(t *testing.T, username string, state float64) (*crypto.KeyPair, graph.Diff) {
	t.Helper()
	pair, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	sig, err := pair.Sign([]byte(username))
	if err != nil {
		t.Fatal(err)
	}
	soul := models.PubSoul(pair.Pub)
	return pair, graph.Diff{soul: graph.NewNode(soul).
		Set("alias", username, state).
		Set("pub", pair.Pub, state).
		Set("epub", pair.EPub, state).
		Set("auth", "sealed", state).
		Set("salt", "salt", state).
		Set("sig", sig, state)}
}

func TestIdentityIsWriteOnce(t *testing.T) {
	hub, _ := startHub(t)
	ctx := context.Background()

	alice, diff := identity(t, "alice", 1)
	if err := hub.put(ctx, nil, diff, false); err != nil {
		t.Fatal(err)
	}
	soul := models.PubSoul(alice.Pub)

	mallory, _ := identity(t, "alice", 2)
	forged := graph.Diff{soul: graph.NewNode(soul).
		Set("auth", "mallory-sealed", 2).
		Set("salt", "mallory-salt", 2).
		Set("pub", mallory.Pub, 2)}
	err := hub.put(ctx, nil, forged, false)
	assert.Equal(t, errors.Is(err, ErrIdentityLocked), true)

	n := hub.Graph().Node(soul)
	assert.Equal(t, n.String("auth"), "sealed")
	assert.Equal(t, n.String("pub"), alice.Pub)
}

func TestIdentityMustMatchItsSoul(t *testing.T) {
	hub, _ := startHub(t)
	ctx := context.Background()

	_, diff := identity(t, "alice", 1)
	for soul, n := range diff {
		moved := "~someoneelse"
		n.Soul = moved
		err := hub.put(ctx, nil, graph.Diff{moved: n}, false)
		assert.Equal(t, errors.Is(err, ErrBadIdentity), true)
		assert.Equal(t, hub.Graph().Node(moved) == nil, true)
		assert.Equal(t, hub.Graph().Node(soul) == nil, true)
	}
}

func TestIdentityNeedsValidSignature(t *testing.T) {
	hub, _ := startHub(t)
	ctx := context.Background()

	pair, diff := identity(t, "alice", 1)
	soul := models.PubSoul(pair.Pub)
	diff[soul].Set("alias", "bob", 1)

	err := hub.put(ctx, nil, diff, false)
	assert.Equal(t, errors.Is(err, ErrBadIdentity), true)

	unsigned := graph.Diff{soul: graph.NewNode(soul).Set("pub", pair.Pub, 1).Set("alias", "alice", 1)}
	err = hub.put(ctx, nil, unsigned, false)
	assert.Equal(t, errors.Is(err, ErrBadIdentity), true)
	assert.Equal(t, hub.Graph().Node(soul) == nil, true)
}

func TestConcurrentAliasClaims(t *testing.T) {
	hub, _ := startHub(t)
	ctx := context.Background()

	const claims = 50
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < claims; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			link := fmt.Sprintf("~pub%d", i)
			diff := graph.Diff{"~@carol": graph.NewNode("~@carol").Set(link, graph.Link{Soul: link}, 1)}
			if err := hub.put(ctx, nil, diff, false); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, won, 1)
	assert.Equal(t, len(hub.Graph().Node("~@carol").Values), 1)
}

type failingStore struct{}

func (failingStore) Close() {}
func (failingStore) Ping(context.Context) error                { return nil }
func (failingStore) CountNodes(context.Context) (int64, error) { return 0, nil }
func (failingStore) GetNode(context.Context, string) (*graph.Node, error) {
	return nil, nil
}
func (failingStore) PutNode(context.Context, *graph.Node) error {
	return errors.New("disk full")
}

func TestFailedPersistLeavesMemoryUntouched(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(graph.NewMemory(), failingStore{}, zerolog.Nop())
	go hub.Run(ctx)

	err := hub.put(ctx, nil, graph.Diff{"a": graph.NewNode("a").Set("f", "v", 1)}, false)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, hub.Graph().Node("a") == nil, true)
}
