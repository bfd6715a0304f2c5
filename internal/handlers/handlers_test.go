package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/assert/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/models"
	"github.com/AaravAtGit/DecentChat/internal/relay"
	"github.com/AaravAtGit/DecentChat/internal/wire"
)

func newTestHandler(t *testing.T) (*Handler, *relay.Hub, http.Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := relay.NewHub(graph.NewMemory(), nil, zerolog.Nop(), relay.WithID("relay-test"))
	go hub.Run(ctx)
	if err := hub.Seed(ctx); err != nil {
		t.Fatal(err)
	}

	h := NewHandler(hub, nil, "", nil)
	r := chi.NewRouter()
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/channels", h.ListChannels)
	r.Get("/messages/{channel}", h.GetChannelMessages)
	r.Get("/who/{username}", h.Who)
	r.Get("/graph/*", h.GetNode)
	return h, hub, r
}

func put(t *testing.T, hub *relay.Hub, nodes ...*graph.Node) {
	t.Helper()
	diff := graph.Diff{}
	for _, n := range nodes {
		diff[n.Soul] = n
	}
	reply := hub.HandleFrame(context.Background(), nil, &wire.Frame{ID: wire.NewID(), Put: diff})
	if reply == nil || reply.Err != "" {
		t.Fatalf("put failed: %+v", reply)
	}
}

func putMessage(t *testing.T, hub *relay.Hub, m models.Message) {
	t.Helper()
	n := m.Node(graph.State())
	list := graph.NewNode(models.MessagesSoul(m.Channel)).Set(m.ID, graph.Link{Soul: n.Soul}, graph.State())
	put(t, hub, n, list)
}

func get(t *testing.T, router http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestRootAndHealth(t *testing.T) {
	_, _, router := newTestHandler(t)

	var root RootResponse
	assert.Equal(t, get(t, router, "/", &root), http.StatusOK)
	assert.Equal(t, root.Sync, "/gun")

	var health HealthResponse
	assert.Equal(t, get(t, router, "/health", &health), http.StatusOK)
	assert.Equal(t, health.Status, "healthy")
	assert.Equal(t, health.Relay, "relay-test")
	assert.Equal(t, health.Checks["store"].Message, "memory only")
}

func TestListChannelsAlwaysIncludesGeneral(t *testing.T) {
	_, hub, router := newTestHandler(t)

	var resp ChannelListResponse
	get(t, router, "/channels", &resp)
	assert.Equal(t, resp.Total, 1)
	assert.Equal(t, resp.Channels[0].Name, "general")

	for i, name := range []string{"zeta", "alpha"} {
		ch := models.Channel{Name: name, CreatedBy: "alice", Timestamp: int64(1000 + i)}
		n := ch.Node(graph.State())
		put(t, hub, n, graph.NewNode(models.ChannelsRoot).Set(name, graph.Link{Soul: n.Soul}, graph.State()))
	}

	get(t, router, "/channels", &resp)
	assert.Equal(t, resp.Total, 3)
	assert.Equal(t, resp.Channels[0].Name, "general")
	assert.Equal(t, resp.Channels[1].Name, "zeta")
	assert.Equal(t, resp.Channels[2].Name, "alpha")
}

func TestChannelMessagesOrderAndPaging(t *testing.T) {
	_, hub, router := newTestHandler(t)

	for _, ts := range []int64{3000, 1000, 2000} {
		putMessage(t, hub, models.Message{ID: strconv.FormatInt(ts, 10), Type: models.TypeText, Text: "m", Sender: "alice", Timestamp: ts, Channel: "general"})
	}

	var resp MessagesResponse
	assert.Equal(t, get(t, router, "/messages/general", &resp), http.StatusOK)
	assert.Equal(t, len(resp.Messages), 3)
	assert.Equal(t, resp.Messages[0].Timestamp, int64(1000))
	assert.Equal(t, resp.Messages[2].Timestamp, int64(3000))
	assert.Equal(t, resp.HasMore, false)

	get(t, router, "/messages/general?limit=1", &resp)
	assert.Equal(t, len(resp.Messages), 1)
	assert.Equal(t, resp.Messages[0].Timestamp, int64(3000))
	assert.Equal(t, resp.HasMore, true)

	get(t, router, "/messages/general?before=3000", &resp)
	assert.Equal(t, len(resp.Messages), 2)
	assert.Equal(t, resp.Messages[1].Timestamp, int64(2000))
}

func TestChannelMessagesRejectsBadName(t *testing.T) {
	_, _, router := newTestHandler(t)
	assert.Equal(t, get(t, router, "/messages/bad%20name", nil), http.StatusBadRequest)
}

func TestWho(t *testing.T) {
	_, hub, router := newTestHandler(t)

	assert.Equal(t, get(t, router, "/who/alice", nil), http.StatusNotFound)

	put(t, hub,
		graph.NewNode(models.AliasSoul("alice")).Set("~abc", graph.Link{Soul: "~abc"}, graph.State()),
		models.Profile{Username: "alice", DisplayName: "Alice A"}.Node(graph.State()),
		models.Presence{Username: "alice", Online: true, LastSeen: time.Now().UnixMilli()}.Node(graph.State()),
	)

	var resp WhoResponse
	assert.Equal(t, get(t, router, "/who/alice", &resp), http.StatusOK)
	assert.Equal(t, resp.DisplayName, "Alice A")
	assert.Equal(t, resp.PublicKey, "abc")
	assert.Equal(t, resp.Online, true)
}

func TestStats(t *testing.T) {
	_, hub, router := newTestHandler(t)
	putMessage(t, hub, models.Message{ID: "1", Type: models.TypeMedia, Content: "https://gw/ipfs/Qm", Sender: "bob", Timestamp: time.Now().UnixMilli(), Channel: "general"})

	var resp StatsResponse
	assert.Equal(t, get(t, router, "/stats", &resp), http.StatusOK)
	assert.Equal(t, resp.TotalChannels, 1)
	assert.Equal(t, len(resp.RecentMessages), 1)
	assert.Equal(t, resp.RecentMessages[0].Body, "[image] https://gw/ipfs/Qm")
	assert.Equal(t, resp.LastActivity, "just now")
}

func TestGetNode(t *testing.T) {
	_, _, router := newTestHandler(t)

	var n graph.Node
	assert.Equal(t, get(t, router, "/graph/messages", &n), http.StatusOK)
	assert.Equal(t, n.Soul, "messages")
	assert.Equal(t, n.Bool(models.Sentinel), true)

	assert.Equal(t, get(t, router, "/graph/nope", nil), http.StatusNotFound)
}

func TestFormatTimeAgo(t *testing.T) {
	assert.Equal(t, formatTimeAgo(time.Now()), "just now")
	assert.Equal(t, formatTimeAgo(time.Now().Add(-5*time.Minute)), "5 minutes ago")
}
