// Package relay runs the sync hub behind the /gun websocket endpoint: it merges puts into
// the shared graph, persists them, answers gets, and rebroadcasts changes to every peer.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/AaravAtGit/DecentChat/internal/crypto"
	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/metrics"
	"github.com/AaravAtGit/DecentChat/internal/models"
	"github.com/AaravAtGit/DecentChat/internal/store"
	"github.com/AaravAtGit/DecentChat/internal/wire"
)

var (
	// ErrAliasTaken is returned when a put tries to rebind an existing alias field.
	ErrAliasTaken = errors.New("alias already taken")
	// ErrIdentityLocked is returned when a put tries to change a stored identity node.
	ErrIdentityLocked = errors.New("identity already exists")
	// ErrBadIdentity is returned for identity nodes whose pub or signature does not check out.
	ErrBadIdentity = errors.New("invalid identity")
)

// Publisher receives every diff this relay accepts from its own peers.
// RedisStore and KafkaJournal implement it.
type Publisher interface {
	Publish(ctx context.Context, origin string, diff graph.Diff) error
}

// outbound is an encoded frame plus the peer that caused it, which is skipped.
type outbound struct {
	from *Peer
	data []byte
}

// Hub maintains connected peers and the relay's copy of the graph.
type Hub struct {
	id         string
	graph      *graph.Memory
	store      store.NodeStore
	publishers []Publisher
	logger     zerolog.Logger

	mu    sync.RWMutex
	peers map[*Peer]bool

	// writeMu serializes put validation, persistence and merge.
	writeMu sync.Mutex

	register   chan *Peer
	unregister chan *Peer
	broadcast  chan outbound
	done       chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithPublisher adds a fanout or journal target.
func WithPublisher(p Publisher) Option {
	return func(h *Hub) { h.publishers = append(h.publishers, p) }
}

// WithID overrides the generated relay id.
func WithID(id string) Option {
	return func(h *Hub) { h.id = id }
}

// NewHub creates a hub. st may be nil for a memory-only relay.
func NewHub(g *graph.Memory, st store.NodeStore, logger zerolog.Logger, opts ...Option) *Hub {
	h := &Hub{
		graph:      g,
		store:      st,
		logger:     logger,
		peers:      make(map[*Peer]bool),
		register:   make(chan *Peer),
		unregister: make(chan *Peer),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.id == "" {
		if id, err := crypto.NewUUIDv7(); err == nil {
			h.id = id.String()
		}
	}
	return h
}

// ID returns the relay id sent in hi frames and fanout envelopes.
func (h *Hub) ID() string {
	return h.id
}

// Run owns peer registration and broadcast until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for p := range h.peers {
				delete(h.peers, p)
				p.closeSend()
			}
			h.mu.Unlock()
			metrics.PeersConnected.Set(0)
			return

		case p := <-h.register:
			h.mu.Lock()
			h.peers[p] = true
			count := len(h.peers)
			h.mu.Unlock()
			metrics.PeersConnected.Set(float64(count))
			h.logger.Info().Str("peer", p.id).Str("remote", p.remote).Int("peers", count).Msg("peer connected")

		case p := <-h.unregister:
			h.mu.Lock()
			if h.peers[p] {
				delete(h.peers, p)
				p.closeSend()
			}
			count := len(h.peers)
			h.mu.Unlock()
			metrics.PeersConnected.Set(float64(count))
			h.logger.Info().Str("peer", p.id).Str("pid", p.PID()).Int("peers", count).Msg("peer disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for p := range h.peers {
				if p == msg.from {
					continue
				}
				if !p.enqueue(msg.data) {
					h.logger.Warn().Str("peer", p.id).Msg("peer buffer full, disconnecting")
					delete(h.peers, p)
					p.closeSend()
				}
			}
			h.mu.Unlock()
		}
	}
}

// join registers a peer; it reports false once the hub has stopped.
func (h *Hub) join(p *Peer) bool {
	select {
	case h.register <- p:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(p *Peer) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}

// PeerCount returns the number of connected peers.
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Graph returns the relay's in-memory graph.
func (h *Hub) Graph() *graph.Memory {
	return h.graph
}

// Seed makes sure the top-level namespaces exist.
func (h *Hub) Seed(ctx context.Context) error {
	for _, soul := range []string{models.MessagesRoot, models.UsersRoot} {
		n, err := h.Read(ctx, soul)
		if err != nil {
			return fmt.Errorf("seed %s: %w", soul, err)
		}
		if n != nil && n.Bool(models.Sentinel) {
			continue
		}
		diff := graph.Diff{soul: graph.NewNode(soul).Set(models.Sentinel, true, graph.State())}
		if err := h.persist(ctx, h.graph.Merge(diff)); err != nil {
			return fmt.Errorf("seed %s: %w", soul, err)
		}
	}
	h.logger.Info().Int("nodes", h.graph.Len()).Msg("graph seeded")
	return nil
}

// Read returns a node from memory, falling back to the store and warming memory.
func (h *Hub) Read(ctx context.Context, soul string) (*graph.Node, error) {
	if n := h.graph.Node(soul); n != nil {
		return n, nil
	}
	if h.store == nil {
		return nil, nil
	}
	n, err := h.store.GetNode(ctx, soul)
	if err != nil || n == nil {
		return nil, err
	}
	h.graph.Merge(graph.Diff{soul: n})
	return h.graph.Node(soul), nil
}

// HandleFrame processes one frame from a peer and returns the reply, if any.
func (h *Hub) HandleFrame(ctx context.Context, from *Peer, f *wire.Frame) *wire.Frame {
	switch {
	case f.DAM == "hi":
		metrics.FramesTotal.WithLabelValues("hi").Inc()
		if from != nil {
			from.setPID(f.PID)
			h.logger.Debug().Str("peer", from.id).Str("pid", f.PID).Msg("hi")
		}
		return nil

	case f.Put != nil:
		metrics.FramesTotal.WithLabelValues("put").Inc()
		if err := h.put(ctx, from, f.Put, true); err != nil {
			h.logger.Debug().Err(err).Str("frame", f.ID).Msg("put rejected")
			return &wire.Frame{ID: wire.NewID(), Ack: f.ID, Err: err.Error()}
		}
		return &wire.Frame{ID: wire.NewID(), Ack: f.ID, OK: 1}

	case f.Get != nil:
		metrics.FramesTotal.WithLabelValues("get").Inc()
		return h.get(ctx, f)

	case f.Ack != "":
		metrics.FramesTotal.WithLabelValues("ack").Inc()
		return nil
	}

	metrics.FramesTotal.WithLabelValues("invalid").Inc()
	return &wire.Frame{ID: wire.NewID(), Ack: f.ID, Err: "unknown frame"}
}

// ApplyRemote merges a diff accepted by another relay. It is broadcast to every local peer
// but not published again.
func (h *Hub) ApplyRemote(ctx context.Context, diff graph.Diff) {
	if err := h.put(ctx, nil, diff, false); err != nil {
		h.logger.Warn().Err(err).Msg("remote put rejected")
	}
}

func (h *Hub) put(ctx context.Context, from *Peer, diff graph.Diff, publish bool) error {
	changed, err := h.apply(ctx, diff)
	if err != nil || len(changed) == 0 {
		return err
	}

	data, err := wire.Encode(&wire.Frame{ID: wire.NewID(), Put: changed})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- outbound{from: from, data: data}:
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if publish {
		for _, p := range h.publishers {
			if err := p.Publish(ctx, h.id, changed); err != nil {
				h.logger.Warn().Err(err).Msg("failed to publish put")
			}
		}
	}
	return nil
}

// apply validates diff, persists what would change and only then merges it into memory.
func (h *Hub) apply(ctx context.Context, diff graph.Diff) (graph.Diff, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	for soul, n := range diff {
		if n == nil {
			metrics.PutsRejected.WithLabelValues("invalid").Inc()
			return nil, fmt.Errorf("node %s is empty", soul)
		}
		if n.Soul == "" {
			n.Soul = soul
		}
		if n.Soul != soul {
			metrics.PutsRejected.WithLabelValues("invalid").Inc()
			return nil, fmt.Errorf("node soul %s does not match key %s", n.Soul, soul)
		}
		if err := n.Validate(); err != nil {
			metrics.PutsRejected.WithLabelValues("invalid").Inc()
			return nil, err
		}
		cur, err := h.Read(ctx, soul)
		if err != nil {
			return nil, err
		}
		if err := checkIdentity(soul, cur, n); err != nil {
			return nil, err
		}
	}

	changed := h.graph.Changes(diff)
	if len(changed) == 0 {
		return nil, nil
	}
	if err := h.persist(ctx, changed); err != nil {
		h.logger.Error().Err(err).Msg("failed to persist put")
		return nil, err
	}
	h.graph.Merge(changed)
	metrics.PutsAccepted.Inc()
	return changed, nil
}

// checkIdentity guards the user space. Alias nodes are write-once. Identity nodes must carry
// their own pub and a signature of their alias by it, and are write-once too.
func checkIdentity(soul string, cur, n *graph.Node) error {
	switch {
	case models.IsAliasSoul(soul):
		if locked(cur, n) {
			metrics.PutsRejected.WithLabelValues("alias").Inc()
			return fmt.Errorf("%w: %s", ErrAliasTaken, soul)
		}
	case models.IsPubSoul(soul):
		if locked(cur, n) {
			metrics.PutsRejected.WithLabelValues("identity").Inc()
			return fmt.Errorf("%w: %s", ErrIdentityLocked, soul)
		}
		if cur != nil && len(cur.Values) > 0 {
			return nil
		}
		pub := strings.TrimPrefix(soul, "~")
		if n.String("pub") != pub {
			metrics.PutsRejected.WithLabelValues("identity").Inc()
			return fmt.Errorf("%w: pub does not match %s", ErrBadIdentity, soul)
		}
		if err := crypto.VerifySignature(pub, []byte(n.String("alias")), n.String("sig")); err != nil {
			metrics.PutsRejected.WithLabelValues("identity").Inc()
			return fmt.Errorf("%w: %v", ErrBadIdentity, err)
		}
	}
	return nil
}

// locked reports whether n adds or changes a field of a node that already has fields.
func locked(cur, n *graph.Node) bool {
	if cur == nil || len(cur.Values) == 0 {
		return false
	}
	for f, v := range n.Values {
		if old, ok := cur.Values[f]; !ok || old != v {
			return true
		}
	}
	return false
}

func (h *Hub) get(ctx context.Context, f *wire.Frame) *wire.Frame {
	n, err := h.Read(ctx, f.Get.Soul)
	if err != nil {
		h.logger.Error().Err(err).Str("soul", f.Get.Soul).Msg("failed to read node")
		return &wire.Frame{ID: wire.NewID(), Ack: f.ID, Err: err.Error()}
	}
	if n != nil && f.Get.Field != "" {
		n = n.Only(f.Get.Field)
	}
	return &wire.Frame{ID: wire.NewID(), Ack: f.ID, Put: graph.Diff{f.Get.Soul: n}}
}

func (h *Hub) persist(ctx context.Context, changed graph.Diff) error {
	if h.store == nil {
		return nil
	}
	for _, n := range changed {
		if err := h.store.PutNode(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
