package handlers

import (
	"context"
	"net/http"
	"sort"

	"github.com/goccy/go-json"

	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/models"
	"github.com/AaravAtGit/DecentChat/internal/relay"
	"github.com/AaravAtGit/DecentChat/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	hub     *relay.Hub
	nodes   store.NodeStore
	backend string
	redis   *store.RedisStore
}

// NewHandler creates a new Handler. nodes and redis may be nil.
func NewHandler(hub *relay.Hub, nodes store.NodeStore, backend string, redis *store.RedisStore) *Handler {
	return &Handler{hub: hub, nodes: nodes, backend: backend, redis: redis}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// children reads every node linked from the fields of soul, keyed by field.
func (h *Handler) children(ctx context.Context, soul string) (map[string]*graph.Node, error) {
	parent, err := h.hub.Read(ctx, soul)
	if err != nil || parent == nil {
		return nil, err
	}
	out := make(map[string]*graph.Node)
	for _, key := range parent.Fields() {
		if key == models.Sentinel {
			continue
		}
		childSoul, ok := parent.Link(key)
		if !ok {
			continue
		}
		n, err := h.hub.Read(ctx, childSoul)
		if err != nil {
			return nil, err
		}
		if n != nil {
			out[key] = n
		}
	}
	return out, nil
}

func (h *Handler) channelMessages(ctx context.Context, channel string) ([]models.Message, error) {
	nodes, err := h.children(ctx, models.MessagesSoul(channel))
	if err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(nodes))
	for id, n := range nodes {
		if m, ok := models.MessageFromNode(id, n); ok {
			msgs = append(msgs, m)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}
