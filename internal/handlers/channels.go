package handlers

import (
	"net/http"
	"sort"

	"github.com/AaravAtGit/DecentChat/internal/models"
)

// ChannelListResponse represents the channels list response.
type ChannelListResponse struct {
	Channels []models.Channel `json:"channels"`
	Total    int              `json:"total"`
}

// ListChannels lists channel records, general first, then by creation time.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.children(r.Context(), models.ChannelsRoot)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "graph read failed")
		return
	}

	channels := []models.Channel{{Name: models.DefaultChannel, CreatedBy: "system"}}
	rest := make([]models.Channel, 0, len(nodes))
	for _, n := range nodes {
		if ch, ok := models.ChannelFromNode(n); ok && ch.Name != models.DefaultChannel {
			rest = append(rest, ch)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].Timestamp != rest[j].Timestamp {
			return rest[i].Timestamp < rest[j].Timestamp
		}
		return rest[i].Name < rest[j].Name
	})
	channels = append(channels, rest...)

	h.JSON(w, http.StatusOK, ChannelListResponse{
		Channels: channels,
		Total:    len(channels),
	})
}
