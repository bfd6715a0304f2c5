package handlers

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/AaravAtGit/DecentChat/internal/models"
)

// Channel name validation: alphanumeric, hyphens, underscores, 1-50 chars
var channelNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// MessagesResponse represents the channel messages response.
type MessagesResponse struct {
	Channel  string           `json:"channel"`
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// GetChannelMessages returns the newest messages of a channel in timestamp order.
// Query: limit (default 50, max 200), before (timestamp, exclusive).
func (h *Handler) GetChannelMessages(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if !channelNameRegex.MatchString(channel) {
		h.Error(w, http.StatusBadRequest, "invalid channel name")
		return
	}

	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > 200 {
		limit = 200
	}

	var before int64
	if b, err := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64); err == nil && b > 0 {
		before = b
	}

	msgs, err := h.channelMessages(r.Context(), channel)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "graph read failed")
		return
	}

	if before > 0 {
		cut := len(msgs)
		for i, m := range msgs {
			if m.Timestamp >= before {
				cut = i
				break
			}
		}
		msgs = msgs[:cut]
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[len(msgs)-limit:]
	}

	h.JSON(w, http.StatusOK, MessagesResponse{
		Channel:  channel,
		Messages: msgs,
		HasMore:  hasMore,
	})
}
