package handlers

import (
	"net/http"
	"time"

	"github.com/AaravAtGit/DecentChat/internal/models"
	"github.com/AaravAtGit/DecentChat/internal/render"
)

// MessagePreview represents a preview of a message.
type MessagePreview struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	Peers          int              `json:"peers"`
	MemoryNodes    int              `json:"memory_nodes"`
	StoredNodes    int64            `json:"stored_nodes"`
	TotalChannels  int              `json:"total_channels"`
	OnlineUsers    int              `json:"online_users"`
	LastActivity   string           `json:"last_activity"`
	RecentMessages []MessagePreview `json:"recent_messages"`
}

// Stats returns relay statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var stored int64
	if h.nodes != nil {
		var err error
		stored, err = h.nodes.CountNodes(ctx)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to count nodes")
			return
		}
	}

	channels, err := h.children(ctx, models.ChannelsRoot)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count channels")
		return
	}
	totalChannels := len(channels)
	if _, ok := channels[models.DefaultChannel]; !ok {
		totalChannels++
	}

	online := 0
	if presence, err := h.children(ctx, models.PresenceRoot); err == nil {
		now := time.Now()
		for username, n := range presence {
			if p, ok := models.PresenceFromNode(username, n); ok && p.IsOnline(now, models.StaleAfter) {
				online++
			}
		}
	}

	// Recent messages from the default channel; failures leave the list empty.
	msgs, _ := h.channelMessages(ctx, models.DefaultChannel)

	lastActivity := "no activity yet"
	if len(msgs) > 0 {
		lastActivity = formatTimeAgo(time.UnixMilli(msgs[len(msgs)-1].Timestamp))
	}

	if len(msgs) > 5 {
		msgs = msgs[len(msgs)-5:]
	}
	recent := make([]MessagePreview, 0, len(msgs))
	for _, m := range msgs {
		body := render.Body(m)
		if len(body) > 200 {
			body = body[:197] + "..."
		}
		recent = append(recent, MessagePreview{
			ID:        m.ID,
			Sender:    render.Sender(m.Sender),
			Body:      body,
			Timestamp: m.Timestamp,
		})
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		Peers:          h.hub.PeerCount(),
		MemoryNodes:    h.hub.Graph().Len(),
		StoredNodes:    stored,
		TotalChannels:  totalChannels,
		OnlineUsers:    online,
		LastActivity:   lastActivity,
		RecentMessages: recent,
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return formatInt(mins) + " minutes ago"
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return formatInt(hours) + " hours ago"
	default:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return formatInt(days) + " days ago"
	}
}

// formatInt converts an int to string without importing strconv.
func formatInt(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
