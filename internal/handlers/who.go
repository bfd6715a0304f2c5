package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AaravAtGit/DecentChat/internal/models"
)

// WhoResponse represents the user profile response.
type WhoResponse struct {
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	PublicKey      string `json:"public_key,omitempty"`
	Online         bool   `json:"online"`
	LastSeen       int64  `json:"last_seen,omitempty"`
}

// Who handles user lookup: profile, public key and presence.
func (h *Handler) Who(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" || strings.ContainsAny(username, "/~") {
		h.Error(w, http.StatusBadRequest, "invalid username")
		return
	}
	ctx := r.Context()

	alias, err := h.hub.Read(ctx, models.AliasSoul(username))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "graph read failed")
		return
	}
	profileNode, err := h.hub.Read(ctx, models.ProfileSoul(username))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "graph read failed")
		return
	}
	if alias == nil && profileNode == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	resp := WhoResponse{Username: username, DisplayName: username}
	if p, ok := models.ProfileFromNode(username, profileNode); ok && p.DisplayName != "" {
		resp.DisplayName = p.DisplayName
		resp.ProfilePicture = p.ProfilePicture
	}
	if alias != nil {
		for _, f := range alias.Fields() {
			if soul, ok := alias.Link(f); ok {
				resp.PublicKey = strings.TrimPrefix(soul, "~")
				break
			}
		}
	}

	presenceNode, err := h.hub.Read(ctx, models.PresenceSoul(username))
	if err == nil {
		if p, ok := models.PresenceFromNode(username, presenceNode); ok {
			resp.Online = p.IsOnline(time.Now(), models.StaleAfter)
			resp.LastSeen = p.LastSeen
		}
	}

	h.JSON(w, http.StatusOK, resp)
}
