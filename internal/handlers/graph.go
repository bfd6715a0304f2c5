package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// GetNode returns a raw node in wire format (admin only).
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	soul := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if soul == "" {
		h.Error(w, http.StatusBadRequest, "soul is required")
		return
	}

	n, err := h.hub.Read(r.Context(), soul)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "graph read failed")
		return
	}
	if n == nil {
		h.Error(w, http.StatusNotFound, "node not found")
		return
	}
	h.JSON(w, http.StatusOK, n)
}
