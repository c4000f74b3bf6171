package handlers

import (
	"errors"
	"net/http"

	"github.com/treksavvysky/a2a-protocol/internal/store"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	Backend    string `json:"backend"`
	Pending    int64  `json:"pending"`
	Delivered  int64  `json:"delivered"`
	Recipients int64  `json:"recipients"`
}

// Stats returns mailbox counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrStoreUnavailable) {
			h.Error(w, http.StatusServiceUnavailable, "mailbox store unavailable")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to read stats")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		Backend:    h.backend,
		Pending:    stats.Pending,
		Delivered:  stats.Delivered,
		Recipients: stats.Recipients,
	})
}
