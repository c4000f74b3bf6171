package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/treksavvysky/a2a-protocol/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store    store.MailboxStore
	backend  string
	instance string
	logger   zerolog.Logger
}

// NewHandler creates a new Handler around the mailbox store.
func NewHandler(s store.MailboxStore, backend, instance string, logger zerolog.Logger) *Handler {
	return &Handler{
		store:    s,
		backend:  backend,
		instance: instance,
		logger:   logger,
	}
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
