package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/treksavvysky/a2a-protocol/internal/models"
	"github.com/treksavvysky/a2a-protocol/internal/store"
)

// DepositRequest is the body accepted by POST /messages.
type DepositRequest struct {
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Type      string         `json:"type"`
	Payload   models.Payload `json:"payload"`
}

// PostMessage deposits a message into the recipient's mailbox.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			h.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, models.ErrInvalidMessage):
			h.Error(w, http.StatusBadRequest, "payload must be a JSON object")
		default:
			h.Error(w, http.StatusBadRequest, "invalid JSON body")
		}
		return
	}

	msg := models.Message{
		Sender:    strings.TrimSpace(req.Sender),
		Recipient: strings.TrimSpace(req.Recipient),
		Type:      strings.TrimSpace(req.Type),
		Payload:   req.Payload,
	}
	if req.Timestamp != nil {
		msg.Timestamp = req.Timestamp.UTC()
	} else {
		msg.Timestamp = time.Now().UTC()
	}

	stored, err := h.store.Deposit(r.Context(), msg)
	if err != nil {
		h.storeError(w, err, "deposit")
		return
	}

	h.logger.Debug().
		Str("id", stored.ID).
		Str("sender", stored.Sender).
		Str("recipient", stored.Recipient).
		Str("type", stored.Type).
		Msg("message deposited")

	h.JSON(w, http.StatusCreated, stored)
}

// GetMessages collects every pending message for the recipient named in the
// query string. Each message is returned by exactly one call.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	recipient := strings.TrimSpace(r.URL.Query().Get("recipient"))
	if recipient == "" {
		h.Error(w, http.StatusBadRequest, "recipient is required")
		return
	}

	messages, err := h.store.Collect(r.Context(), recipient)
	if err != nil {
		h.storeError(w, err, "collect")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	if len(messages) > 0 {
		h.logger.Debug().
			Str("recipient", recipient).
			Int("count", len(messages)).
			Msg("messages collected")
	}

	h.JSON(w, http.StatusOK, messages)
}

// storeError maps store failures onto HTTP status codes.
func (h *Handler) storeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, store.ErrInvalidMessage):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrStoreUnavailable):
		h.logger.Error().Err(err).Str("op", op).Msg("mailbox store unavailable")
		h.Error(w, http.StatusServiceUnavailable, "mailbox store unavailable")
	default:
		h.logger.Error().Err(err).Str("op", op).Msg("mailbox store failure")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}
