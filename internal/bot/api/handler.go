package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skillhost/skillhost/internal/bot"
	"github.com/skillhost/skillhost/pkg/activity"
	"github.com/skillhost/skillhost/pkg/state"
)

const maxRequestBodySize = 1 << 20 // 1 MiB

// Handler exposes the conversation REST surface: activities in, collected
// replies out, plus debug inspection and deletion of conversation state.
type Handler struct {
	bot   *bot.Bot
	store state.Store
}

// NewHandler creates the conversation API handler.
func NewHandler(b *bot.Bot, store state.Store) *Handler {
	return &Handler{bot: b, store: store}
}

// RegisterRoutes registers all conversation API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/conversations/{id}/activities", h.PostActivity)
	mux.HandleFunc("GET /api/v1/conversations/{id}", h.GetConversation)
	mux.HandleFunc("DELETE /api/v1/conversations/{id}", h.DeleteConversation)
}

// ActivityResponse is the wire shape returned for a processed activity.
type ActivityResponse struct {
	Replies           []*activity.Activity `json:"replies,omitempty"`
	EndOfConversation bool                 `json:"endOfConversation,omitempty"`
	Result            json.RawMessage      `json:"result,omitempty"`
}

// ErrorResponse is the wire shape for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// PostActivity handles POST /api/v1/conversations/{id}/activities
func (h *Handler) PostActivity(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	id := r.PathValue("id")

	var a activity.Activity
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if a.Type == "" {
		writeError(w, http.StatusBadRequest, "activity type is required")
		return
	}
	// The path owns the conversation identity.
	a.ConversationID = id

	outcome, err := h.bot.ProcessActivity(r.Context(), &a)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process activity")
		return
	}

	resp := ActivityResponse{
		Replies:           outcome.Replies,
		EndOfConversation: outcome.EndOfConversation(),
	}
	if outcome.Result != nil {
		raw, err := json.Marshal(outcome.Result)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode result")
			return
		}
		resp.Result = raw
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetConversation handles GET /api/v1/conversations/{id}
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	blob, err := h.store.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(blob)
}

// DeleteConversation handles DELETE /api/v1/conversations/{id}
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Delete(r.Context(), id); err != nil && !errors.Is(err, state.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
