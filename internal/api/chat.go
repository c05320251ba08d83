package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/goalgetter/goalgetter/internal/chat"
	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/goalgetter/goalgetter/internal/identity"
	"github.com/goalgetter/goalgetter/internal/store"
)

// ChatHandler serves the REST surface around the chat websocket: access
// checks, transcript history and saved session context.
type ChatHandler struct {
	repo store.Repository
	gate *chat.Gate
}

// NewChatHandler creates the chat REST handler.
func NewChatHandler(repo store.Repository, gate *chat.Gate) *ChatHandler {
	return &ChatHandler{repo: repo, gate: gate}
}

// RegisterRoutes registers the chat REST routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Put("/me/provider", h.UpdateProvider)
		r.Get("/chat/access", h.GetAccess)
		r.Get("/chat/history", h.GetHistory)
		r.Get("/context/history", h.GetContextHistory)
		r.Get("/goals", h.GetGoals)
	})
}

func (h *ChatHandler) user(w http.ResponseWriter, r *http.Request) *domain.User {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		Error(w, http.StatusUnauthorized, "unauthorized")
	}
	return user
}

// GetMe returns the authenticated user's profile.
func (h *ChatHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := h.user(w, r)
	if user == nil {
		return
	}
	JSON(w, http.StatusOK, user)
}

// UpdateProvider sets the user's preferred LLM backend.
func (h *ChatHandler) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	user := h.user(w, r)
	if user == nil {
		return
	}

	var body struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch body.Provider {
	case "", "anthropic", "openai":
	default:
		Error(w, http.StatusBadRequest, "provider must be anthropic, openai or empty")
		return
	}

	if err := h.repo.UpdateUserProvider(r.Context(), user.ID, body.Provider); err != nil {
		Error(w, http.StatusInternalServerError, "failed to update provider")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"provider": body.Provider})
}

// GetAccess reports whether chat is open for the user right now, and when it
// opens next if not.
func (h *ChatHandler) GetAccess(w http.ResponseWriter, r *http.Request) {
	user := h.user(w, r)
	if user == nil {
		return
	}

	verdict, err := h.gate.Check(r.Context(), user)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to check access")
		return
	}
	JSON(w, http.StatusOK, verdict)
}

// GetHistory returns one page of the user's chat transcript, newest pages
// first. An optional meeting_id parameter scopes the page to one meeting.
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	user := h.user(w, r)
	if user == nil {
		return
	}

	page, pageSize := pagination(r)
	meetingID := r.URL.Query().Get("meeting_id")

	messages, total, err := h.repo.MessageHistory(r.Context(), user.ID, page, pageSize, meetingID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load chat history")
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"messages":  messages,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"has_more":  page*pageSize < total,
	})
}

// GetContextHistory returns one page of the user's saved session contexts,
// newest first.
func (h *ChatHandler) GetContextHistory(w http.ResponseWriter, r *http.Request) {
	user := h.user(w, r)
	if user == nil {
		return
	}

	page, pageSize := pagination(r)
	contexts, total, err := h.repo.ContextHistory(r.Context(), user.ID, page, pageSize)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load context history")
		return
	}
	if contexts == nil {
		contexts = []*domain.SessionContext{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"contexts":  contexts,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"has_more":  page*pageSize < total,
	})
}

// GetGoals returns the user's active goals, most recently updated first.
func (h *ChatHandler) GetGoals(w http.ResponseWriter, r *http.Request) {
	user := h.user(w, r)
	if user == nil {
		return
	}

	goals, err := h.repo.ActiveGoals(r.Context(), user.ID, 50)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load goals")
		return
	}
	if goals == nil {
		goals = []*domain.Goal{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"goals": goals})
}
