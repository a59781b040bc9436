package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/muzlabs/muzgpt/internal/core"
)

type PostMessageRequest struct {
	Content string `json:"content"`
	Mode    string `json:"mode,omitempty"`
}

// PostMessageHandler runs one chat turn and streams the model reply as
// server-sent events: one "message" event per fragment, then a final "done"
// event carrying the turn result. Policy denials are plain JSON errors sent
// before any streaming starts.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	chatID := chi.URLParam(r, "chatID") // empty for a new conversation

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "Message content cannot be empty")
		return
	}

	flusher, canFlush := w.(http.Flusher)
	streaming := false
	emit := func(chunk string) {
		if !streaming {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			streaming = true
		}
		data, _ := json.Marshal(map[string]string{"delta": chunk})
		w.Write([]byte("data: "))
		w.Write(data)
		w.Write([]byte("\n\n"))
		if canFlush {
			flusher.Flush()
		}
	}

	result, err := h.chats.PostTurn(r.Context(), userID, chatID, core.Mode(req.Mode), req.Content, emit)
	if err != nil {
		if streaming {
			// Headers are gone; surface the failure in-stream.
			log.Printf("Turn failed mid-stream for user %s: %v", userID, err)
			w.Write([]byte("event: error\ndata: {\"error\":\"turn failed\"}\n\n"))
			return
		}
		switch {
		case errors.Is(err, core.ErrDailyLimit):
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":           "Daily message limit reached",
				"upgradeRequired": true,
			})
		case errors.Is(err, core.ErrModeLocked):
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":           "This mode requires Premium",
				"upgradeRequired": true,
			})
		case errors.Is(err, core.ErrChatNotFound):
			writeError(w, http.StatusNotFound, "Chat not found")
		case errors.Is(err, core.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			log.Printf("Error posting message for user %s, chat %q: %v", userID, chatID, err)
			writeError(w, http.StatusInternalServerError, "Failed to post message")
		}
		return
	}

	data, _ := json.Marshal(result)
	w.Write([]byte("event: done\ndata: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
	if canFlush {
		flusher.Flush()
	}
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)

	chats, err := h.chats.GetChats(userID)
	if err != nil {
		log.Printf("Error listing chats for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to list chats")
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *APIHandler) GetChatDetailsHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	chatID := chi.URLParam(r, "chatID")

	chat, messages, err := h.chats.GetChatDetails(chatID, userID)
	if err != nil {
		log.Printf("Error getting chat details for user %s, chat %s: %v", userID, chatID, err)
		writeError(w, http.StatusInternalServerError, "Failed to get chat details")
		return
	}
	if chat == nil {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"chat":     chat,
		"messages": messages,
	})
}

func (h *APIHandler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	chatID := chi.URLParam(r, "chatID")

	if err := h.chats.DeleteChat(chatID, userID); err != nil {
		if errors.Is(err, core.ErrChatNotFound) {
			writeError(w, http.StatusNotFound, "Chat not found")
			return
		}
		log.Printf("Error deleting chat %s for user %s: %v", chatID, userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete chat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EventsHandler returns the requesting user's live XP toasts, oldest first.
func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chats.Events(requestUserID(r)))
}

// ModesHandler lists the chat personas with their tier requirements.
func (h *APIHandler) ModesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.Modes)
}
