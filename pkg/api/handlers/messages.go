package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"duochat/pkg/auth"
	"duochat/pkg/logger"
	"duochat/pkg/models"
	"duochat/pkg/store"
	"duochat/pkg/utils"
)

// ListMessages returns the requester's view of their conversation with the
// named counterpart, in insertion order. Messages the requester deleted for
// themselves are absent; delete-for-everyone tombstones carry the
// placeholder text. An empty list is returned when no conversation exists
// yet.
func ListMessages(w http.ResponseWriter, r *http.Request) {
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	other := mux.Vars(r)["other"]
	if other == user {
		utils.JSONError(w, http.StatusBadRequest, "cannot list messages with yourself")
		return
	}
	conv, err := store.FindConversationByPair(user, other)
	if err != nil {
		if store.IsNotFound(err) {
			utils.JSONWrite(w, http.StatusOK, map[string]any{"messages": []models.Message{}})
			return
		}
		logger.Error("find_conversation_failed", "user", user, "other", other, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to resolve conversation")
		return
	}
	msgs, err := store.ListMessages(conv.ID, user)
	if err != nil {
		logger.Error("list_messages_failed", "conversation", conv.ID, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	utils.JSONWrite(w, http.StatusOK, map[string]any{
		"conversation": conv.ID,
		"messages":     msgs,
	})
}

// DeleteMessage applies a deletion with the scope given by the ?scope query
// parameter ("me" by default, or "everyone").
func DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	id := mux.Vars(r)["id"]
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = models.ScopeMe
	}
	m, err := dispatcher.Delete(user, id, scope)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]any{"message": m, "scope": scope})
}
