package handlers

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"duochat/pkg/auth"
	"duochat/pkg/logger"
	"duochat/pkg/models"
	"duochat/pkg/store"
	"duochat/pkg/utils"
)

// ConversationSummary is a conversation with the requester's unread count.
type ConversationSummary struct {
	models.Conversation
	Unread int `json:"unread"`
}

// ListConversations returns the requester's conversations, most recently
// active first, each with its unread count.
func ListConversations(w http.ResponseWriter, r *http.Request) {
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	convs, err := store.ListConversationsFor(user)
	if err != nil {
		logger.Error("list_conversations_failed", "user", user, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		n, err := store.UnreadCount(c.ID, user)
		if err != nil {
			logger.Error("unread_count_failed", "conversation", c.ID, "error", err)
			utils.JSONError(w, http.StatusInternalServerError, "failed to count unread messages")
			return
		}
		out = append(out, ConversationSummary{Conversation: c, Unread: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedTS > out[j].UpdatedTS })
	utils.JSONWrite(w, http.StatusOK, map[string]any{"conversations": out})
}

// MarkConversationRead marks every counterpart message in the conversation
// as read by the requester. Idempotent.
func MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	convID := mux.Vars(r)["id"]
	n, err := dispatcher.MarkRead(user, convID)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]any{"conversation": convID, "updated": n})
}
