package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"duochat/pkg/auth"
	"duochat/pkg/logger"
	"duochat/pkg/models"
	"duochat/pkg/store"
	"duochat/pkg/utils"
)

// CreateUser registers or updates a user profile.
func CreateUser(w http.ResponseWriter, r *http.Request) {
	var u models.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u.ID = strings.TrimSpace(u.ID)
	if u.ID == "" {
		utils.JSONError(w, http.StatusBadRequest, "user id required")
		return
	}
	if acting, status, msg := auth.ResolveUserFromRequest(r); status != 0 {
		utils.JSONError(w, status, msg)
		return
	} else if acting != u.ID && r.Header.Get("X-Role-Name") == "frontend" {
		utils.JSONError(w, http.StatusForbidden, "cannot create a profile for another user")
		return
	}
	if u.CreatedTS == 0 {
		u.CreatedTS = time.Now().UTC().UnixNano()
	}
	if err := store.SaveUser(u); err != nil {
		logger.Error("create_user_failed", "user", u.ID, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to save user")
		return
	}
	logger.Info("user_saved", "user", u.ID)
	utils.JSONWrite(w, http.StatusCreated, u)
}

// GetUser returns one user profile.
func GetUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	u, err := store.GetUser(id)
	if err != nil {
		if store.IsNotFound(err) {
			utils.JSONError(w, http.StatusNotFound, "user not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	utils.JSONWrite(w, http.StatusOK, u)
}

// ListUsers returns all registered users.
func ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	utils.JSONWrite(w, http.StatusOK, map[string]any{"users": users})
}

// ListOnline returns the ids of currently connected users.
func ListOnline(w http.ResponseWriter, r *http.Request) {
	utils.JSONWrite(w, http.StatusOK, map[string]any{"users": registry.Snapshot()})
}
