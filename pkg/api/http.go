// Package api mounts the versioned REST surface.
package api

import (
	"github.com/gorilla/mux"

	"duochat/pkg/api/handlers"
)

// RegisterHandlers attaches all /v1 routes to r.
func RegisterHandlers(r *mux.Router) {
	// users
	r.HandleFunc("/v1/users", handlers.CreateUser).Methods("POST")
	r.HandleFunc("/v1/users", handlers.ListUsers).Methods("GET")
	r.HandleFunc("/v1/users/online", handlers.ListOnline).Methods("GET")
	r.HandleFunc("/v1/users/{id}", handlers.GetUser).Methods("GET")

	// conversations
	r.HandleFunc("/v1/conversations", handlers.ListConversations).Methods("GET")
	r.HandleFunc("/v1/conversations/{id}/read", handlers.MarkConversationRead).Methods("PUT")

	// messages
	r.HandleFunc("/v1/messages/{other}", handlers.ListMessages).Methods("GET")
	r.HandleFunc("/v1/messages/{id}", handlers.DeleteMessage).Methods("DELETE")
}
