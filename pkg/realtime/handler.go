// Package realtime serves the websocket endpoint. Every frame in both
// directions is a JSON envelope: {"event": ..., "data": ...}. A connection
// must announce its user before anything else; after that the server pushes
// presence, message, unread and deletion events as they happen.
package realtime

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"duochat/pkg/apperr"
	"duochat/pkg/auth"
	"duochat/pkg/dispatch"
	"duochat/pkg/logger"
	"duochat/pkg/models"
	"duochat/pkg/presence"
)

// Handler upgrades websocket connections and runs the per-connection event
// loop on top of the presence registry and dispatcher.
type Handler struct {
	registry   *presence.Registry
	dispatcher *dispatch.Dispatcher
	upgrader   websocket.Upgrader
	sendBuffer int
}

func NewHandler(registry *presence.Registry, dispatcher *dispatch.Dispatcher, sendBuffer int) *Handler {
	h := &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		sendBuffer: sendBuffer,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// cross-origin policy is enforced by the CORS middleware upstream
		CheckOrigin: func(*http.Request) bool { return true },
	}
	registry.OnChange(h.broadcastPresence)
	return h
}

// Register mounts the websocket endpoint on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/ws", h.serveWS)
}

func (h *Handler) broadcastPresence(online []string) {
	for _, id := range online {
		if peer, ok := h.registry.Lookup(id); ok {
			peer.Deliver(models.EventPresence, models.PresenceData{Users: online})
		}
	}
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("ws_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	client := newClient("", conn, h.sendBuffer)

	conn.SetReadDeadline(timeNow().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(timeNow().Add(pongWait))
		return nil
	})

	user, ok := h.awaitAnnounce(client)
	if !ok {
		client.Close()
		return
	}
	client.user = user
	go client.writePump()

	if prev := h.registry.Register(user, client); prev != nil {
		if pc, ok := prev.(*Client); ok {
			pc.Close()
		}
	}
	logger.Info("ws_connected", "user", user, "remote", r.RemoteAddr)

	h.readLoop(client)

	h.registry.Unregister(user, client)
	client.Close()
	logger.Info("ws_disconnected", "user", user)
}

// awaitAnnounce reads frames until a valid announce arrives. Any other event
// first is rejected and the connection dropped.
func (h *Handler) awaitAnnounce(c *Client) (string, bool) {
	env, err := c.readEnvelope()
	if err != nil {
		return "", false
	}
	if env.Event != models.EventAnnounce {
		_ = c.writeNow(models.EventError, models.ErrorData{Kind: "unauthorized", Message: "announce required before any other event"})
		return "", false
	}
	var a models.AnnounceData
	if err := json.Unmarshal(env.Data, &a); err != nil || a.User == "" {
		_ = c.writeNow(models.EventError, models.ErrorData{Kind: "invalid_state", Message: "announce requires a user"})
		return "", false
	}
	if !auth.VerifyUserSignature(a.User, a.Signature) {
		logger.Warn("ws_announce_bad_signature", "user", a.User)
		_ = c.writeNow(models.EventError, models.ErrorData{Kind: "unauthorized", Message: "invalid user signature"})
		return "", false
	}
	return a.User, true
}

// readLoop processes frames until the connection dies. Business-rule
// rejections are reported as error events; only transport failures end the
// loop.
func (h *Handler) readLoop(c *Client) {
	for {
		env, err := c.readEnvelope()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(timeNow().Add(pongWait))
		h.handleEvent(c, env)
	}
}

func (h *Handler) handleEvent(c *Client, env models.Envelope) {
	switch env.Event {
	case models.EventSend:
		var req models.SendData
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.reportError(c, apperr.InvalidStatef("malformed send payload"))
			return
		}
		m, err := h.dispatcher.Send(c.user, req)
		if err != nil {
			h.reportError(c, err)
			return
		}
		c.Deliver(models.EventMessage, models.MessageData{Message: m, LocalID: req.LocalID})

	case models.EventTyping:
		var req models.TypingData
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return
		}
		h.dispatcher.Typing(c.user, req)

	case models.EventMarkRead:
		var req models.MarkReadData
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.reportError(c, apperr.InvalidStatef("malformed mark_read payload"))
			return
		}
		if _, err := h.dispatcher.MarkRead(c.user, req.Conversation); err != nil {
			h.reportError(c, err)
		}

	case models.EventDelete:
		var req models.DeleteData
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.reportError(c, apperr.InvalidStatef("malformed delete payload"))
			return
		}
		m, err := h.dispatcher.Delete(c.user, req.Message, req.Scope)
		if err != nil {
			h.reportError(c, err)
			return
		}
		c.Deliver(models.EventMessageDeleted, models.DeletionData{Message: m.ID, Conversation: m.Conversation})

	case models.EventAnnounce:
		h.reportError(c, apperr.InvalidStatef("already announced"))

	default:
		h.reportError(c, apperr.InvalidStatef("unknown event %q", env.Event))
	}
}

func (h *Handler) reportError(c *Client, err error) {
	c.Deliver(models.EventError, models.ErrorData{Kind: apperr.Kind(err), Message: err.Error()})
}
