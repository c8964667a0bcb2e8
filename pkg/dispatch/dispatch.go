// Package dispatch routes messages between users: it resolves the pair's
// conversation, persists the message, then pushes events to whichever
// participants are online. Persistence always happens before any push.
package dispatch

import (
	"sync"
	"time"

	"duochat/pkg/apperr"
	"duochat/pkg/logger"
	"duochat/pkg/metrics"
	"duochat/pkg/models"
	"duochat/pkg/presence"
	"duochat/pkg/store"
	"duochat/pkg/utils"
	"duochat/pkg/validation"
)

// Dispatcher owns message delivery and the message read/delete state
// transitions. All store writes for a conversation are serialized through a
// per-conversation lock.
type Dispatcher struct {
	registry *presence.Registry

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(registry *presence.Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (d *Dispatcher) convLock(convID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[convID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[convID] = l
	}
	return l
}

// Send persists a message from sender per req and delivers it. The recipient
// being offline is not an error; a persistence failure aborts before anything
// is pushed to either side.
func (d *Dispatcher) Send(sender string, req models.SendData) (models.Message, error) {
	start := time.Now()
	defer func() { metrics.DispatchSeconds.Observe(time.Since(start).Seconds()) }()

	if req.Recipient == "" {
		return models.Message{}, apperr.InvalidStatef("recipient is required")
	}
	if req.Recipient == sender {
		return models.Message{}, apperr.InvalidStatef("cannot message yourself")
	}

	conv, err := store.FindOrCreateConversation(sender, req.Recipient)
	if err != nil {
		return models.Message{}, apperr.Persistence(err, "failed to resolve conversation")
	}

	ts := req.ClientTS
	if ts == 0 {
		ts = time.Now().UTC().UnixNano()
	}
	kind := req.Kind
	if kind == "" {
		kind = models.KindText
	}
	m := models.Message{
		ID:           utils.GenID(),
		Conversation: conv.ID,
		Sender:       sender,
		Kind:         kind,
		Text:         req.Text,
		FileURL:      req.FileURL,
		TS:           ts,
		ReadBy:       []string{sender},
	}
	if err := validation.ValidateMessage(m); err != nil {
		return models.Message{}, apperr.InvalidStatef("invalid message: %v", err)
	}

	l := d.convLock(conv.ID)
	l.Lock()
	err = store.SaveMessage(&m)
	if err == nil {
		err = store.SetLastMessage(conv.ID, m)
	}
	if err != nil {
		l.Unlock()
		return models.Message{}, apperr.Persistence(err, "failed to persist message")
	}
	metrics.MessagesSent.Inc()

	// Push before releasing the conversation lock so the recipient sees
	// messages in the order their persistence completed. Deliver never blocks.
	if peer, ok := d.registry.Lookup(req.Recipient); ok {
		if peer.Deliver(models.EventMessage, models.MessageData{Message: m, LocalID: req.LocalID}) {
			metrics.MessagesDelivered.Inc()
		}
		peer.Deliver(models.EventUnread, models.UnreadData{Conversation: conv.ID, Sender: sender})
	} else {
		logger.Debug("recipient_offline", "recipient", req.Recipient, "conversation", conv.ID)
	}
	l.Unlock()

	logger.Info("message_dispatched", "conversation", conv.ID, "sender", sender, "recipient", req.Recipient, "msg_id", m.ID)
	return m, nil
}

// Typing forwards a transient typing indicator to the recipient when they
// are online. Nothing is persisted.
func (d *Dispatcher) Typing(sender string, req models.TypingData) {
	if req.Recipient == "" || req.Recipient == sender {
		return
	}
	if peer, ok := d.registry.Lookup(req.Recipient); ok {
		peer.Deliver(models.EventTyping, models.TypingData{Sender: sender, Recipient: req.Recipient, Active: req.Active})
	}
}

// MarkRead marks every counterpart message in the conversation as read by
// viewer. Viewer must be a participant. Returns the number of messages that
// changed; re-running is a no-op.
func (d *Dispatcher) MarkRead(viewer, convID string) (int, error) {
	conv, err := store.GetConversation(convID)
	if err != nil {
		if store.IsNotFound(err) {
			return 0, apperr.NotFoundf("conversation %s not found", convID)
		}
		return 0, apperr.Persistence(err, "failed to load conversation")
	}
	if !conv.HasMember(viewer) {
		return 0, apperr.Unauthorizedf("user %s is not a participant of %s", viewer, convID)
	}
	l := d.convLock(convID)
	l.Lock()
	n, err := store.MarkConversationRead(convID, viewer)
	l.Unlock()
	if err != nil {
		return n, apperr.Persistence(err, "failed to mark conversation read")
	}
	return n, nil
}

// Delete applies a deletion to a message. Scope "me" hides the message for
// actor only. Scope "everyone" is restricted to the sender and only while no
// counterpart has read the message; it replaces the content with a
// placeholder for both sides.
func (d *Dispatcher) Delete(actor, msgID, scope string) (models.Message, error) {
	m, err := store.GetMessage(msgID)
	if err != nil {
		if store.IsNotFound(err) {
			return models.Message{}, apperr.NotFoundf("message %s not found", msgID)
		}
		return models.Message{}, apperr.Persistence(err, "failed to load message")
	}
	conv, err := store.GetConversation(m.Conversation)
	if err != nil {
		return models.Message{}, apperr.Persistence(err, "failed to load conversation")
	}
	if !conv.HasMember(actor) {
		return models.Message{}, apperr.Unauthorizedf("user %s is not a participant of %s", actor, conv.ID)
	}

	l := d.convLock(conv.ID)
	l.Lock()
	defer l.Unlock()

	// reload under the lock so a racing read cannot be lost
	m, err = store.GetMessage(msgID)
	if err != nil {
		return models.Message{}, apperr.Persistence(err, "failed to load message")
	}

	switch scope {
	case models.ScopeMe:
		if !m.HideFor(actor) {
			return m, nil
		}
	case models.ScopeEveryone:
		if m.Sender != actor {
			return models.Message{}, apperr.Unauthorizedf("only the sender can delete for everyone")
		}
		if m.DeletedEveryone {
			return m, nil
		}
		if m.ReadByOther() {
			return models.Message{}, apperr.InvalidStatef("message already read; delete for everyone is no longer available")
		}
		m.Redact()
	default:
		return models.Message{}, apperr.InvalidStatef("unknown delete scope %q", scope)
	}

	if err := store.UpdateMessage(m); err != nil {
		return models.Message{}, apperr.Persistence(err, "failed to persist deletion")
	}
	if scope == models.ScopeEveryone {
		// The conversation embeds a copy of its last message; redact that
		// copy too or the original text stays visible in listings.
		cur, err := store.GetConversation(conv.ID)
		if err != nil {
			return models.Message{}, apperr.Persistence(err, "failed to load conversation")
		}
		if cur.LastMessage != nil && cur.LastMessage.ID == m.ID {
			if err := store.SetLastMessage(conv.ID, m); err != nil {
				return models.Message{}, apperr.Persistence(err, "failed to update last message")
			}
		}
	}
	metrics.MessagesDeleted.WithLabelValues(scope).Inc()
	logger.Info("message_deleted", "msg_id", msgID, "scope", scope, "actor", actor)

	if scope == models.ScopeEveryone {
		if other := conv.Other(actor); other != "" {
			if peer, ok := d.registry.Lookup(other); ok {
				peer.Deliver(models.EventMessageDeleted, models.DeletionData{Message: msgID, Conversation: conv.ID})
			}
		}
	}
	return m, nil
}
