package models

import "encoding/json"

// Wire event names shared by the server and clients.
const (
	EventAnnounce = "announce"
	EventSend     = "send"
	EventTyping   = "typing"
	EventDelete   = "delete"
	EventMarkRead = "mark_read"

	EventPresence       = "presence"
	EventMessage        = "message"
	EventUnread         = "unread"
	EventMessageDeleted = "message_deleted"
	EventError          = "error"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an Envelope. Marshal failures are
// programming errors; the envelope is returned with empty data in that case.
func NewEnvelope(event string, payload interface{}) Envelope {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{Event: event}
	}
	return Envelope{Event: event, Data: b}
}

// AnnounceData is the first frame a client must send after connecting.
type AnnounceData struct {
	User string `json:"user"`
	// Signature is the hex HMAC of User under a configured signing key.
	// Required only when signing keys are configured.
	Signature string `json:"signature,omitempty"`
}

// SendData carries an outbound message from a client.
type SendData struct {
	Recipient string `json:"recipient"`
	Kind      string `json:"kind,omitempty"`
	Text      string `json:"text,omitempty"`
	FileURL   string `json:"file_url,omitempty"`
	ClientTS  int64  `json:"client_ts,omitempty"`
	// LocalID is the client-generated correlation token echoed back on the
	// confirmation so the sender can reconcile its optimistic entry.
	LocalID string `json:"local_id,omitempty"`
}

// TypingData is a best-effort typing signal.
type TypingData struct {
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Active    bool   `json:"active"`
}

// DeleteData requests a message deletion.
type DeleteData struct {
	Message string `json:"message"`
	Scope   string `json:"scope"` // "me" or "everyone"
}

// MarkReadData requests a bulk mark-read for one conversation.
type MarkReadData struct {
	Conversation string `json:"conversation"`
}

// PresenceData broadcasts the full online snapshot after every change.
type PresenceData struct {
	Users []string `json:"users"`
}

// MessageData delivers a persisted message. LocalID echoes the sender's
// correlation token so the sending client can reconcile its pending entry.
type MessageData struct {
	Message Message `json:"message"`
	LocalID string  `json:"local_id,omitempty"`
}

// UnreadData lets a recipient bump a conversation's unread counter without
// refetching the message list.
type UnreadData struct {
	Conversation string `json:"conversation"`
	Sender       string `json:"sender"`
}

// DeletionData notifies participants of a delete-for-everyone.
type DeletionData struct {
	Message      string `json:"message"`
	Conversation string `json:"conversation"`
}

// ErrorData reports a business-rule rejection back to the requesting client.
type ErrorData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
