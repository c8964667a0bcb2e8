package models

// Supported message content kinds.
const (
	KindText  = "text"
	KindImage = "image"
	KindFile  = "file"
)

// DeletedPlaceholder replaces the content of a message after a
// delete-for-everyone. Clients render it verbatim.
const DeletedPlaceholder = "This message was deleted"

// Deletion scopes.
const (
	ScopeMe       = "me"
	ScopeEveryone = "everyone"
)

type Message struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation"`
	Sender       string `json:"sender"`
	Kind         string `json:"kind"`
	Text         string `json:"text,omitempty"`
	// FileURL references media held by external object storage.
	FileURL string `json:"file_url,omitempty"`
	// Creation timestamp (ns); client-supplied when present, server time otherwise.
	TS int64 `json:"ts"`
	// ReadBy contains the sender from creation. Membership only grows.
	ReadBy []string `json:"read_by"`
	// DeletedFor lists identities the message is hidden from entirely.
	DeletedFor []string `json:"deleted_for,omitempty"`
	// DeletedEveryone marks an irreversible delete-for-everyone; the content
	// is replaced by DeletedPlaceholder at the same time.
	DeletedEveryone bool `json:"deleted_everyone,omitempty"`
}

// ReadByUser reports whether id is in the read set.
func (m *Message) ReadByUser(id string) bool {
	for _, r := range m.ReadBy {
		if r == id {
			return true
		}
	}
	return false
}

// MarkRead adds id to the read set once. Returns false when id was already
// present; the operation is idempotent.
func (m *Message) MarkRead(id string) bool {
	if m.ReadByUser(id) {
		return false
	}
	m.ReadBy = append(m.ReadBy, id)
	return true
}

// ReadByOther reports whether anyone besides the sender has read the
// message. This is the closing window for delete-for-everyone.
func (m *Message) ReadByOther() bool {
	for _, r := range m.ReadBy {
		if r != m.Sender {
			return true
		}
	}
	return false
}

// HiddenFor reports whether the message is hidden from id's listings.
func (m *Message) HiddenFor(id string) bool {
	for _, d := range m.DeletedFor {
		if d == id {
			return true
		}
	}
	return false
}

// HideFor adds id to the hidden set once. Returns false when already hidden.
func (m *Message) HideFor(id string) bool {
	if m.HiddenFor(id) {
		return false
	}
	m.DeletedFor = append(m.DeletedFor, id)
	return true
}

// Redact applies the delete-for-everyone transition: content is replaced by
// the placeholder and the terminal flag is set. Not reversible.
func (m *Message) Redact() {
	m.Text = DeletedPlaceholder
	m.FileURL = ""
	m.Kind = KindText
	m.DeletedEveryone = true
}
