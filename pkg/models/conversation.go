package models

import (
	"sort"
	"strings"
)

// Conversation groups the message history between exactly two participants.
// At most one conversation exists per unordered member pair; the store
// enforces this via the canonical pair key. Conversations are never deleted.
type Conversation struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
	// LastMessage is an embedded copy of the most recent message, kept for
	// conversation listings so clients avoid a second fetch.
	LastMessage *Message `json:"last_message,omitempty"`
	CreatedTS   int64    `json:"created_ts,omitempty"`
	UpdatedTS   int64    `json:"updated_ts,omitempty"`
}

// PairKey returns the canonical lookup key for an unordered member pair.
// PairKey(a, b) == PairKey(b, a).
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// PairKeyOf returns the canonical pair key of the conversation's members.
func (c *Conversation) PairKeyOf() string {
	ms := append([]string(nil), c.Members...)
	sort.Strings(ms)
	return strings.Join(ms, "|")
}

// HasMember reports whether id participates in the conversation.
func (c *Conversation) HasMember(id string) bool {
	for _, m := range c.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Other returns the counterpart of id, or "" when id is not a member.
func (c *Conversation) Other(id string) string {
	for _, m := range c.Members {
		if m != id {
			return m
		}
	}
	return ""
}
