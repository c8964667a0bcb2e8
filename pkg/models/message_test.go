package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkReadIdempotent(t *testing.T) {
	m := Message{ID: "m1", Sender: "alice", ReadBy: []string{"alice"}}
	require.True(t, m.MarkRead("bob"))
	require.False(t, m.MarkRead("bob"))
	require.Equal(t, []string{"alice", "bob"}, m.ReadBy)
}

func TestReadByOtherIgnoresSender(t *testing.T) {
	m := Message{Sender: "alice", ReadBy: []string{"alice"}}
	require.False(t, m.ReadByOther())
	m.MarkRead("bob")
	require.True(t, m.ReadByOther())
}

func TestHideForIdempotent(t *testing.T) {
	m := Message{ID: "m1"}
	require.True(t, m.HideFor("alice"))
	require.False(t, m.HideFor("alice"))
	require.True(t, m.HiddenFor("alice"))
	require.False(t, m.HiddenFor("bob"))
}

func TestRedactReplacesContent(t *testing.T) {
	m := Message{Kind: KindImage, Text: "caption", FileURL: "https://files/x.png"}
	m.Redact()
	require.Equal(t, DeletedPlaceholder, m.Text)
	require.Empty(t, m.FileURL)
	require.Equal(t, KindText, m.Kind)
	require.True(t, m.DeletedEveryone)
}

func TestPairKeyCanonical(t *testing.T) {
	require.Equal(t, PairKey("bob", "alice"), PairKey("alice", "bob"))
	require.Equal(t, "alice|bob", PairKey("bob", "alice"))
}

func TestConversationOther(t *testing.T) {
	c := Conversation{Members: []string{"alice", "bob"}}
	require.Equal(t, "bob", c.Other("alice"))
	require.Equal(t, "alice", c.Other("bob"))
	require.Equal(t, "", c.Other("carol"))
	require.True(t, c.HasMember("alice"))
	require.False(t, c.HasMember("carol"))
}
