package timeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"duochat/pkg/models"
)

func msg(id, sender, text string) models.Message {
	return models.Message{ID: id, Sender: sender, Kind: models.KindText, Text: text}
}

func TestConfirmByToken(t *testing.T) {
	tl := New("alice")
	tl.AppendPending(msg("", "alice", "hello"), "tok-1")

	require.True(t, tl.Confirm(msg("m1", "alice", "hello"), "tok-1"))

	entries := tl.Entries()
	require.Len(t, entries, 1)
	require.False(t, entries[0].Pending)
	require.Equal(t, "m1", entries[0].Message.ID)
	require.Zero(t, tl.Pending())
}

func TestConfirmFallsBackToOldestMatchingPending(t *testing.T) {
	tl := New("alice")
	tl.AppendPending(msg("", "alice", "hello"), "tok-1")
	tl.AppendPending(msg("", "alice", "hello"), "tok-2")

	// token unknown (e.g. reconnect lost the mapping): oldest same-text
	// pending entry wins
	require.True(t, tl.Confirm(msg("m1", "alice", "hello"), "stale-token"))

	entries := tl.Entries()
	require.False(t, entries[0].Pending)
	require.Equal(t, "m1", entries[0].Message.ID)
	require.True(t, entries[1].Pending)
}

func TestConfirmOwnSenderInsertsWhenNothingPending(t *testing.T) {
	tl := New("alice")
	require.True(t, tl.Confirm(msg("m1", "alice", "from another device"), ""))
	require.Len(t, tl.Entries(), 1)

	// confirmations for foreign senders never insert
	require.False(t, tl.Confirm(msg("m2", "bob", "hi"), ""))
	require.Len(t, tl.Entries(), 1)
}

func TestConfirmDeduplicatesByID(t *testing.T) {
	tl := New("alice")
	tl.AppendPending(msg("", "alice", "hello"), "tok-1")

	require.True(t, tl.Confirm(msg("m1", "alice", "hello"), "tok-1"))
	require.False(t, tl.Confirm(msg("m1", "alice", "hello"), "tok-1"))
	require.Len(t, tl.Entries(), 1)
}

func TestAppendDeduplicatesByID(t *testing.T) {
	tl := New("alice")
	require.True(t, tl.Append(msg("m1", "bob", "hi")))
	require.False(t, tl.Append(msg("m1", "bob", "hi")))
	require.Len(t, tl.Entries(), 1)
}

func TestApplyDeletion(t *testing.T) {
	tl := New("alice")
	tl.Append(msg("m1", "bob", "hi"))

	require.True(t, tl.ApplyDeletion("m1"))
	require.False(t, tl.ApplyDeletion("unknown"))

	e := tl.Entries()[0]
	require.Equal(t, models.DeletedPlaceholder, e.Message.Text)
	require.True(t, e.Message.DeletedEveryone)
}

func TestMarkRead(t *testing.T) {
	tl := New("alice")
	tl.Append(models.Message{ID: "m1", Sender: "bob", Text: "hi", ReadBy: []string{"bob"}})
	tl.MarkRead("alice")
	require.True(t, tl.Entries()[0].Message.ReadByUser("alice"))
}
