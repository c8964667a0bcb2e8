package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"duochat/pkg/config"
	"duochat/pkg/models"
	"duochat/pkg/store"
)

func effFor(t *testing.T, enabled, dryRun bool, period time.Duration) config.EffectiveConfigResult {
	t.Helper()
	cfg := &config.Config{}
	cfg.Retention.Enabled = enabled
	cfg.Retention.DryRun = dryRun
	cfg.Retention.Period = config.Duration(period)
	return config.EffectiveConfigResult{Config: cfg, DBPath: t.TempDir()}
}

func TestRunImmediateRequiresConfig(t *testing.T) {
	storedEff = nil
	require.Error(t, RunImmediate())
}

func TestRunImmediatePurges(t *testing.T) {
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })

	conv, err := store.FindOrCreateConversation("alice", "bob")
	require.NoError(t, err)

	gone := models.Message{Conversation: conv.ID, Sender: "alice", Kind: models.KindText, Text: "x", ReadBy: []string{"alice"}, DeletedFor: []string{"alice", "bob"}}
	require.NoError(t, store.SaveMessage(&gone))
	kept := models.Message{Conversation: conv.ID, Sender: "alice", Kind: models.KindText, Text: "keep", ReadBy: []string{"alice"}}
	require.NoError(t, store.SaveMessage(&kept))
	oldTomb := models.Message{Conversation: conv.ID, Sender: "alice", Kind: models.KindText, Text: models.DeletedPlaceholder, TS: 1, ReadBy: []string{"alice"}, DeletedEveryone: true}
	require.NoError(t, store.SaveMessage(&oldTomb))
	freshTomb := models.Message{Conversation: conv.ID, Sender: "alice", Kind: models.KindText, Text: models.DeletedPlaceholder, TS: time.Now().UTC().UnixNano(), ReadBy: []string{"alice"}, DeletedEveryone: true}
	require.NoError(t, store.SaveMessage(&freshTomb))

	SetEffectiveConfig(effFor(t, true, false, time.Hour))
	require.NoError(t, RunImmediate())

	msgs, err := store.ListMessages(conv.ID, "")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		require.NotEqual(t, gone.ID, m.ID)
		require.NotEqual(t, oldTomb.ID, m.ID)
	}
}

func TestDryRunKeepsEverything(t *testing.T) {
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })

	conv, err := store.FindOrCreateConversation("alice", "bob")
	require.NoError(t, err)
	gone := models.Message{Conversation: conv.ID, Sender: "alice", Kind: models.KindText, Text: "x", ReadBy: []string{"alice"}, DeletedFor: []string{"alice", "bob"}}
	require.NoError(t, store.SaveMessage(&gone))

	SetEffectiveConfig(effFor(t, true, true, time.Hour))
	require.NoError(t, RunImmediate())

	msgs, err := store.ListMessages(conv.ID, "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}
