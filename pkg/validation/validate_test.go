package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"duochat/pkg/models"
)

func base() models.Message {
	return models.Message{Conversation: "conv-1", Sender: "alice", Kind: models.KindText, Text: "hi"}
}

func TestValidateMessageAccepts(t *testing.T) {
	SetRules(Rules{})
	require.NoError(t, ValidateMessage(base()))

	m := base()
	m.Kind = models.KindImage
	m.Text = ""
	m.FileURL = "https://files/x.png"
	require.NoError(t, ValidateMessage(m))
}

func TestValidateMessageRejects(t *testing.T) {
	SetRules(Rules{})

	m := base()
	m.Sender = ""
	require.ErrorContains(t, ValidateMessage(m), "sender is required")

	m = base()
	m.Conversation = ""
	require.ErrorContains(t, ValidateMessage(m), "conversation is required")

	m = base()
	m.Kind = "sticker"
	require.ErrorContains(t, ValidateMessage(m), "unsupported kind")

	m = base()
	m.Text = "   "
	require.ErrorContains(t, ValidateMessage(m), "text is required")

	m = base()
	m.Kind = models.KindFile
	m.FileURL = ""
	require.ErrorContains(t, ValidateMessage(m), "file_url is required")
}

func TestValidateMessageTextCap(t *testing.T) {
	SetRules(Rules{MaxTextBytes: 8})
	t.Cleanup(func() { SetRules(Rules{}) })

	m := base()
	m.Text = strings.Repeat("a", 9)
	require.ErrorContains(t, ValidateMessage(m), "exceeds 8 bytes")

	m.Text = strings.Repeat("a", 8)
	require.NoError(t, ValidateMessage(m))
}

func TestValidateMessageRestrictedKinds(t *testing.T) {
	SetRules(Rules{Kinds: []string{models.KindText}})
	t.Cleanup(func() { SetRules(Rules{}) })

	m := base()
	m.Kind = models.KindImage
	m.FileURL = "https://files/x.png"
	require.ErrorContains(t, ValidateMessage(m), "unsupported kind")
}
