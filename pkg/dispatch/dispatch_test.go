package dispatch

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"duochat/pkg/apperr"
	"duochat/pkg/models"
	"duochat/pkg/presence"
	"duochat/pkg/store"
)

type capturedEvent struct {
	Event   string
	Payload any
}

type fakePeer struct {
	mu     sync.Mutex
	events []capturedEvent
	accept bool
}

func newFakePeer() *fakePeer { return &fakePeer{accept: true} }

func (p *fakePeer) Deliver(event string, payload any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{Event: event, Payload: payload})
	return p.accept
}

func (p *fakePeer) eventNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event)
	}
	return out
}

func (p *fakePeer) messageIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.Event == models.EventMessage {
			out = append(out, e.Payload.(models.MessageData).Message.ID)
		}
	}
	return out
}

func setup(t *testing.T) (*Dispatcher, *presence.Registry) {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })
	reg := presence.NewRegistry()
	return New(reg), reg
}

func TestSendDeliversToOnlineRecipient(t *testing.T) {
	d, reg := setup(t)
	bob := newFakePeer()
	reg.Register("bob", bob)

	m, err := d.Send("alice", models.SendData{Recipient: "bob", Text: "hello", LocalID: "tok-1"})
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	require.Equal(t, "alice", m.Sender)
	require.Equal(t, models.KindText, m.Kind)
	require.Contains(t, m.ReadBy, "alice")

	require.Equal(t, []string{models.EventMessage, models.EventUnread}, bob.eventNames())
	md := bob.events[0].Payload.(models.MessageData)
	require.Equal(t, m.ID, md.Message.ID)
	require.Equal(t, "tok-1", md.LocalID)

	// persisted under the pair's conversation
	conv, err := store.FindConversationByPair("alice", "bob")
	require.NoError(t, err)
	require.Equal(t, m.Conversation, conv.ID)
	require.NotNil(t, conv.LastMessage)
	require.Equal(t, m.ID, conv.LastMessage.ID)
}

func TestSendOfflineRecipientStillPersists(t *testing.T) {
	d, _ := setup(t)

	m, err := d.Send("alice", models.SendData{Recipient: "bob", Text: "hello"})
	require.NoError(t, err)

	msgs, err := store.ListMessages(m.Conversation, "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestSendRejectsSelfAndEmptyRecipient(t *testing.T) {
	d, _ := setup(t)

	_, err := d.Send("alice", models.SendData{Recipient: "alice", Text: "hi"})
	require.Equal(t, "invalid_state", apperr.Kind(err))

	_, err = d.Send("alice", models.SendData{Text: "hi"})
	require.Equal(t, "invalid_state", apperr.Kind(err))
}

func TestSendRejectsInvalidPayload(t *testing.T) {
	d, _ := setup(t)

	_, err := d.Send("alice", models.SendData{Recipient: "bob", Kind: models.KindImage})
	require.Equal(t, "invalid_state", apperr.Kind(err))

	// no message may exist after a rejection
	_, err = store.FindConversationByPair("alice", "bob")
	require.NoError(t, err) // conversation resolves first
	conv, _ := store.FindConversationByPair("alice", "bob")
	msgs, err := store.ListMessages(conv.ID, "")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestMarkReadRequiresMembership(t *testing.T) {
	d, _ := setup(t)

	m, err := d.Send("alice", models.SendData{Recipient: "bob", Text: "hi"})
	require.NoError(t, err)

	_, err = d.MarkRead("carol", m.Conversation)
	require.Equal(t, "unauthorized", apperr.Kind(err))

	_, err = d.MarkRead("bob", "conv-unknown")
	require.Equal(t, "not_found", apperr.Kind(err))

	n, err := d.MarkRead("bob", m.Conversation)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestDeleteForMeIsLocal(t *testing.T) {
	d, reg := setup(t)
	bob := newFakePeer()
	reg.Register("bob", bob)

	m, err := d.Send("alice", models.SendData{Recipient: "bob", Text: "oops"})
	require.NoError(t, err)
	bob.events = nil

	got, err := d.Delete("alice", m.ID, models.ScopeMe)
	require.NoError(t, err)
	require.True(t, got.HiddenFor("alice"))
	require.False(t, got.DeletedEveryone)
	require.Empty(t, bob.events, "delete-for-me must not notify the counterpart")

	// recipient never deletes for everyone, but may hide for themselves
	_, err = d.Delete("bob", m.ID, models.ScopeMe)
	require.NoError(t, err)
}

func TestDeleteForEveryoneOnlyBySender(t *testing.T) {
	d, _ := setup(t)

	m, err := d.Send("alice", models.SendData{Recipient: "bob", Text: "oops"})
	require.NoError(t, err)

	_, err = d.Delete("bob", m.ID, models.ScopeEveryone)
	require.Equal(t, "unauthorized", apperr.Kind(err))

	_, err = d.Delete("carol", m.ID, models.ScopeEveryone)
	require.Equal(t, "unauthorized", apperr.Kind(err))
}

func TestDeleteForEveryoneWindowClosesOnRead(t *testing.T) {
	d, _ := setup(t)

	m, err := d.Send("alice", models.SendData{Recipient: "bob", Text: "oops"})
	require.NoError(t, err)

	_, err = d.MarkRead("bob", m.Conversation)
	require.NoError(t, err)

	_, err = d.Delete("alice", m.ID, models.ScopeEveryone)
	require.Equal(t, "invalid_state", apperr.Kind(err))
}

func TestDeleteForEveryoneRedactsAndNotifies(t *testing.T) {
	d, reg := setup(t)
	bob := newFakePeer()
	reg.Register("bob", bob)

	m, err := d.Send("alice", models.SendData{Recipient: "bob", Text: "oops"})
	require.NoError(t, err)
	bob.events = nil

	got, err := d.Delete("alice", m.ID, models.ScopeEveryone)
	require.NoError(t, err)
	require.True(t, got.DeletedEveryone)
	require.Equal(t, models.DeletedPlaceholder, got.Text)

	require.Equal(t, []string{models.EventMessageDeleted}, bob.eventNames())
	dd := bob.events[0].Payload.(models.DeletionData)
	require.Equal(t, m.ID, dd.Message)

	// idempotent: repeating the terminal transition is accepted
	again, err := d.Delete("alice", m.ID, models.ScopeEveryone)
	require.NoError(t, err)
	require.True(t, again.DeletedEveryone)

	// both sides now see the placeholder
	for _, viewer := range []string{"alice", "bob"} {
		msgs, err := store.ListMessages(m.Conversation, viewer)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Equal(t, models.DeletedPlaceholder, msgs[0].Text)
	}
}

func TestDeleteUnknownScopeAndMessage(t *testing.T) {
	d, _ := setup(t)

	m, err := d.Send("alice", models.SendData{Recipient: "bob", Text: "hi"})
	require.NoError(t, err)

	_, err = d.Delete("alice", m.ID, "purge")
	require.Equal(t, "invalid_state", apperr.Kind(err))

	_, err = d.Delete("alice", "msg-unknown", models.ScopeMe)
	require.Equal(t, "not_found", apperr.Kind(err))
}

func TestTypingForwardsOnlyWhenOnline(t *testing.T) {
	d, reg := setup(t)
	bob := newFakePeer()
	reg.Register("bob", bob)

	d.Typing("alice", models.TypingData{Recipient: "bob", Active: true})
	require.Equal(t, []string{models.EventTyping}, bob.eventNames())
	td := bob.events[0].Payload.(models.TypingData)
	require.Equal(t, "alice", td.Sender)
	require.True(t, td.Active)

	// offline recipient: nothing happens, nothing persists
	d.Typing("alice", models.TypingData{Recipient: "carol", Active: true})
}

func TestDeleteForEveryoneRedactsLastMessage(t *testing.T) {
	d, _ := setup(t)

	m, err := d.Send("alice", models.SendData{Recipient: "bob", Text: "secret"})
	require.NoError(t, err)

	_, err = d.Delete("alice", m.ID, models.ScopeEveryone)
	require.NoError(t, err)

	conv, err := store.GetConversation(m.Conversation)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessage)
	require.Equal(t, m.ID, conv.LastMessage.ID)
	require.True(t, conv.LastMessage.DeletedEveryone)
	require.Equal(t, models.DeletedPlaceholder, conv.LastMessage.Text)
}

func TestDeleteForEveryoneKeepsNewerLastMessage(t *testing.T) {
	d, _ := setup(t)

	first, err := d.Send("alice", models.SendData{Recipient: "bob", Text: "going"})
	require.NoError(t, err)
	second, err := d.Send("alice", models.SendData{Recipient: "bob", Text: "gone"})
	require.NoError(t, err)

	_, err = d.Delete("alice", first.ID, models.ScopeEveryone)
	require.NoError(t, err)

	conv, err := store.GetConversation(first.Conversation)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessage)
	require.Equal(t, second.ID, conv.LastMessage.ID)
	require.Equal(t, "gone", conv.LastMessage.Text)
}

func TestConcurrentSendsDeliverInPersistenceOrder(t *testing.T) {
	d, reg := setup(t)
	bob := newFakePeer()
	reg.Register("bob", bob)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := d.Send("alice", models.SendData{Recipient: "bob", Text: fmt.Sprintf("msg %d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	conv, err := store.FindConversationByPair("alice", "bob")
	require.NoError(t, err)
	stored, err := store.ListMessages(conv.ID, "bob")
	require.NoError(t, err)
	require.Len(t, stored, n)

	want := make([]string, 0, n)
	for _, m := range stored {
		want = append(want, m.ID)
	}
	require.Equal(t, want, bob.messageIDs())
}
