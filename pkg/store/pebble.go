// Package store persists users, conversations and messages in Pebble.
//
// Key namespaces:
//
//	user:<id>                              -> User JSON
//	conv:<id>:meta                         -> Conversation JSON
//	convpair:<a>|<b>                       -> conversation id (a < b)
//	conv:<id>:msg:<padded-ts>-<seq>        -> Message JSON (insertion order)
//	msgidx:<msgID>                         -> primary message key
//
// Messages keep a stable primary key for their lifetime so read/delete state
// transitions rewrite in place; the msgidx entry makes by-id lookups cheap.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"duochat/pkg/logger"
	"duochat/pkg/models"
	"duochat/pkg/utils"
)

var (
	db     *pebble.DB
	dbPath string
)

// seq breaks ties between messages sharing the same nanosecond timestamp.
var seq uint64

// pairMu serializes conversation creation so concurrent sends between the
// same pair cannot race a duplicate past the convpair check.
var pairMu sync.Mutex

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpened() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// --- users ---

// SaveUser stores a user record keyed by id.
func SaveUser(u models.User) error {
	if db == nil {
		return notOpened()
	}
	if u.ID == "" {
		return fmt.Errorf("user id is empty")
	}
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := db.Set([]byte("user:"+u.ID), b, pebble.Sync); err != nil {
		logger.Error("save_user_failed", "user", u.ID, "error", err)
		return err
	}
	return nil
}

// GetUser loads the user record for id.
func GetUser(id string) (models.User, error) {
	var u models.User
	if db == nil {
		return u, notOpened()
	}
	v, closer, err := db.Get([]byte("user:" + id))
	if err != nil {
		return u, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &u); err != nil {
		return u, fmt.Errorf("invalid stored user: %w", err)
	}
	return u, nil
}

// ListUsers returns all stored users.
func ListUsers() ([]models.User, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("user:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.User
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var u models.User
		if err := json.Unmarshal(iter.Value(), &u); err == nil {
			out = append(out, u)
		}
	}
	return out, iter.Error()
}

// --- conversations ---

func convMetaKey(id string) []byte { return []byte("conv:" + id + ":meta") }

// GetConversation loads conversation metadata by id.
func GetConversation(id string) (models.Conversation, error) {
	var c models.Conversation
	if db == nil {
		return c, notOpened()
	}
	v, closer, err := db.Get(convMetaKey(id))
	if err != nil {
		return c, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &c); err != nil {
		return c, fmt.Errorf("invalid stored conversation: %w", err)
	}
	return c, nil
}

// FindConversationByPair returns the conversation for the unordered pair
// (a, b), or pebble.ErrNotFound when none exists yet.
func FindConversationByPair(a, b string) (models.Conversation, error) {
	var c models.Conversation
	if db == nil {
		return c, notOpened()
	}
	v, closer, err := db.Get([]byte("convpair:" + models.PairKey(a, b)))
	if err != nil {
		return c, err
	}
	id := string(v)
	closer.Close()
	return GetConversation(id)
}

// FindOrCreateConversation returns the single conversation for the unordered
// pair (a, b), creating it when absent. Creation is serialized so two
// near-simultaneous sends yield exactly one conversation.
func FindOrCreateConversation(a, b string) (models.Conversation, error) {
	if c, err := FindConversationByPair(a, b); err == nil {
		return c, nil
	}
	pairMu.Lock()
	defer pairMu.Unlock()
	// re-check under the lock; the other side may have won
	if c, err := FindConversationByPair(a, b); err == nil {
		return c, nil
	}
	now := time.Now().UTC().UnixNano()
	c := models.Conversation{
		ID:        utils.GenConversationID(),
		Members:   []string{a, b},
		CreatedTS: now,
		UpdatedTS: now,
	}
	b2, err := json.Marshal(c)
	if err != nil {
		return c, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := db.Set(convMetaKey(c.ID), b2, pebble.Sync); err != nil {
		logger.Error("save_conversation_failed", "conversation", c.ID, "error", err)
		return c, err
	}
	if err := db.Set([]byte("convpair:"+c.PairKeyOf()), []byte(c.ID), pebble.Sync); err != nil {
		logger.Error("save_conversation_pair_failed", "conversation", c.ID, "error", err)
		return c, err
	}
	logger.Info("conversation_created", "conversation", c.ID, "pair", c.PairKeyOf())
	return c, nil
}

// SaveConversation rewrites conversation metadata.
func SaveConversation(c models.Conversation) error {
	if db == nil {
		return notOpened()
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return db.Set(convMetaKey(c.ID), b, pebble.Sync)
}

// SetLastMessage updates a conversation's last-message pointer and activity
// timestamp.
func SetLastMessage(convID string, m models.Message) error {
	c, err := GetConversation(convID)
	if err != nil {
		return err
	}
	c.LastMessage = &m
	c.UpdatedTS = m.TS
	return SaveConversation(c)
}

// ListConversations returns every conversation in the store.
func ListConversations() ([]models.Conversation, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("conv:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Conversation
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var c models.Conversation
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, iter.Error()
}

// ListConversationsFor returns every conversation the user participates in.
func ListConversationsFor(userID string) ([]models.Conversation, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("conv:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Conversation
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var c models.Conversation
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			continue
		}
		if c.HasMember(userID) {
			out = append(out, c)
		}
	}
	return out, iter.Error()
}

// --- messages ---

// SaveMessage appends a message to its conversation under a sortable
// timestamp key and indexes it by id. The message id is assigned when empty.
func SaveMessage(m *models.Message) error {
	if db == nil {
		return notOpened()
	}
	if m.Conversation == "" {
		return fmt.Errorf("message conversation is empty")
	}
	if m.ID == "" {
		m.ID = utils.GenID()
	}
	ts := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&seq, 1)
	key := fmt.Sprintf("conv:%s:msg:%020d-%06d", m.Conversation, ts, s)

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("save_message_failed", "conversation", m.Conversation, "key", key, "error", err)
		return err
	}
	if err := db.Set([]byte("msgidx:"+m.ID), []byte(key), pebble.Sync); err != nil {
		logger.Error("save_message_index_failed", "msg_id", m.ID, "error", err)
		return err
	}
	logger.Debug("message_saved", "conversation", m.Conversation, "key", key, "msg_id", m.ID)
	return nil
}

func primaryKey(msgID string) (string, error) {
	v, closer, err := db.Get([]byte("msgidx:" + msgID))
	if err != nil {
		return "", err
	}
	defer closer.Close()
	return string(v), nil
}

// GetMessage loads a message by id.
func GetMessage(id string) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, notOpened()
	}
	key, err := primaryKey(id)
	if err != nil {
		return m, err
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		return m, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &m); err != nil {
		return m, fmt.Errorf("invalid stored message: %w", err)
	}
	return m, nil
}

// UpdateMessage rewrites a message in place at its primary key, preserving
// its position in the conversation's insertion order.
func UpdateMessage(m models.Message) error {
	if db == nil {
		return notOpened()
	}
	key, err := primaryKey(m.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("update_message_failed", "msg_id", m.ID, "error", err)
		return err
	}
	return nil
}

// ListMessages returns a conversation's messages in insertion order as seen
// by viewer: entries hidden for the viewer are dropped and delete-for-everyone
// tombstones remain with their placeholder content.
func ListMessages(convID, viewer string) ([]models.Message, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("conv:" + convID + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Error("list_messages_invalid_json", "key", string(iter.Key()), "error", err)
			continue
		}
		if viewer != "" && m.HiddenFor(viewer) {
			continue
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// MarkConversationRead adds viewer to the read set of every counterpart
// message not yet read by viewer. Returns how many messages changed; calling
// it again is a no-op.
func MarkConversationRead(convID, viewer string) (int, error) {
	if db == nil {
		return 0, notOpened()
	}
	prefix := []byte("conv:" + convID + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	changed := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if m.Sender == viewer || !m.MarkRead(viewer) {
			continue
		}
		data, err := json.Marshal(m)
		if err != nil {
			return changed, fmt.Errorf("failed to marshal message: %w", err)
		}
		k := append([]byte(nil), iter.Key()...)
		if err := db.Set(k, data, pebble.Sync); err != nil {
			logger.Error("mark_read_write_failed", "msg_id", m.ID, "error", err)
			return changed, err
		}
		changed++
	}
	if changed > 0 {
		logger.Info("conversation_marked_read", "conversation", convID, "viewer", viewer, "count", changed)
	}
	return changed, iter.Error()
}

// UnreadCount counts counterpart messages in the conversation that viewer
// has not read and that are still visible to viewer.
func UnreadCount(convID, viewer string) (int, error) {
	if db == nil {
		return 0, notOpened()
	}
	prefix := []byte("conv:" + convID + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if m.Sender == viewer || m.ReadByUser(viewer) || m.HiddenFor(viewer) {
			continue
		}
		n++
	}
	return n, iter.Error()
}

// SweepConversation removes message records that no participant can see any
// longer: entries hidden for every member, and delete-for-everyone
// tombstones older than cutoff (cutoff <= 0 keeps tombstones). Returns the
// number of records purged. With dryRun set nothing is written.
func SweepConversation(c models.Conversation, cutoff int64, dryRun bool) (int, error) {
	if db == nil {
		return 0, notOpened()
	}
	prefix := []byte("conv:" + c.ID + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	purged := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		hiddenForAll := len(c.Members) > 0
		for _, member := range c.Members {
			if !m.HiddenFor(member) {
				hiddenForAll = false
				break
			}
		}
		staleTombstone := m.DeletedEveryone && cutoff > 0 && m.TS < cutoff
		if !hiddenForAll && !staleTombstone {
			continue
		}
		purged++
		if dryRun {
			continue
		}
		k := append([]byte(nil), iter.Key()...)
		if err := db.Delete(k, pebble.Sync); err != nil {
			return purged, err
		}
		if err := db.Delete([]byte("msgidx:"+m.ID), pebble.Sync); err != nil {
			return purged, err
		}
	}
	return purged, iter.Error()
}

// IsNotFound reports whether err is the store's missing-record error.
func IsNotFound(err error) bool {
	return err == pebble.ErrNotFound
}
