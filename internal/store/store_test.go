// ABOUTME: Tests for conversation state transitions
// ABOUTME: Covers dedup/ordering invariants, page merging, and typing state

package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/internal/chat"
)

func msg(id string, ts time.Time) chat.Message {
	return chat.Message{ID: id, ChatID: "c1", Author: "alice", Body: "body-" + id, Timestamp: ts}
}

func ids(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestEnsure_Idempotent(t *testing.T) {
	s := New(nil)
	s.Ensure("c1")
	s.Ensure("c1")

	snap := s.Snapshot("c1")
	assert.Empty(t, snap.Messages)
	assert.True(t, snap.HasMore, "hasMore starts true until a fetch proves otherwise")
	assert.False(t, snap.Loading)
}

func TestInsertLiveMessage_DedupAndOrder(t *testing.T) {
	s := New(nil)

	// Arbitrary interleaving with duplicates: out of order, repeated ids.
	inserts := []chat.Message{
		msg("m3", base.Add(3*time.Second)),
		msg("m1", base.Add(1*time.Second)),
		msg("m3", base.Add(3*time.Second)), // duplicate delivery
		msg("m2", base.Add(2*time.Second)),
		msg("m1", base.Add(1*time.Second)), // duplicate delivery
	}
	for _, m := range inserts {
		s.InsertLiveMessage("c1", m)
	}

	snap := s.Snapshot("c1")
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(snap.Messages))
}

func TestInsertLiveMessage_EqualTimestampsKeepInsertionOrder(t *testing.T) {
	s := New(nil)
	ts := base.Add(time.Second)
	s.InsertLiveMessage("c1", msg("first", ts))
	s.InsertLiveMessage("c1", msg("second", ts))
	s.InsertLiveMessage("c1", msg("third", ts))

	snap := s.Snapshot("c1")
	assert.Equal(t, []string{"first", "second", "third"}, ids(snap.Messages))
}

func TestInsertLiveMessage_ZeroTimestampsKeepRelativeOrder(t *testing.T) {
	s := New(nil)
	// Unparseable wire timestamps end up as the zero time; all equal, so the
	// stable sort must not reorder them.
	s.InsertLiveMessage("c1", msg("a", time.Time{}))
	s.InsertLiveMessage("c1", msg("b", time.Time{}))
	s.InsertLiveMessage("c1", msg("c", base))

	snap := s.Snapshot("c1")
	assert.Equal(t, []string{"a", "b", "c"}, ids(snap.Messages))
}

func TestBeginHistoryLoad_RefusesSecondLoad(t *testing.T) {
	s := New(nil)

	assert.True(t, s.BeginHistoryLoad("c1"))
	assert.False(t, s.BeginHistoryLoad("c1"), "a load is already in flight")

	s.ApplyHistoryPage("c1", []chat.Message{msg("m1", base)}, true, true)
	assert.True(t, s.BeginHistoryLoad("c1"), "applying the page frees the slot")
}

func TestAbandonHistoryLoad_ClearsLoadingKeepsState(t *testing.T) {
	s := New(nil)
	s.ApplyHistoryPage("c1", []chat.Message{msg("m1", base)}, true, true)
	require.True(t, s.BeginHistoryLoad("c1"))

	s.AbandonHistoryLoad("c1")

	snap := s.Snapshot("c1")
	assert.False(t, snap.Loading)
	assert.Equal(t, []string{"m1"}, ids(snap.Messages))
	assert.Empty(t, snap.Error, "an abandoned load is not a failure")
	assert.True(t, s.BeginHistoryLoad("c1"), "a later load can retry")
}

func TestAbandonHistoryLoad_DoesNotResurrectClearedConversation(t *testing.T) {
	s := New(nil)
	s.BeginHistoryLoad("c1")
	s.Clear("c1")

	s.AbandonHistoryLoad("c1")

	s.mu.RLock()
	_, exists := s.conversations["c1"]
	s.mu.RUnlock()
	assert.False(t, exists, "abandon on a cleared conversation leaves nothing behind")
}

func TestApplyHistoryPage_InitialReplacesLog(t *testing.T) {
	s := New(nil)
	s.InsertLiveMessage("c1", msg("live", base.Add(10*time.Second)))
	s.BeginHistoryLoad("c1")

	page := []chat.Message{
		msg("m2", base.Add(2*time.Second)),
		msg("m1", base.Add(1*time.Second)),
		msg("m2", base.Add(2*time.Second)), // in-page duplicate
	}
	s.ApplyHistoryPage("c1", page, true, true)

	snap := s.Snapshot("c1")
	assert.Equal(t, []string{"m1", "m2"}, ids(snap.Messages))
	assert.False(t, snap.Loading)
	assert.True(t, snap.HasMore)
}

func TestApplyHistoryPage_OlderPagePrepends(t *testing.T) {
	s := New(nil)
	s.ApplyHistoryPage("c1", []chat.Message{msg("m5", base.Add(5*time.Second))}, true, true)

	older := []chat.Message{
		msg("m3", base.Add(3*time.Second)),
		msg("m4", base.Add(4*time.Second)),
	}
	s.ApplyHistoryPage("c1", older, false, true)

	snap := s.Snapshot("c1")
	assert.Equal(t, []string{"m3", "m4", "m5"}, ids(snap.Messages))
	assert.True(t, snap.HasMore)
}

func TestApplyHistoryPage_IdempotentUnderDuplicateDelivery(t *testing.T) {
	s := New(nil)
	s.ApplyHistoryPage("c1", []chat.Message{msg("m5", base.Add(5*time.Second))}, true, true)

	older := []chat.Message{
		msg("m3", base.Add(3*time.Second)),
		msg("m4", base.Add(4*time.Second)),
	}
	s.ApplyHistoryPage("c1", older, false, true)
	once := ids(s.Snapshot("c1").Messages)

	s.ApplyHistoryPage("c1", older, false, true)
	twice := ids(s.Snapshot("c1").Messages)

	assert.Equal(t, once, twice)
}

func TestApplyHistoryPage_SetsHasMoreFalse(t *testing.T) {
	s := New(nil)
	s.ApplyHistoryPage("c1", nil, true, false)
	assert.False(t, s.Snapshot("c1").HasMore)
}

func TestFailHistoryLoad_KeepsMessages(t *testing.T) {
	s := New(nil)
	s.ApplyHistoryPage("c1", []chat.Message{msg("m1", base)}, true, true)
	s.BeginHistoryLoad("c1")
	s.FailHistoryLoad("c1", "boom")

	snap := s.Snapshot("c1")
	assert.Equal(t, []string{"m1"}, ids(snap.Messages))
	assert.False(t, snap.Loading)
	assert.Equal(t, "boom", snap.Error)
}

func TestApplyHistoryPage_ClearsError(t *testing.T) {
	s := New(nil)
	s.FailHistoryLoad("c1", "boom")
	s.ApplyHistoryPage("c1", []chat.Message{msg("m1", base)}, true, false)
	assert.Empty(t, s.Snapshot("c1").Error)
}

func TestSetTyping(t *testing.T) {
	s := New(nil)
	s.SetTyping("c1", "alice", true)
	s.SetTyping("c1", "bob", true)
	assert.Equal(t, []string{"alice", "bob"}, s.Snapshot("c1").Typing)

	s.SetTyping("c1", "alice", false)
	assert.Equal(t, []string{"bob"}, s.Snapshot("c1").Typing)

	// Removing an absent participant is a no-op, not an error.
	s.SetTyping("c1", "carol", false)
	assert.Equal(t, []string{"bob"}, s.Snapshot("c1").Typing)
}

func TestClear_DropsEntry(t *testing.T) {
	s := New(nil)
	s.ApplyHistoryPage("c1", []chat.Message{msg("m1", base)}, true, false)
	s.Clear("c1")

	snap := s.Snapshot("c1")
	assert.Empty(t, snap.Messages)
	assert.True(t, snap.HasMore, "cleared conversation starts from a clean slate")

	// Previously seen ids are forgotten, so the same message can be inserted again.
	s.InsertLiveMessage("c1", msg("m1", base))
	assert.Len(t, s.Snapshot("c1").Messages, 1)
}

func TestOldestMessageID(t *testing.T) {
	s := New(nil)
	assert.Empty(t, s.OldestMessageID("c1"))

	s.InsertLiveMessage("c1", msg("m2", base.Add(2*time.Second)))
	s.InsertLiveMessage("c1", msg("m1", base.Add(1*time.Second)))
	assert.Equal(t, "m1", s.OldestMessageID("c1"))
}

func TestConversations_Independent(t *testing.T) {
	s := New(nil)
	for i := 0; i < 5; i++ {
		chatID := fmt.Sprintf("c%d", i)
		s.InsertLiveMessage(chatID, msg(fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	for i := 0; i < 5; i++ {
		require.Len(t, s.Snapshot(fmt.Sprintf("c%d", i)).Messages, 1)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := New(nil)
	s.InsertLiveMessage("c1", msg("m1", base))

	snap := s.Snapshot("c1")
	snap.Messages[0].Body = "mutated"

	assert.Equal(t, "body-m1", s.Snapshot("c1").Messages[0].Body)
}
