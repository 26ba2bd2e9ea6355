package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacechat/internal/models"
)

type capturingPublisher struct {
	published []models.Message
}

func (p *capturingPublisher) PublishInsert(msg models.Message) {
	p.published = append(p.published, msg)
}

func newStoreFixture() (*fakeConversationStore, *fakeMessageRepo, *capturingPublisher, *MessageStore) {
	cs := newFakeConversationStore()
	cs.addConversation("conv-1", nil, "alice", "bob")
	mr := newFakeMessageRepo()
	pub := &capturingPublisher{}
	return cs, mr, pub, NewMessageStore(cs, mr, pub)
}

func TestAppendRejectsEmptyContent(t *testing.T) {
	_, _, _, store := newStoreFixture()

	var validationErr *ValidationError

	_, err := store.Append(context.Background(), "conv-1", "alice", "")
	require.Error(t, err)
	assert.ErrorAs(t, err, &validationErr)

	_, err = store.Append(context.Background(), "conv-1", "alice", "   ")
	require.Error(t, err)
	assert.ErrorAs(t, err, &validationErr)
}

func TestAppendTrimsContent(t *testing.T) {
	_, _, _, store := newStoreFixture()

	msg, err := store.Append(context.Background(), "conv-1", "alice", "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Content)
}

func TestAppendRejectsNonParticipant(t *testing.T) {
	_, _, _, store := newStoreFixture()

	_, err := store.Append(context.Background(), "conv-1", "mallory", "hi")
	require.Error(t, err)
	var authzErr *AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	assert.Equal(t, "mallory", authzErr.UserID)
}

func TestAppendAssignsServerIDAndTimestamp(t *testing.T) {
	_, _, _, store := newStoreFixture()

	msg, err := store.Append(context.Background(), "conv-1", "alice", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.IsEcho())
	assert.False(t, msg.CreatedAt.IsZero())
}

func TestAppendBumpsConversationUpdatedAt(t *testing.T) {
	cs, _, _, store := newStoreFixture()

	msg, err := store.Append(context.Background(), "conv-1", "alice", "hello")
	require.NoError(t, err)

	cs.mu.Lock()
	updatedAt := cs.conversations["conv-1"].UpdatedAt
	cs.mu.Unlock()
	assert.Equal(t, msg.CreatedAt, updatedAt)
}

func TestAppendPublishesInsertEvent(t *testing.T) {
	_, _, pub, store := newStoreFixture()

	msg, err := store.Append(context.Background(), "conv-1", "alice", "hello")
	require.NoError(t, err)
	require.Len(t, pub.published, 1)
	assert.Equal(t, msg.ID, pub.published[0].ID)
}

func TestAppendWrapsInsertFailure(t *testing.T) {
	_, mr, pub, store := newStoreFixture()
	mr.insert = errors.New("disk full")

	_, err := store.Append(context.Background(), "conv-1", "alice", "hello")
	require.Error(t, err)
	var storeErr *StoreError
	assert.ErrorAs(t, err, &storeErr)
	assert.Empty(t, pub.published, "a failed insert must not be published")
}

func TestLoadHistoryEmptyConversation(t *testing.T) {
	_, _, _, store := newStoreFixture()

	msgs, err := store.LoadHistory(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestLoadHistoryOrdersByCreationTime(t *testing.T) {
	_, mr, _, store := newStoreFixture()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Seeded out of insertion order; timestamps decide.
	mr.seed("conv-1",
		models.Message{ID: "m-b", ConversationID: "conv-1", SenderID: "bob", Content: "second", CreatedAt: base.Add(2 * time.Second)},
		models.Message{ID: "m-a", ConversationID: "conv-1", SenderID: "alice", Content: "first", CreatedAt: base.Add(1 * time.Second)},
		models.Message{ID: "m-c", ConversationID: "conv-1", SenderID: "alice", Content: "third", CreatedAt: base.Add(3 * time.Second)},
	)

	msgs, err := store.LoadHistory(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
}
