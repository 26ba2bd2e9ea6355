package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"spacechat/internal/models"
)

type stubIdentity struct {
	id  string
	err error
}

func (s stubIdentity) CurrentUserID() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.id, nil
}

// fakeConversationStore is an in-memory ConversationStore. AddParticipant
// mirrors the duplicate-tolerant insert of the real repository.
type fakeConversationStore struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	participants  map[string][]string
	nextID        int
	findErr       error
	createErr     error
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{
		conversations: make(map[string]*models.Conversation),
		participants:  make(map[string][]string),
	}
}

func (f *fakeConversationStore) ConversationsForUser(_ context.Context, userID string) ([]models.ConversationRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var refs []models.ConversationRef
	for convID, users := range f.participants {
		for _, u := range users {
			if u == userID {
				refs = append(refs, models.ConversationRef{ID: convID, ScopeID: f.conversations[convID].ScopeID})
				break
			}
		}
	}
	return refs, nil
}

func (f *fakeConversationStore) Create(_ context.Context, scopeID *string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	conv := &models.Conversation{
		ID:        fmt.Sprintf("conv-%d", f.nextID),
		ScopeID:   scopeID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.conversations[conv.ID] = conv
	return conv, nil
}

func (f *fakeConversationStore) AddParticipant(_ context.Context, conversationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.participants[conversationID] {
		if u == userID {
			return nil // duplicate insert is a no-op
		}
	}
	f.participants[conversationID] = append(f.participants[conversationID], userID)
	return nil
}

func (f *fakeConversationStore) ParticipantIDs(_ context.Context, conversationID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.participants[conversationID]))
	copy(out, f.participants[conversationID])
	return out, nil
}

func (f *fakeConversationStore) Touch(_ context.Context, conversationID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.conversations[conversationID]; ok {
		conv.UpdatedAt = at
	}
	return nil
}

func (f *fakeConversationStore) participantRowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, users := range f.participants {
		n += len(users)
	}
	return n
}

func (f *fakeConversationStore) addConversation(id string, scopeID *string, users ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[id] = &models.Conversation{ID: id, ScopeID: scopeID}
	f.participants[id] = append([]string{}, users...)
}

// fakeMessageRepo is an in-memory MessageRepo with hooks to stall an
// insert mid-flight, which lets tests race the push channel against the
// append response.
type fakeMessageRepo struct {
	mu       sync.Mutex
	msgs     map[string][]models.Message
	nextID   int
	now      time.Time
	insert   error
	inserted chan models.Message // receives each row as it is persisted
	release  chan struct{}       // if non-nil, Insert blocks on it before returning
	listErr  error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		msgs: make(map[string][]models.Message),
		now:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeMessageRepo) Insert(_ context.Context, conversationID, senderID, content string) (*models.Message, error) {
	f.mu.Lock()
	if f.insert != nil {
		err := f.insert
		f.mu.Unlock()
		if f.release != nil {
			<-f.release
		}
		return nil, err
	}
	f.nextID++
	f.now = f.now.Add(time.Second)
	msg := models.Message{
		ID:             fmt.Sprintf("m-%d", f.nextID),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      f.now,
	}
	f.msgs[conversationID] = append(f.msgs[conversationID], msg)
	inserted := f.inserted
	release := f.release
	f.mu.Unlock()

	if inserted != nil {
		inserted <- msg
	}
	if release != nil {
		<-release
	}
	return &msg, nil
}

func (f *fakeMessageRepo) ListByConversation(_ context.Context, conversationID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Message, len(f.msgs[conversationID]))
	copy(out, f.msgs[conversationID])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeMessageRepo) seed(conversationID string, msgs ...models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[conversationID] = append(f.msgs[conversationID], msgs...)
}

// fakeStream is an in-memory InsertStream that lets tests deliver push
// events and drop notifications by hand.
type fakeStream struct {
	mu           sync.Mutex
	subscribeErr error
	onEvent      func(models.Message)
	onDrop       func()
	subscribed   int
	unsubscribed int
}

func (f *fakeStream) SubscribeInserts(_ string, onEvent func(models.Message), onDrop func()) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.onEvent = onEvent
	f.onDrop = onDrop
	f.subscribed++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubscribed++
	}, nil
}

func (f *fakeStream) deliver(msg models.Message) {
	f.mu.Lock()
	fn := f.onEvent
	f.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (f *fakeStream) drop() {
	f.mu.Lock()
	fn := f.onDrop
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (f *fakeStream) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

func newTestService(cs *fakeConversationStore, mr *fakeMessageRepo, fs *fakeStream) *Service {
	return NewService(cs, mr, fs, nil, 30*time.Second, 16)
}
