package chat

import (
	"context"
	"time"

	"spacechat/internal/models"
)

// Identity supplies the stable id of the active caller.
type Identity interface {
	CurrentUserID() (string, error)
}

// InsertStream is the push channel: subscribing yields asynchronous
// insert events for one conversation until the returned unsubscribe
// function is called. onDrop fires if the transport evicts the
// subscriber. Events may be redelivered; consumers deduplicate by id.
type InsertStream interface {
	SubscribeInserts(conversationID string, onEvent func(models.Message), onDrop func()) (func(), error)
}

// Service ties the resolver, message store and push channel together
// behind the single entry point the UI layer uses.
type Service struct {
	resolver        *ConversationResolver
	store           *MessageStore
	stream          InsertStream
	reconcileWindow time.Duration
	eventBuffer     int
}

// NewService creates a new chat Service.
func NewService(conversations ConversationStore, messages MessageRepo, stream InsertStream, publisher InsertPublisher, reconcileWindow time.Duration, eventBuffer int) *Service {
	if eventBuffer <= 0 {
		eventBuffer = 64
	}
	return &Service{
		resolver:        NewConversationResolver(conversations),
		store:           NewMessageStore(conversations, messages, publisher),
		stream:          stream,
		reconcileWindow: reconcileWindow,
		eventBuffer:     eventBuffer,
	}
}

// Resolver exposes the conversation resolver.
func (s *Service) Resolver() *ConversationResolver {
	return s.resolver
}

// Store exposes the message store.
func (s *Service) Store() *MessageStore {
	return s.store
}

// History returns the ordered message history of a conversation the
// caller participates in.
func (s *Service) History(ctx context.Context, caller Identity, conversationID string) ([]models.Message, error) {
	callerID, err := caller.CurrentUserID()
	if err != nil {
		return nil, err
	}
	participants, err := s.store.conversations.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return nil, &StoreError{Op: "load participants", Err: err}
	}
	if !contains(participants, callerID) {
		return nil, &AuthorizationError{UserID: callerID, ConversationID: conversationID}
	}
	return s.store.LoadHistory(ctx, conversationID)
}

// OpenConversation resolves the conversation between the caller and
// otherUserID for the given scope, loads its history, subscribes to
// insert events and returns a live view. A partially set up
// subscription is unwound if a later step fails, so an aborted open
// never leaks a dangling subscription.
func (s *Service) OpenConversation(ctx context.Context, caller Identity, otherUserID string, scopeID *string) (*ConversationView, error) {
	callerID, err := caller.CurrentUserID()
	if err != nil {
		return nil, err
	}

	conversationID, err := s.resolver.Resolve(ctx, callerID, otherUserID, scopeID)
	if err != nil {
		return nil, err
	}

	view := &ConversationView{
		conversationID:  conversationID,
		userID:          callerID,
		store:           s.store,
		reconcileWindow: s.reconcileWindow,
		state:           StateLoading,
		history:         []models.Message{},
		events:          make(chan models.Message, s.eventBuffer),
	}

	// Subscribe before loading history so no insert between the two
	// steps is lost; handleInsert deduplicates the overlap by id.
	unsubscribe, err := s.stream.SubscribeInserts(conversationID, view.handleInsert, view.handleDrop)
	if err != nil {
		view.mu.Lock()
		view.state = StateErrored
		view.mu.Unlock()
		return nil, &TransportError{Op: "subscribe", Err: err}
	}

	history, err := s.store.LoadHistory(ctx, conversationID)
	if err != nil {
		unsubscribe()
		view.mu.Lock()
		view.state = StateErrored
		view.mu.Unlock()
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		unsubscribe()
		view.mu.Lock()
		view.state = StateErrored
		view.mu.Unlock()
		return nil, err
	}

	view.mu.Lock()
	for _, msg := range history {
		// Quietly merged: history is delivered to callers via Messages,
		// not the live event feed.
		view.insertSortedLocked(msg)
	}
	view.unsubscribe = unsubscribe
	view.state = StateLive
	view.mu.Unlock()

	return view, nil
}
