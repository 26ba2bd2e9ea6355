package chat

import (
	"context"
	"time"

	"spacechat/internal/models"
)

// ConversationStore is the persistence surface the resolver and message
// store need. *storage.ConversationRepository satisfies it.
type ConversationStore interface {
	ConversationsForUser(ctx context.Context, userID string) ([]models.ConversationRef, error)
	Create(ctx context.Context, scopeID *string) (*models.Conversation, error)
	AddParticipant(ctx context.Context, conversationID, userID string) error
	ParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	Touch(ctx context.Context, conversationID string, at time.Time) error
}

// ConversationResolver finds or creates the canonical conversation for a
// pair of users and a scope. Resolution is idempotent; concurrent calls
// for the same pair may race on creation, which the participant insert
// tolerates.
type ConversationResolver struct {
	store ConversationStore
}

// NewConversationResolver creates a new ConversationResolver
func NewConversationResolver(store ConversationStore) *ConversationResolver {
	return &ConversationResolver{store: store}
}

// Resolve returns the id of the conversation between userA and userB for
// the given scope, creating it if none exists. The pair is
// order-independent; a nil scope matches only conversations without one.
func (r *ConversationResolver) Resolve(ctx context.Context, userA, userB string, scopeID *string) (string, error) {
	if userA == "" || userB == "" {
		return "", &IdentityError{Reason: "participant id is empty"}
	}
	if userA == userB {
		return "", &IdentityError{Reason: "conversation requires two distinct users"}
	}

	aRefs, err := r.store.ConversationsForUser(ctx, userA)
	if err != nil {
		return "", &StoreError{Op: "find conversations", Err: err}
	}
	bRefs, err := r.store.ConversationsForUser(ctx, userB)
	if err != nil {
		return "", &StoreError{Op: "find conversations", Err: err}
	}

	shared := make(map[string]struct{}, len(bRefs))
	for _, ref := range bRefs {
		shared[ref.ID] = struct{}{}
	}
	for _, ref := range aRefs {
		if _, ok := shared[ref.ID]; ok && ref.HasScope(scopeID) {
			return ref.ID, nil
		}
	}

	conv, err := r.store.Create(ctx, scopeID)
	if err != nil {
		return "", &StoreError{Op: "create conversation", Err: err}
	}
	if err := r.store.AddParticipant(ctx, conv.ID, userA); err != nil {
		return "", &StoreError{Op: "add participant", Err: err}
	}
	if err := r.store.AddParticipant(ctx, conv.ID, userB); err != nil {
		return "", &StoreError{Op: "add participant", Err: err}
	}
	return conv.ID, nil
}
