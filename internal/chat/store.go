package chat

import (
	"context"
	"strings"

	"spacechat/internal/logger"
	"spacechat/internal/models"
)

// MessageRepo is the persistence surface for messages.
// *storage.MessageRepository satisfies it.
type MessageRepo interface {
	Insert(ctx context.Context, conversationID, senderID, content string) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
}

// InsertPublisher receives every persisted message for fan-out on the
// push channel.
type InsertPublisher interface {
	PublishInsert(msg models.Message)
}

// MessageStore validates and persists messages and loads conversation
// history.
type MessageStore struct {
	conversations ConversationStore
	messages      MessageRepo
	publisher     InsertPublisher
}

// NewMessageStore creates a new MessageStore. publisher may be nil when
// no push channel is attached.
func NewMessageStore(conversations ConversationStore, messages MessageRepo, publisher InsertPublisher) *MessageStore {
	return &MessageStore{
		conversations: conversations,
		messages:      messages,
		publisher:     publisher,
	}
}

// Append persists a message from senderID in the conversation and bumps
// the conversation's updated_at. Content is trimmed before storage;
// empty content and non-participant senders are rejected.
func (s *MessageStore) Append(ctx context.Context, conversationID, senderID, content string) (*models.Message, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, &ValidationError{Reason: "content is empty"}
	}

	participants, err := s.conversations.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return nil, &StoreError{Op: "load participants", Err: err}
	}
	if !contains(participants, senderID) {
		return nil, &AuthorizationError{UserID: senderID, ConversationID: conversationID}
	}

	msg, err := s.messages.Insert(ctx, conversationID, senderID, trimmed)
	if err != nil {
		return nil, &StoreError{Op: "insert message", Err: err}
	}

	// The message is persisted; a failed bump only stales the
	// conversation ordering in list views.
	if err := s.conversations.Touch(ctx, conversationID, msg.CreatedAt); err != nil {
		logger.Warningf("failed to bump conversation %s updated_at: %v", conversationID, err)
	}

	if s.publisher != nil {
		s.publisher.PublishInsert(*msg)
	}
	return msg, nil
}

// LoadHistory returns the conversation's messages ordered by creation
// time ascending. A conversation with no messages yields an empty slice.
func (s *MessageStore) LoadHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, &StoreError{Op: "list messages", Err: err}
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
