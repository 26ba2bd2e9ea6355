package storage

import (
	"context"
	"time"

	"spacechat/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository handles database operations for conversations
// and their participant rows.
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// MigrateTable ensures the conversation and participant tables exist
func (r *ConversationRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.Conversation{}, &models.Participant{})
}

// ConversationsForUser returns references to every conversation the user
// participates in.
func (r *ConversationRepository) ConversationsForUser(ctx context.Context, userID string) ([]models.ConversationRef, error) {
	var refs []models.ConversationRef
	result := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Select("conversations.id, conversations.scope_id").
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("participants.user_id = ?", userID).
		Scan(&refs)
	if result.Error != nil {
		return nil, result.Error
	}
	return refs, nil
}

// Create inserts a new conversation with a generated id.
func (r *ConversationRepository) Create(ctx context.Context, scopeID *string) (*models.Conversation, error) {
	now := time.Now()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		ScopeID:   scopeID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

// AddParticipant inserts a participant row. Inserting a row that already
// exists is not an error; concurrent resolvers race on this insert.
func (r *ConversationRepository) AddParticipant(ctx context.Context, conversationID, userID string) error {
	p := &models.Participant{
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p).Error
}

// ParticipantIDs returns the user ids of a conversation's participants.
func (r *ConversationRepository) ParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	var ids []string
	result := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("conversation_id = ?", conversationID).
		Order("joined_at").
		Pluck("user_id", &ids)
	if result.Error != nil {
		return nil, result.Error
	}
	return ids, nil
}

// Touch bumps the conversation's updated_at timestamp.
func (r *ConversationRepository) Touch(ctx context.Context, conversationID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("updated_at", at).Error
}

// GetConversation retrieves a conversation by id, returning nil when the
// record does not exist.
func (r *ConversationRepository) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	result := r.db.WithContext(ctx).Where("id = ?", conversationID).First(&conv)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &conv, nil
}
