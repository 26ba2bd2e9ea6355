package models

import "time"

// Conversation is a two-party message thread, optionally scoped to the
// space listing it is about. The same pair of users gets a distinct
// conversation per listing.
type Conversation struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ScopeID   *string   `gorm:"type:varchar(36);index" json:"scope_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participant joins a user to a conversation. Each conversation has
// exactly two distinct participant rows.
type Participant struct {
	ConversationID string    `gorm:"primaryKey;type:varchar(36)" json:"conversation_id"`
	UserID         string    `gorm:"primaryKey;type:varchar(36);index" json:"user_id"`
	JoinedAt       time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// ConversationRef is the lightweight projection the resolver works with.
type ConversationRef struct {
	ID      string
	ScopeID *string
}

// HasScope reports whether the conversation reference matches the
// requested scope; two absent scopes compare equal.
func (r ConversationRef) HasScope(scopeID *string) bool {
	if r.ScopeID == nil || scopeID == nil {
		return r.ScopeID == nil && scopeID == nil
	}
	return *r.ScopeID == *scopeID
}
