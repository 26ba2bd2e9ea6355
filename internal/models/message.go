package models

import (
	"strings"
	"time"
)

// EchoIDPrefix namespaces client-generated temporary message ids. The
// persistence layer never issues ids with this prefix, so an optimistic
// echo can always be told apart from a server-confirmed row.
const EchoIDPrefix = "echo-"

// Message is a single immutable chat message. ID and CreatedAt are
// assigned by the store at persistence time.
type Message struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ConversationID string    `gorm:"type:varchar(36);index" json:"conversation_id"`
	SenderID       string    `gorm:"type:varchar(36);index" json:"sender_id"`
	Content        string    `gorm:"type:text" json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsEcho reports whether the message is a local optimistic echo rather
// than a server-confirmed row.
func (m *Message) IsEcho() bool {
	return strings.HasPrefix(m.ID, EchoIDPrefix)
}
