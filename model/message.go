package model

import (
	"time"

	"gorm.io/datatypes"

	"memchat/chat"
)

// Message is one stored turn. Rows of a conversation are read back in insert
// order, which is the conversation order.
type Message struct {
	ID             uint                                     `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID      string                                   `gorm:"type:varchar(64);index" json:"id"`
	ConversationID string                                   `gorm:"type:varchar(64);not null;index:idx_conversation_id_id" json:"-"`
	Role           string                                   `gorm:"type:varchar(16)" json:"role"`
	Content        string                                   `gorm:"type:mediumtext" json:"content"`
	Attachments    datatypes.JSONSlice[chat.FileAttachment] `gorm:"type:json" json:"attachments,omitempty"`
	Model          string                                   `gorm:"type:varchar(64)" json:"model,omitempty"`
	Timestamp      time.Time                                `json:"timestamp"`
	CreatedAt      time.Time                                `json:"-"`
}

// NewMessage builds the row for m inside the given conversation.
func NewMessage(conversationID string, m chat.Message) Message {
	row := Message{
		MessageID:      m.ID,
		ConversationID: conversationID,
		Role:           string(m.Role),
		Content:        m.Content,
		Model:          m.Model,
		Timestamp:      m.Timestamp,
	}
	if len(m.Attachments) > 0 {
		row.Attachments = datatypes.NewJSONSlice(m.Attachments)
	}
	return row
}

func (r Message) ToChat() chat.Message {
	return chat.Message{
		ID:          r.MessageID,
		Role:        chat.Role(r.Role),
		Content:     r.Content,
		Timestamp:   r.Timestamp,
		Attachments: []chat.FileAttachment(r.Attachments),
		Model:       r.Model,
	}
}

func ToChatMessages(rows []Message) []chat.Message {
	out := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToChat())
	}
	return out
}
