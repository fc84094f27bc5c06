package messages

import "time"

type Conversation struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string  `gorm:"type:varchar(64);index;not null" json:"-"`
	BotID     *uint64 `gorm:"index" json:"bot_id,omitempty"`
	Title     string  `gorm:"type:varchar(256)" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

// Message is the durable record written once per stream at termination.
type Message struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         string `gorm:"type:varchar(64);not null;index:idx_msg_user_conv,priority:1" json:"-"`
	ConversationID uint64 `gorm:"not null;index:idx_msg_user_conv,priority:2" json:"conversation_id"`
	Content        string `gorm:"type:text;not null" json:"content"`
	IsUserAuthor   bool   `gorm:"not null" json:"is_user_author"`
	IsStreaming    bool   `gorm:"not null" json:"is_streaming"`
	IsComplete     bool   `gorm:"not null" json:"is_complete"`
	StreamID       string `gorm:"type:varchar(64);index" json:"stream_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Message) TableName() string { return "messages" }

// MessageAlternative is a reroll candidate for an assistant message.
// Created empty before the reroll stream opens, updated in place when
// the stream ends.
type MessageAlternative struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ParentMessageID uint64 `gorm:"not null;index" json:"parent_message_id"`
	ConversationID  uint64 `gorm:"not null;index" json:"conversation_id"`
	UserID          string `gorm:"type:varchar(64);index;not null" json:"-"`
	Content         string `gorm:"type:text;not null" json:"content"`
	IsStreaming     bool   `gorm:"not null" json:"is_streaming"`
	IsComplete      bool   `gorm:"not null" json:"is_complete"`
	StreamID        string `gorm:"type:varchar(64);index" json:"stream_id"`
	IsActive        bool   `gorm:"not null" json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (MessageAlternative) TableName() string { return "message_alternatives" }
