package conversations

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	DefaultTitle = "New Conversation"
)

type Conversation struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(64);not null;index:idx_conversations_user_updated,priority:1" json:"user_id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index:idx_conversations_user_updated,priority:2" json:"updated_at"`
}

type Message struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ConversationID string    `gorm:"type:varchar(36);not null;index:idx_messages_conversation_created,priority:1" json:"conversation_id"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"index:idx_messages_conversation_created,priority:2" json:"created_at"`
}

// File is one generated source file. Paths are unique per conversation.
type File struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ConversationID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_files_conversation_path,priority:1" json:"conversation_id"`
	FilePath       string    `gorm:"type:varchar(512);not null;uniqueIndex:idx_files_conversation_path,priority:2" json:"file_path"`
	FileContent    string    `gorm:"type:text;not null" json:"file_content"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (File) TableName() string { return "conversation_files" }

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

func (f *File) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
