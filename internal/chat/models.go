package chat

import "time"

type Session struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	Token     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"session_token"`
	UserID    uint64    `gorm:"index;not null" json:"user_id"`
	ShortName *string   `gorm:"type:varchar(100)" json:"session_short_name"`
	Provider  string    `gorm:"type:varchar(32);not null" json:"provider"`
	Model     string    `gorm:"type:varchar(64);not null" json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// Message is one turn of the append-only session log. ID order is turn order.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"type:varchar(64);index:idx_chat_msg_session_id,priority:1;not null" json:"session_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Sender    string    `gorm:"type:varchar(10);not null" json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

func (m Message) Role() Role { return ParseRole(m.Sender) }
