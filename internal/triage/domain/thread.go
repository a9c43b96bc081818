package domain

import "time"

// Thread aggregates the messages sharing one derived thread id
type Thread struct {
	ThreadID       string    `json:"thread_id" gorm:"primaryKey"`
	Subject        string    `json:"subject"`
	EmailCount     int       `json:"email_count" gorm:"default:0"`
	FirstMessageAt time.Time `json:"first_message_at"`
	LastMessageAt  time.Time `json:"last_message_at"`
	IsUnread       bool      `json:"is_unread" gorm:"default:false"`
	MaxPriority    int       `json:"max_priority" gorm:"default:0"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ParticipantRole distinguishes how an address appeared on a thread
type ParticipantRole string

const (
	RoleSender    ParticipantRole = "sender"
	RoleRecipient ParticipantRole = "recipient"
	RoleCc        ParticipantRole = "cc"
)

// ThreadParticipant tracks one address on one thread
type ThreadParticipant struct {
	ID           uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	ThreadID     string          `json:"thread_id" gorm:"uniqueIndex:idx_thread_address;not null"`
	Address      string          `json:"address" gorm:"uniqueIndex:idx_thread_address;not null"`
	Name         string          `json:"name,omitempty"`
	Role         ParticipantRole `json:"role"`
	MessageCount int             `json:"message_count" gorm:"default:0"`
	FirstSeen    time.Time       `json:"first_seen"`
	LastSeen     time.Time       `json:"last_seen"`
}
