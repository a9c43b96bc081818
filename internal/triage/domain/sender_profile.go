package domain

import "time"

// RelationshipType classifies a sender from observed history
type RelationshipType string

const (
	RelationshipBusiness  RelationshipType = "business"
	RelationshipPersonal  RelationshipType = "personal"
	RelationshipVendor    RelationshipType = "vendor"
	RelationshipAutomated RelationshipType = "automated"
	RelationshipUnknown   RelationshipType = "unknown"
)

// SenderProfile is the incrementally maintained view of one sender
type SenderProfile struct {
	Address               string           `json:"address" gorm:"primaryKey"`
	DisplayName           string           `json:"display_name,omitempty"`
	TotalMessagesReceived int              `json:"total_messages_received" gorm:"default:0"`
	FirstContactAt        time.Time        `json:"first_contact_at"`
	LastContactAt         time.Time        `json:"last_contact_at"`
	AvgPriorityScore      float64          `json:"avg_priority_score" gorm:"default:0"`
	RelationshipType      RelationshipType `json:"relationship_type" gorm:"default:unknown"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}
