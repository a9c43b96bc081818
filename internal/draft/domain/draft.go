package domain

import (
	"fmt"
	"time"
)

// DraftStatus is the review state of a generated draft
type DraftStatus string

const (
	DraftStatusPending  DraftStatus = "pending"
	DraftStatusApproved DraftStatus = "approved"
	DraftStatusRejected DraftStatus = "rejected"
	DraftStatusSent     DraftStatus = "sent"
)

// validTransitions encodes the monotone draft lifecycle. A draft never moves
// backward, and only approved drafts can be marked sent.
var validTransitions = map[DraftStatus][]DraftStatus{
	DraftStatusPending:  {DraftStatusApproved, DraftStatusRejected},
	DraftStatusApproved: {DraftStatusSent},
	DraftStatusRejected: {},
	DraftStatusSent:     {},
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to DraftStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned on a disallowed status change.
type InvalidTransitionError struct {
	From DraftStatus
	To   DraftStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid draft transition: %s -> %s", e.From, e.To)
}

// DraftRecord is a generated reply awaiting human review. Nothing in this
// system sends it; marking it sent only records that a human did so manually.
type DraftRecord struct {
	ID               string      `json:"id" gorm:"primaryKey"`
	MessageID        string      `json:"message_id" gorm:"index;not null"`
	SenderAddress    string      `json:"sender_address" gorm:"index"`
	DraftText        string      `json:"draft_text"`
	EditedText       string      `json:"edited_text,omitempty"`
	ModelUsed        string      `json:"model_used,omitempty"`
	PromptTokens     int         `json:"prompt_tokens" gorm:"default:0"`
	CompletionTokens int         `json:"completion_tokens" gorm:"default:0"`
	Status           DraftStatus `json:"status" gorm:"default:pending;index"`
	ApprovedBy       string      `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time  `json:"approved_at,omitempty"`
	RejectedBy       string      `json:"rejected_by,omitempty"`
	RejectedAt       *time.Time  `json:"rejected_at,omitempty"`
	RejectionReason  string      `json:"rejection_reason,omitempty"`
	SentVia          string      `json:"sent_via,omitempty"`
	SentAt           *time.Time  `json:"sent_at,omitempty"`
	FeedbackScore    int         `json:"feedback_score" gorm:"default:0"` // 1-5, 0 = unrated
	FeedbackNotes    string      `json:"feedback_notes,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// FinalText returns the edited text when present, the generated text
// otherwise.
func (d *DraftRecord) FinalText() string {
	if d.EditedText != "" {
		return d.EditedText
	}
	return d.DraftText
}

// HistoryAction names one event in a draft's audit trail
type HistoryAction string

const (
	ActionCreated  HistoryAction = "created"
	ActionApproved HistoryAction = "approved"
	ActionRejected HistoryAction = "rejected"
	ActionEdited   HistoryAction = "edited"
	ActionSent     HistoryAction = "sent"
	ActionRated    HistoryAction = "rated"
)

// DraftHistoryEntry is one append-only audit row for a draft
type DraftHistoryEntry struct {
	ID          uint          `json:"id" gorm:"primaryKey;autoIncrement"`
	DraftID     string        `json:"draft_id" gorm:"index;not null"`
	Action      HistoryAction `json:"action" gorm:"not null"`
	PerformedBy string        `json:"performed_by,omitempty"`
	PerformedAt time.Time     `json:"performed_at"`
	Notes       string        `json:"notes,omitempty"`
	Metadata    string        `json:"metadata,omitempty"` // JSON
}

// APICallLog records every external model call, successful or not. Trailing
// 1h/24h rate windows are computed from the successful rows.
type APICallLog struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Service    string    `json:"service" gorm:"index"`
	Action     string    `json:"action"`
	Success    bool      `json:"success" gorm:"index"`
	TokensUsed int       `json:"tokens_used" gorm:"default:0"`
	CostUSD    float64   `json:"cost_usd" gorm:"default:0"`
	Metadata   string    `json:"metadata,omitempty"` // JSON
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}

// DraftGenerationLog records one draft generated for a sender; the duplicate
// suppression window reads it.
type DraftGenerationLog struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID     string    `json:"message_id" gorm:"index"`
	SenderAddress string    `json:"sender_address" gorm:"index"`
	DraftID       string    `json:"draft_id"`
	GeneratedAt   time.Time `json:"generated_at" gorm:"index"`
}
