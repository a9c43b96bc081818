package domain

import (
	"fmt"
	"time"
)

// Provider identifies which message system a record came from
type Provider string

const (
	ProviderGmail    Provider = "gmail"
	ProviderOutlook  Provider = "outlook"
	ProviderIMAP     Provider = "imap"
	ProviderIMessage Provider = "imessage"
)

// PriorityCategory buckets a priority score for display and candidate selection
type PriorityCategory string

const (
	PriorityUrgent PriorityCategory = "urgent"
	PriorityNormal PriorityCategory = "normal"
	PriorityLow    PriorityCategory = "low"
)

// Category is the closed set of content categories a message can be assigned
type Category string

const (
	CategoryFinancial      Category = "financial"
	CategorySupport        Category = "support"
	CategoryPartnership    Category = "partnership"
	CategoryNewsletter     Category = "newsletter"
	CategoryActionRequired Category = "action_required"
	CategorySecurity       Category = "security"
	CategorySocial         Category = "social"
	CategoryShipping       Category = "shipping"
	CategoryCalendar       Category = "calendar"
	CategoryPersonal       Category = "personal"
	CategoryOther          Category = "other"
)

// Message is a provider-neutral email record
type Message struct {
	ID               string           `json:"id" gorm:"primaryKey"`
	Provider         Provider         `json:"provider" gorm:"index;not null"`
	AccountID        string           `json:"account_id" gorm:"index;not null"`
	MessageID        string           `json:"message_id" gorm:"index"` // Provider-native id
	ThreadID         string           `json:"thread_id,omitempty" gorm:"index"`
	Subject          string           `json:"subject"`
	FromAddress      string           `json:"from_address" gorm:"index"`
	FromName         string           `json:"from_name,omitempty"`
	ToAddresses      string           `json:"to_addresses,omitempty"`  // JSON array
	CcAddresses      string           `json:"cc_addresses,omitempty"`  // JSON array
	BccAddresses     string           `json:"bcc_addresses,omitempty"` // JSON array
	BodyText         string           `json:"body_text,omitempty"`
	Snippet          string           `json:"snippet,omitempty"`
	ReceivedAt       time.Time        `json:"received_at" gorm:"index"`
	IsUnread         bool             `json:"is_unread" gorm:"default:false"`
	IsImportant      bool             `json:"is_important" gorm:"default:false"`
	HasAttachments   bool             `json:"has_attachments" gorm:"default:false"`
	Labels           string           `json:"labels,omitempty"` // JSON array, provider order
	PriorityScore    int              `json:"priority_score" gorm:"default:50"`
	PriorityCategory PriorityCategory `json:"priority_category" gorm:"default:normal"`
	Category         Category         `json:"category" gorm:"default:other"`
	DedupFingerprint string           `json:"dedup_fingerprint" gorm:"index"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`

	// Threading hints from the raw payload; consumed during grouping,
	// not persisted.
	ProviderThreadID string `json:"-" gorm:"-"`
	InReplyTo        string `json:"-" gorm:"-"`
	References       string `json:"-" gorm:"-"`
}

// CompositeID builds the stable message key from its provenance.
func CompositeID(provider Provider, accountID, nativeID string) string {
	return fmt.Sprintf("%s_%s_%s", provider, accountID, nativeID)
}

// UnsupportedProviderError is returned when a raw payload names a provider
// the normalizer has no mapping for.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider: %s", e.Provider)
}
