package domain

import (
	"fmt"
	"strings"
	"time"

	triagedomain "triage-backend/internal/triage/domain"
)

// WritingStyle describes how a sender tends to write
type WritingStyle string

const (
	StyleFormal       WritingStyle = "formal"
	StyleCasual       WritingStyle = "casual"
	StyleConcise      WritingStyle = "concise"
	StyleProfessional WritingStyle = "professional"
)

// UrgencyLevel grades how quickly a reply is needed
type UrgencyLevel string

const (
	UrgencyCritical UrgencyLevel = "critical"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyNormal   UrgencyLevel = "normal"
	UrgencyLow      UrgencyLevel = "low"
)

// HistoryEntry is one prior message from the sender, metadata only.
// Bodies never appear here.
type HistoryEntry struct {
	Subject       string    `json:"subject"`
	Snippet       string    `json:"snippet"`
	ReceivedAt    time.Time `json:"received_at"`
	PriorityScore int       `json:"priority_score"`
}

// CurrentMessage is the message being replied to. Body is cleared and
// Snippet filled when the budgeter collapses the bundle.
type CurrentMessage struct {
	Subject       string `json:"subject"`
	Body          string `json:"body,omitempty"`
	Snippet       string `json:"snippet,omitempty"`
	FromAddress   string `json:"from_address"`
	PriorityScore int    `json:"priority_score"`
}

// ContextBundle is the ephemeral package handed to the drafting model. It is
// built per message, budgeted, and discarded.
type ContextBundle struct {
	SenderAddress    string                         `json:"sender_address"`
	SenderName       string                         `json:"sender_name,omitempty"`
	RelationshipType triagedomain.RelationshipType  `json:"relationship_type"`
	CommonTopics     []string                       `json:"common_topics,omitempty"`
	WritingStyle     WritingStyle                   `json:"writing_style"`
	UrgencyLevel     UrgencyLevel                   `json:"urgency_level"`
	RecentHistory    []HistoryEntry                 `json:"recent_history,omitempty"`
	Current          CurrentMessage                 `json:"current_message"`
}

// PromptText renders the bundle as the drafting prompt.
func (b *ContextBundle) PromptText() string {
	var sb strings.Builder

	sb.WriteString("You are drafting a reply on behalf of the mailbox owner. ")
	sb.WriteString("Write a complete, ready-to-review reply. Do not send anything.\n\n")

	name := b.SenderName
	if name == "" {
		name = b.SenderAddress
	}
	fmt.Fprintf(&sb, "Sender: %s <%s>\n", name, b.SenderAddress)
	fmt.Fprintf(&sb, "Relationship: %s\n", b.RelationshipType)
	fmt.Fprintf(&sb, "Preferred tone: %s\n", b.WritingStyle)
	fmt.Fprintf(&sb, "Urgency: %s\n", b.UrgencyLevel)
	if len(b.CommonTopics) > 0 {
		fmt.Fprintf(&sb, "Recurring topics: %s\n", strings.Join(b.CommonTopics, ", "))
	}

	if len(b.RecentHistory) > 0 {
		sb.WriteString("\nRecent messages from this sender:\n")
		for _, entry := range b.RecentHistory {
			fmt.Fprintf(&sb, "- [%s] %s: %s\n",
				entry.ReceivedAt.Format("2006-01-02"), entry.Subject, entry.Snippet)
		}
	}

	sb.WriteString("\nMessage to reply to:\n")
	fmt.Fprintf(&sb, "Subject: %s\n", b.Current.Subject)
	if b.Current.Body != "" {
		fmt.Fprintf(&sb, "Body:\n%s\n", b.Current.Body)
	} else if b.Current.Snippet != "" {
		fmt.Fprintf(&sb, "Preview:\n%s\n", b.Current.Snippet)
	}

	sb.WriteString("\nReply:")
	return sb.String()
}
