package usecase

import (
	"regexp"
	"strings"

	triagedomain "triage-backend/internal/triage/domain"
)

// categoryRule scores one content category from keywords and sender patterns.
type categoryRule struct {
	category       triagedomain.Category
	keywords       []string
	senderPatterns []*regexp.Regexp
	priorityBoost  int
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile("(?i)"+expr))
	}
	return out
}

// Rule order breaks score ties: the earlier rule wins.
var categoryRules = []categoryRule{
	{
		category: triagedomain.CategoryFinancial,
		keywords: []string{
			"invoice", "payment", "receipt", "billing", "paid", "charge",
			"subscription", "renewal", "refund", "transaction", "statement",
			"balance", "amount due", "payment received", "payment failed",
		},
		senderPatterns: patterns(
			`billing@`, `payments@`, `invoice@`, `accounting@`,
			`@stripe\.com`, `@paypal\.com`, `@square\.com`, `@quickbooks\.`,
		),
		priorityBoost: 10,
	},
	{
		category: triagedomain.CategorySupport,
		keywords: []string{
			"ticket", "support", "help desk", "case number", "issue",
			"bug report", "feature request", "feedback", "assistance",
			"problem", "trouble", "resolution", "escalated",
		},
		senderPatterns: patterns(
			`support@`, `help@`, `helpdesk@`, `service@`, `care@`,
			`@zendesk\.`, `@freshdesk\.`, `@intercom\.`,
		),
		priorityBoost: 5,
	},
	{
		category: triagedomain.CategoryPartnership,
		keywords: []string{
			"partnership", "collaboration", "opportunity", "proposal",
			"joint venture", "affiliate", "sponsor", "collaborate",
			"business development", "strategic", "alliance",
		},
		senderPatterns: patterns(`partnerships@`, `bizdev@`, `bd@`),
		priorityBoost:  15,
	},
	{
		category: triagedomain.CategoryNewsletter,
		keywords: []string{
			"unsubscribe", "newsletter", "digest", "weekly update",
			"monthly update", "roundup", "bulletin", "subscribe",
			"email preferences", "opt out", "mailing list",
		},
		senderPatterns: patterns(
			`newsletter@`, `news@`, `updates@`, `digest@`,
			`@mailchimp\.`, `@substack\.`, `@convertkit\.`,
			`noreply@`, `no-reply@`, `donotreply@`,
		),
		priorityBoost: -20,
	},
	{
		category: triagedomain.CategoryActionRequired,
		keywords: []string{
			"action required", "urgent", "deadline", "asap", "immediate",
			"time sensitive", "expire", "expiring", "last chance",
			"final notice", "respond by", "due date", "overdue",
		},
		priorityBoost: 25,
	},
	{
		category: triagedomain.CategorySecurity,
		keywords: []string{
			"security alert", "password", "verification", "suspicious",
			"login attempt", "two-factor", "2fa", "authentication",
			"account activity", "unusual activity", "compromised",
			"reset your password", "verify your identity",
		},
		senderPatterns: patterns(`security@`, `noreply@.*security`, `alerts@`),
		priorityBoost:  20,
	},
	{
		category: triagedomain.CategorySocial,
		keywords: []string{
			"liked your", "commented on", "mentioned you", "followed you",
			"new follower", "tagged you", "shared your", "replied to",
			"new connection", "invitation to connect", "endorsed",
		},
		senderPatterns: patterns(
			`@linkedin\.`, `@twitter\.`, `@facebook\.`, `@instagram\.`,
			`notifications@`, `notify@`,
		),
		priorityBoost: -15,
	},
	{
		category: triagedomain.CategoryShipping,
		keywords: []string{
			"order confirmation", "shipped", "delivery", "tracking",
			"out for delivery", "package", "shipment", "carrier",
			"estimated arrival", "order status", "dispatched",
		},
		senderPatterns: patterns(
			`orders@`, `shipping@`, `@ups\.`, `@fedex\.`, `@usps\.`,
			`@amazon\.com`, `@shopify\.`,
		),
		priorityBoost: 5,
	},
	{
		category: triagedomain.CategoryCalendar,
		keywords: []string{
			"meeting", "calendar", "invite", "rsvp", "scheduled",
			"appointment", "event", "reminder", "agenda",
			"join meeting", "zoom", "google meet", "teams meeting",
		},
		senderPatterns: patterns(`calendar@`, `@calendar\.google\.com`, `@calendly\.`),
		priorityBoost:  10,
	},
}

// Categorizer assigns a content category and a priority adjustment to a
// message. A keyword hit scores 10 (plus 5 when it also appears in the
// subject), a sender-pattern hit 15; the best-scoring category wins.
type Categorizer struct{}

func NewCategorizer() *Categorizer {
	return &Categorizer{}
}

// Categorize returns the category and the priority boost it carries.
// Messages matching no rule fall into CategoryOther with no adjustment.
func (c *Categorizer) Categorize(msg *triagedomain.Message) (triagedomain.Category, int) {
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.BodyText)
	if body == "" {
		body = strings.ToLower(msg.Snippet)
	}
	sender := strings.ToLower(msg.FromAddress)
	combined := subject + " " + body

	bestScore := 0
	best := triagedomain.CategoryOther
	bestBoost := 0

	for _, rule := range categoryRules {
		score := 0
		for _, keyword := range rule.keywords {
			if strings.Contains(combined, keyword) {
				score += 10
				if strings.Contains(subject, keyword) {
					score += 5
				}
			}
		}
		for _, pattern := range rule.senderPatterns {
			if pattern.MatchString(sender) {
				score += 15
			}
		}
		if score > bestScore {
			bestScore = score
			best = rule.category
			bestBoost = rule.priorityBoost
		}
	}

	return best, bestBoost
}
