package usecase

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	draftdomain "triage-backend/internal/draft/domain"
	triagedomain "triage-backend/internal/triage/domain"
	"triage-backend/internal/triage/repository"
	"triage-backend/pkg/textutil"
)

const (
	historyCap        = 10
	historySnippetLen = 200
	currentBodyCap    = 1500
	topTopics         = 5
)

var topicWordRegex = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)

var topicStopwords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true,
	"from": true, "about": true, "into": true, "through": true,
	"during": true, "before": true, "after": true, "above": true,
	"below": true, "between": true, "under": true, "again": true,
	"further": true, "fwd": true,
}

var automatedIndicators = []string{
	"no-reply", "noreply", "donotreply", "notifications",
	"marketing", "newsletter", "updates", "alerts",
}

var vendorDomains = []string{
	"stripe.com", "paypal.com", "aws.amazon.com", "github.com",
	"klaviyo.com", "sendgrid.net", "mailchimp.com",
}

var businessKeywords = []string{
	"invoice", "payment", "contract", "proposal", "meeting",
	"project", "deadline", "budget", "team", "client",
}

var criticalKeywords = []string{"urgent", "asap", "critical", "emergency", "immediate"}
var highKeywords = []string{"important", "deadline", "expiring", "action required"}

var formalIndicators = []string{"dear", "sincerely", "regards", "respectfully", "kindly"}
var casualIndicators = []string{"hey", "hi there", "thanks!", "cheers", ":)"}

// ContextBuilder assembles the per-sender context bundle a draft is
// generated from. History is hard-capped at ten messages and never carries
// bodies; the result is budgeted before it is returned.
type ContextBuilder struct {
	messageRepo repository.MessageRepository
	profileRepo repository.SenderProfileRepository
	budgeter    *ContextBudgeter
	logger      *zap.Logger
}

func NewContextBuilder(messageRepo repository.MessageRepository, profileRepo repository.SenderProfileRepository, budgeter *ContextBudgeter, logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{
		messageRepo: messageRepo,
		profileRepo: profileRepo,
		budgeter:    budgeter,
		logger:      logger,
	}
}

// Build composes the bundle for one message. limit requests that many
// history entries but can never exceed the cap.
func (b *ContextBuilder) Build(msg *triagedomain.Message, limit int) (*draftdomain.ContextBundle, error) {
	if limit <= 0 || limit > historyCap {
		limit = historyCap
	}

	sender := strings.ToLower(msg.FromAddress)
	history, err := b.messageRepo.ListBySender(sender, limit)
	if err != nil {
		return nil, err
	}
	if len(history) > historyCap {
		history = history[:historyCap]
	}

	profile, err := b.profileRepo.GetByAddress(sender)
	if err != nil {
		return nil, err
	}

	bundle := draftdomain.ContextBundle{
		SenderAddress:    sender,
		SenderName:       msg.FromName,
		RelationshipType: DetermineRelationship(sender, history),
		CommonTopics:     extractCommonTopics(history),
		WritingStyle:     analyzeWritingStyle(history),
		UrgencyLevel:     determineUrgency(msg),
		RecentHistory:    historyEntries(history),
		Current: draftdomain.CurrentMessage{
			Subject:       msg.Subject,
			Body:          textutil.Truncate(textutil.StripHTML(msg.BodyText), currentBodyCap, "..."),
			Snippet:       msg.Snippet,
			FromAddress:   sender,
			PriorityScore: msg.PriorityScore,
		},
	}
	if profile != nil && profile.DisplayName != "" && bundle.SenderName == "" {
		bundle.SenderName = profile.DisplayName
	}

	budgeted := b.budgeter.ProgressiveTruncate(bundle)
	return &budgeted, nil
}

// historyEntries projects history to metadata only. Bodies are dropped here
// and nothing downstream reintroduces them.
func historyEntries(history []triagedomain.Message) []draftdomain.HistoryEntry {
	entries := make([]draftdomain.HistoryEntry, 0, len(history))
	for _, m := range history {
		entries = append(entries, draftdomain.HistoryEntry{
			Subject:       m.Subject,
			Snippet:       textutil.Snippet(m.Snippet, historySnippetLen),
			ReceivedAt:    m.ReceivedAt,
			PriorityScore: m.PriorityScore,
		})
	}
	return entries
}

// DetermineRelationship classifies a sender. Automated indicators win over
// vendor domains, which win over business-keyword analysis; everything else
// is personal.
func DetermineRelationship(sender string, history []triagedomain.Message) triagedomain.RelationshipType {
	lower := strings.ToLower(sender)
	for _, indicator := range automatedIndicators {
		if strings.Contains(lower, indicator) {
			return triagedomain.RelationshipAutomated
		}
	}
	for _, domain := range vendorDomains {
		if strings.Contains(lower, domain) {
			return triagedomain.RelationshipVendor
		}
	}
	if len(history) > 0 {
		var subjects []string
		for _, m := range history {
			subjects = append(subjects, strings.ToLower(m.Subject))
		}
		combined := strings.Join(subjects, " ")
		hits := 0
		for _, keyword := range businessKeywords {
			if strings.Contains(combined, keyword) {
				hits++
			}
		}
		if hits >= 3 {
			return triagedomain.RelationshipBusiness
		}
	}
	return triagedomain.RelationshipPersonal
}

// extractCommonTopics returns the five most frequent non-stopword subject
// tokens of at least three letters.
func extractCommonTopics(history []triagedomain.Message) []string {
	if len(history) == 0 {
		return nil
	}
	counts := make(map[string]int)
	order := make(map[string]int)
	next := 0
	for _, m := range history {
		for _, word := range topicWordRegex.FindAllString(strings.ToLower(m.Subject), -1) {
			if topicStopwords[word] || len(word) < 3 {
				continue
			}
			if _, seen := counts[word]; !seen {
				order[word] = next
				next++
			}
			counts[word]++
		}
	}
	words := make([]string, 0, len(counts))
	for word := range counts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return order[words[i]] < order[words[j]]
	})
	if len(words) > topTopics {
		words = words[:topTopics]
	}
	return words
}

// analyzeWritingStyle samples up to five recent bodies and scores formal
// against casual markers, falling back to sentence length.
func analyzeWritingStyle(history []triagedomain.Message) draftdomain.WritingStyle {
	var bodies []string
	for _, m := range history {
		if m.BodyText != "" {
			bodies = append(bodies, m.BodyText)
		}
		if len(bodies) == 5 {
			break
		}
	}
	if len(bodies) == 0 {
		return draftdomain.StyleProfessional
	}

	combined := strings.ToLower(strings.Join(bodies, " "))
	formalCount := 0
	for _, word := range formalIndicators {
		if strings.Contains(combined, word) {
			formalCount++
		}
	}
	casualCount := 0
	for _, word := range casualIndicators {
		if strings.Contains(combined, word) {
			casualCount++
		}
	}
	if formalCount > casualCount {
		return draftdomain.StyleFormal
	}
	if casualCount > formalCount {
		return draftdomain.StyleCasual
	}

	sentences := strings.Split(combined, ".")
	totalWords := 0
	for _, s := range sentences {
		totalWords += len(strings.Fields(s))
	}
	avg := float64(totalWords) / float64(max(len(sentences), 1))
	if avg < 15 {
		return draftdomain.StyleConcise
	}
	return draftdomain.StyleProfessional
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// determineUrgency grades the current message from its priority score,
// escalated by repeated urgency keywords.
func determineUrgency(msg *triagedomain.Message) draftdomain.UrgencyLevel {
	combined := strings.ToLower(msg.Subject + " " + msg.BodyText)

	criticalCount := 0
	for _, keyword := range criticalKeywords {
		if strings.Contains(combined, keyword) {
			criticalCount++
		}
	}
	highCount := 0
	for _, keyword := range highKeywords {
		if strings.Contains(combined, keyword) {
			highCount++
		}
	}

	switch {
	case msg.PriorityScore >= 90 || criticalCount >= 2:
		return draftdomain.UrgencyCritical
	case msg.PriorityScore >= 80 || highCount >= 2:
		return draftdomain.UrgencyHigh
	case msg.PriorityScore >= 60:
		return draftdomain.UrgencyNormal
	default:
		return draftdomain.UrgencyLow
	}
}
