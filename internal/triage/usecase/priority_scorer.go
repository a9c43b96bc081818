package usecase

import (
	"regexp"
	"strings"
	"time"

	triagedomain "triage-backend/internal/triage/domain"
	"triage-backend/pkg/config"
	"triage-backend/pkg/textutil"
)

// PriorityScorer assigns a 0-100 priority to a message from additive
// signals. It reads nothing but the message and the injected clock.
type PriorityScorer struct {
	cfg        config.ScoringConfig
	newsletter []*regexp.Regexp
	now        func() time.Time
}

func NewPriorityScorer(cfg config.ScoringConfig) *PriorityScorer {
	var newsletter []*regexp.Regexp
	for _, pattern := range cfg.NewsletterPatterns {
		// Patterns come from config; invalid ones are skipped, not fatal.
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			continue
		}
		newsletter = append(newsletter, re)
	}
	return &PriorityScorer{cfg: cfg, newsletter: newsletter, now: time.Now}
}

// WithClock replaces the scorer's clock. Used by tests.
func (s *PriorityScorer) WithClock(now func() time.Time) *PriorityScorer {
	s.now = now
	return s
}

// Score computes the priority of a message. All signals accumulate on a
// baseline of 50; clamping to [0,100] happens exactly once, at the end.
func (s *PriorityScorer) Score(msg *triagedomain.Message) int {
	score := 50

	sender := strings.ToLower(msg.FromAddress)
	subject := strings.ToLower(msg.Subject)
	snippet := strings.ToLower(msg.Snippet)

	if s.isVIP(sender) {
		score += s.cfg.VIPBonus
	}

	text := subject + " " + snippet
	for _, keyword := range s.cfg.UrgentKeywords {
		if strings.Contains(text, strings.ToLower(keyword)) {
			score += s.cfg.KeywordBonus
			break
		}
	}

	if msg.IsImportant {
		score += s.cfg.ImportantBonus
	}
	if msg.IsUnread {
		score += s.cfg.UnreadBonus
	}
	if msg.HasAttachments {
		score += s.cfg.AttachmentBonus
	}

	age := s.now().Sub(msg.ReceivedAt)
	for _, band := range s.cfg.RecencyBands {
		if age < band.Within {
			score += band.Bonus
			break
		}
	}

	spamHits := 0
	spamText := sender + " " + subject
	for _, indicator := range s.cfg.SpamIndicators {
		if strings.Contains(spamText, strings.ToLower(indicator)) {
			spamHits++
		}
	}
	if spamHits >= 2 {
		score -= s.cfg.SpamPenalty
	}

	if age > s.cfg.StaleAfter {
		score -= s.cfg.StalePenalty
	}

	if s.matchesNewsletter(sender) || s.matchesNewsletter(subject) || s.matchesNewsletter(snippet) {
		score -= s.cfg.NewsletterPenalty
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Categorize buckets a score: >=80 urgent, >=40 normal, below that low.
func Categorize(score int) triagedomain.PriorityCategory {
	switch {
	case score >= 80:
		return triagedomain.PriorityUrgent
	case score >= 40:
		return triagedomain.PriorityNormal
	default:
		return triagedomain.PriorityLow
	}
}

func (s *PriorityScorer) matchesNewsletter(text string) bool {
	for _, re := range s.newsletter {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (s *PriorityScorer) isVIP(sender string) bool {
	for _, vip := range s.cfg.VIPSenders {
		if sender == strings.ToLower(vip) {
			return true
		}
	}
	domain := textutil.ExtractDomain(sender)
	for _, vipDomain := range s.cfg.VIPDomains {
		if domain == strings.ToLower(vipDomain) {
			return true
		}
	}
	return false
}
