package usecase

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	draftdomain "triage-backend/internal/draft/domain"
	triagedomain "triage-backend/internal/triage/domain"
	"triage-backend/pkg/config"
	"triage-backend/pkg/textutil"
)

// SenderFilter decides whether drafting is worth an API call for a message.
// Always-draft overrides win over every skip rule.
type SenderFilter struct {
	cfg    config.FilterConfig
	logger *zap.Logger
}

func NewSenderFilter(cfg config.FilterConfig, logger *zap.Logger) *SenderFilter {
	return &SenderFilter{cfg: cfg, logger: logger}
}

// ShouldSkip reports whether to skip drafting for a message, with a
// human-readable reason either way.
func (f *SenderFilter) ShouldSkip(msg *triagedomain.Message, bundle *draftdomain.ContextBundle) (bool, string) {
	sender := strings.ToLower(msg.FromAddress)

	if f.isAlwaysDraft(sender, msg) {
		return false, "VIP sender - always draft"
	}
	if f.hasCriticalKeywords(msg) {
		return false, "Critical keywords detected - override filters"
	}

	if matchesEmailPattern(sender, f.cfg.SkipPatterns) {
		reason := skipReason(sender)
		f.logger.Info("skipping draft", zap.String("sender", sender), zap.String("reason", reason))
		return true, reason
	}
	if matchesDomain(sender, f.cfg.SkipDomains) {
		reason := "Blacklisted domain (mail service provider)"
		f.logger.Info("skipping draft", zap.String("sender", sender), zap.String("reason", reason))
		return true, reason
	}
	if bundle != nil {
		for _, rel := range f.cfg.SkipRelationshipTypes {
			if string(bundle.RelationshipType) == rel {
				reason := "Relationship type '" + rel + "' is in skip list"
				f.logger.Info("skipping draft", zap.String("sender", sender), zap.String("reason", reason))
				return true, reason
			}
		}
	}

	return false, "OK"
}

func (f *SenderFilter) isAlwaysDraft(sender string, msg *triagedomain.Message) bool {
	if matchesEmailPattern(sender, f.cfg.AlwaysDraftPatterns) {
		return true
	}
	if matchesDomain(sender, f.cfg.AlwaysDraftDomains) {
		return true
	}
	return msg.PriorityScore >= f.cfg.AlwaysDraftPriority
}

func (f *SenderFilter) hasCriticalKeywords(msg *triagedomain.Message) bool {
	if len(f.cfg.CriticalKeywords) == 0 {
		return false
	}
	body := msg.BodyText
	if body == "" {
		body = msg.Snippet
	}
	combined := strings.ToLower(msg.Subject + " " + body)
	for _, keyword := range f.cfg.CriticalKeywords {
		if strings.Contains(combined, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// matchesEmailPattern supports * wildcards: "no-reply@*" matches any
// no-reply address, "*@example.com" any address on that domain.
func matchesEmailPattern(email string, patterns []string) bool {
	for _, pattern := range patterns {
		expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(strings.ToLower(pattern)), `\*`, ".*") + "$"
		matched, err := regexp.MatchString(expr, email)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func matchesDomain(email string, domains []string) bool {
	emailDomain := textutil.ExtractDomain(email)
	if emailDomain == "" {
		return false
	}
	for _, domain := range domains {
		if emailDomain == strings.ToLower(domain) {
			return true
		}
	}
	return false
}

func skipReason(sender string) string {
	switch {
	case strings.Contains(sender, "no-reply") || strings.Contains(sender, "noreply"):
		return "No-reply email"
	case strings.Contains(sender, "newsletter"):
		return "Newsletter"
	case strings.Contains(sender, "marketing"):
		return "Marketing email"
	default:
		return "Automated email"
	}
}
