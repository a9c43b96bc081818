package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	draftdomain "triage-backend/internal/draft/domain"
	triagedomain "triage-backend/internal/triage/domain"
	"triage-backend/pkg/config"
)

func testFilter() *SenderFilter {
	return NewSenderFilter(config.FilterConfig{
		SkipPatterns:          []string{"no-reply@*", "noreply@*", "*@marketing.example.com"},
		SkipDomains:           []string{"mailchimp.com", "sendgrid.net"},
		SkipRelationshipTypes: []string{"automated", "newsletter"},
		AlwaysDraftPatterns:   []string{"ceo@company.com"},
		AlwaysDraftDomains:    []string{"bigclient.com"},
		AlwaysDraftPriority:   90,
		CriticalKeywords:      []string{"urgent", "critical", "emergency"},
	}, zap.NewNop())
}

func TestShouldSkipPatterns(t *testing.T) {
	f := testFilter()

	skip, reason := f.ShouldSkip(&triagedomain.Message{FromAddress: "no-reply@service.com"}, nil)
	assert.True(t, skip)
	assert.Equal(t, "No-reply email", reason)

	skip, reason = f.ShouldSkip(&triagedomain.Message{FromAddress: "blast@marketing.example.com"}, nil)
	assert.True(t, skip)
	assert.Equal(t, "Marketing email", reason)
}

func TestShouldSkipBlacklistedDomain(t *testing.T) {
	f := testFilter()

	skip, reason := f.ShouldSkip(&triagedomain.Message{FromAddress: "campaign@mailchimp.com"}, nil)
	assert.True(t, skip)
	assert.Equal(t, "Blacklisted domain (mail service provider)", reason)
}

func TestShouldSkipRelationshipTypes(t *testing.T) {
	f := testFilter()
	bundle := &draftdomain.ContextBundle{RelationshipType: triagedomain.RelationshipAutomated}

	skip, reason := f.ShouldSkip(&triagedomain.Message{FromAddress: "robot@factory.com"}, bundle)
	assert.True(t, skip)
	assert.Equal(t, "Relationship type 'automated' is in skip list", reason)

	bundle.RelationshipType = triagedomain.RelationshipPersonal
	skip, reason = f.ShouldSkip(&triagedomain.Message{FromAddress: "robot@factory.com"}, bundle)
	assert.False(t, skip)
	assert.Equal(t, "OK", reason)
}

func TestAlwaysDraftOverridesSkipRules(t *testing.T) {
	f := testFilter()

	// a VIP pattern beats a relationship skip
	bundle := &draftdomain.ContextBundle{RelationshipType: triagedomain.RelationshipAutomated}
	skip, reason := f.ShouldSkip(&triagedomain.Message{FromAddress: "ceo@company.com"}, bundle)
	assert.False(t, skip)
	assert.Equal(t, "VIP sender - always draft", reason)

	// a VIP domain beats a skip pattern
	skip, reason = f.ShouldSkip(&triagedomain.Message{FromAddress: "no-reply@bigclient.com"}, nil)
	assert.False(t, skip)
	assert.Equal(t, "VIP sender - always draft", reason)

	// so does a priority at or above the always-draft bar
	skip, reason = f.ShouldSkip(&triagedomain.Message{FromAddress: "noreply@service.com", PriorityScore: 95}, nil)
	assert.False(t, skip)
	assert.Equal(t, "VIP sender - always draft", reason)
}

func TestCriticalKeywordsOverrideFilters(t *testing.T) {
	f := testFilter()

	skip, reason := f.ShouldSkip(&triagedomain.Message{
		FromAddress: "no-reply@monitoring.com",
		Subject:     "CRITICAL: production database down",
	}, nil)
	assert.False(t, skip)
	assert.Equal(t, "Critical keywords detected - override filters", reason)

	// keyword in the snippet counts when the body is empty
	skip, _ = f.ShouldSkip(&triagedomain.Message{
		FromAddress: "no-reply@monitoring.com",
		Subject:     "alert",
		Snippet:     "urgent action needed on the cluster",
	}, nil)
	assert.False(t, skip)
}

func TestShouldSkipPassesNormalSenders(t *testing.T) {
	f := testFilter()

	skip, reason := f.ShouldSkip(&triagedomain.Message{FromAddress: "colleague@partner.org", Subject: "notes"}, nil)
	assert.False(t, skip)
	assert.Equal(t, "OK", reason)
}
