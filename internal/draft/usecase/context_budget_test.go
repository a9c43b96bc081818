package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	draftdomain "triage-backend/internal/draft/domain"
	"triage-backend/pkg/config"
)

func budgeterWith(maxTokens int) *ContextBudgeter {
	return NewContextBudgeter(config.BudgetConfig{MaxContextTokens: maxTokens}, zap.NewNop())
}

func bigBundle() draftdomain.ContextBundle {
	return draftdomain.ContextBundle{
		SenderAddress:    "alice@example.com",
		RelationshipType: "business",
		WritingStyle:     draftdomain.StyleProfessional,
		UrgencyLevel:     draftdomain.UrgencyNormal,
		CommonTopics:     []string{"roadmap", "budget", "hiring", "launch", "metrics"},
		RecentHistory: []draftdomain.HistoryEntry{
			{Subject: "roadmap review", Snippet: strings.Repeat("notes ", 30)},
			{Subject: "budget numbers", Snippet: strings.Repeat("figures ", 30)},
		},
		Current: draftdomain.CurrentMessage{
			Subject:       "launch date",
			Body:          strings.Repeat("paragraph of body text ", 200),
			FromAddress:   "alice@example.com",
			PriorityScore: 85,
		},
	}
}

func TestProgressiveTruncateNoOpWithinBudget(t *testing.T) {
	b := budgeterWith(100000)
	bundle := bigBundle()

	got := b.ProgressiveTruncate(bundle)
	assert.Equal(t, bundle, got)
}

func TestProgressiveTruncateCapsBodyFirst(t *testing.T) {
	bundle := bigBundle()
	// budget that the body cap alone satisfies
	full := EstimateTokens(&bundle)
	capped := bundle
	capped.Current.Body = bundle.Current.Body[:1000] + "\n\n[...truncated for context size...]"
	target := EstimateTokens(&capped) + 5
	require.Less(t, target, full)

	got := budgeterWith(target).ProgressiveTruncate(bundle)
	assert.True(t, strings.HasSuffix(got.Current.Body, "[...truncated for context size...]"))
	// later steps were not needed
	assert.Len(t, got.CommonTopics, 5)
	assert.Len(t, got.RecentHistory, 2)
}

func TestProgressiveTruncateTrimsTopicsSecond(t *testing.T) {
	bundle := bigBundle()
	capped := bundle
	capped.Current.Body = bundle.Current.Body[:1000] + "\n\n[...truncated for context size...]"
	capped.CommonTopics = capped.CommonTopics[:3]
	target := EstimateTokens(&capped) + 2

	got := budgeterWith(target).ProgressiveTruncate(bundle)
	assert.Equal(t, []string{"roadmap", "budget", "hiring"}, got.CommonTopics)
	assert.NotEmpty(t, got.Current.Body)
}

func TestProgressiveTruncateCollapsesCurrentLast(t *testing.T) {
	bundle := bigBundle()

	got := budgeterWith(50).ProgressiveTruncate(bundle)
	assert.Empty(t, got.Current.Body)
	assert.NotEmpty(t, got.Current.Snippet)
	assert.LessOrEqual(t, len([]rune(got.Current.Snippet)), 300)
	assert.Equal(t, "launch date", got.Current.Subject)
	assert.Equal(t, "alice@example.com", got.Current.FromAddress)
	assert.Equal(t, 85, got.Current.PriorityScore)
	// history survives every degradation step
	assert.Len(t, got.RecentHistory, 2)
}

func TestProgressiveTruncateMonotone(t *testing.T) {
	bundle := bigBundle()
	before := EstimateTokens(&bundle)

	for _, budget := range []int{before, before / 2, before / 4, 50} {
		got := budgeterWith(budget).ProgressiveTruncate(bundle)
		assert.LessOrEqual(t, EstimateTokens(&got), before, "budget %d", budget)
	}
}

func TestProgressiveTruncateIdempotent(t *testing.T) {
	b := budgeterWith(50)
	once := b.ProgressiveTruncate(bigBundle())
	twice := b.ProgressiveTruncate(once)
	assert.Equal(t, once, twice)
}

func TestFitsBudget(t *testing.T) {
	bundle := bigBundle()
	tokens := EstimateTokens(&bundle)
	assert.True(t, budgeterWith(tokens).FitsBudget(&bundle))
	assert.False(t, budgeterWith(tokens-1).FitsBudget(&bundle))
}
