package usecase

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	draftdomain "triage-backend/internal/draft/domain"
	"triage-backend/pkg/config"
	"triage-backend/pkg/textutil"
)

const (
	truncatedMarker  = "\n\n[...truncated for context size...]"
	truncateBodyTo   = 1000
	maxTopicsReduced = 3
	collapsedSnippet = 300
)

// ContextBudgeter keeps context bundles inside the model's token budget by
// degrading them progressively. Each step only removes content; running the
// same bundle through twice changes nothing.
type ContextBudgeter struct {
	cfg    config.BudgetConfig
	logger *zap.Logger
}

func NewContextBudgeter(cfg config.BudgetConfig, logger *zap.Logger) *ContextBudgeter {
	return &ContextBudgeter{cfg: cfg, logger: logger}
}

// EstimateTokens sizes a bundle by its JSON serialization at four
// characters per token.
func EstimateTokens(bundle *draftdomain.ContextBundle) int {
	data, err := json.Marshal(bundle)
	if err != nil {
		return 0
	}
	return textutil.EstimateTokens(string(data))
}

// FitsBudget reports whether a bundle is within the token budget.
func (b *ContextBudgeter) FitsBudget(bundle *draftdomain.ContextBundle) bool {
	return EstimateTokens(bundle) <= b.cfg.MaxContextTokens
}

// ProgressiveTruncate shrinks a bundle until it fits, applying at most three
// steps in order: truncate the body, trim the topic list, collapse the
// current message to its envelope. A bundle still over budget after the last
// step is returned as-is; the caller proceeds best-effort.
func (b *ContextBudgeter) ProgressiveTruncate(bundle draftdomain.ContextBundle) draftdomain.ContextBundle {
	if b.FitsBudget(&bundle) {
		return bundle
	}

	// Step 1: cap the current body.
	if body := bundle.Current.Body; body != "" && !strings.HasSuffix(body, truncatedMarker) {
		if len([]rune(body)) > truncateBodyTo {
			bundle.Current.Body = textutil.Truncate(body, truncateBodyTo, truncatedMarker)
		}
	}
	if b.FitsBudget(&bundle) {
		return bundle
	}

	// Step 2: trim the topic list.
	if len(bundle.CommonTopics) > maxTopicsReduced {
		bundle.CommonTopics = bundle.CommonTopics[:maxTopicsReduced]
	}
	if b.FitsBudget(&bundle) {
		return bundle
	}

	// Step 3: collapse the current message to its envelope.
	source := bundle.Current.Snippet
	if source == "" {
		source = bundle.Current.Body
	}
	bundle.Current = draftdomain.CurrentMessage{
		Subject:       bundle.Current.Subject,
		Snippet:       textutil.Snippet(source, collapsedSnippet),
		FromAddress:   bundle.Current.FromAddress,
		PriorityScore: bundle.Current.PriorityScore,
	}

	if !b.FitsBudget(&bundle) && b.logger != nil {
		b.logger.Warn("context bundle over budget after full degradation",
			zap.String("sender", bundle.SenderAddress),
			zap.Int("tokens", EstimateTokens(&bundle)),
			zap.Int("budget", b.cfg.MaxContextTokens))
	}
	return bundle
}
