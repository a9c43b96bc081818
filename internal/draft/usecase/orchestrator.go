package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"triage-backend/internal/draft/repository"
	triagedomain "triage-backend/internal/triage/domain"
	"triage-backend/pkg/config"
)

// CandidateReport counts what happened to one run's draft candidates.
type CandidateReport struct {
	Candidates    int      `json:"candidates"`
	DraftsCreated int      `json:"drafts_created"`
	Filtered      int      `json:"filtered"`
	RateLimited   int      `json:"rate_limited"`
	Failed        int      `json:"failed"`
	Errors        []string `json:"errors,omitempty"`
}

// Orchestrator runs the drafting stage for one pipeline run: context build,
// sender filter, rate limits, generation, and bookkeeping. A failing
// candidate never aborts the run.
type Orchestrator struct {
	builder   *ContextBuilder
	filter    *SenderFilter
	generator *Generator
	drafts    repository.DraftRepository
	callLog   repository.CallLogRepository
	rateCfg   config.RateLimitConfig
	logger    *zap.Logger
}

func NewOrchestrator(
	builder *ContextBuilder,
	filter *SenderFilter,
	generator *Generator,
	drafts repository.DraftRepository,
	callLog repository.CallLogRepository,
	rateCfg config.RateLimitConfig,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		builder:   builder,
		filter:    filter,
		generator: generator,
		drafts:    drafts,
		callLog:   callLog,
		rateCfg:   rateCfg,
		logger:    logger,
	}
}

// NewRunLimiter builds a fresh limiter for one run.
func (o *Orchestrator) NewRunLimiter() *RunLimiter {
	return NewRunLimiter(o.rateCfg, o.callLog, o.logger)
}

// ProcessCandidates drafts replies for the given candidates under the
// run-scoped limiter.
func (o *Orchestrator) ProcessCandidates(ctx context.Context, candidates []triagedomain.Message, limiter *RunLimiter) CandidateReport {
	report := CandidateReport{Candidates: len(candidates)}

	for i := range candidates {
		msg := &candidates[i]

		exists, err := o.drafts.ExistsForMessage(msg.ID)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", msg.ID, err))
			continue
		}
		if exists {
			continue
		}

		bundle, err := o.builder.Build(msg, 0)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: context build: %v", msg.ID, err))
			continue
		}

		if skip, reason := o.filter.ShouldSkip(msg, bundle); skip {
			report.Filtered++
			o.logger.Debug("candidate filtered",
				zap.String("message_id", msg.ID),
				zap.String("reason", reason))
			continue
		}

		allowed, reason, err := limiter.CanGenerate(msg.FromAddress)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: rate check: %v", msg.ID, err))
			continue
		}
		if !allowed {
			report.RateLimited++
			o.logger.Info("candidate rate limited",
				zap.String("message_id", msg.ID),
				zap.String("reason", reason))
			continue
		}

		limiter.EnforceMinDelay()

		record, err := o.generator.Generate(ctx, msg, bundle)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: generate: %v", msg.ID, err))
			if recErr := limiter.RecordCall("ai", "generate_draft", false, 0, 0, map[string]interface{}{
				"message_id": msg.ID,
			}); recErr != nil {
				o.logger.Warn("failed to record call", zap.Error(recErr))
			}
			continue
		}

		if err := limiter.RecordCall("ai", "generate_draft", true, TokensUsed(record), 0, map[string]interface{}{
			"message_id": msg.ID,
			"draft_id":   record.ID,
		}); err != nil {
			o.logger.Warn("failed to record call", zap.Error(err))
		}
		if err := limiter.RecordDraftGenerated(msg.ID, msg.FromAddress, record.ID); err != nil {
			o.logger.Warn("failed to record generation", zap.Error(err))
		}
		report.DraftsCreated++
	}

	return report
}
