package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	draftdomain "triage-backend/internal/draft/domain"
	"triage-backend/internal/draft/repository"
	triagedomain "triage-backend/internal/triage/domain"
	"triage-backend/pkg/ai"
	"triage-backend/pkg/retry"
	"triage-backend/pkg/textutil"
)

// Generator turns a budgeted context bundle into a persisted pending draft.
// Model calls are retried on transient failures; an empty model response is
// a failure, never a draft.
type Generator struct {
	drafts   repository.DraftRepository
	model    ai.DraftService
	retryCfg retry.Config
	logger   *zap.Logger
}

func NewGenerator(drafts repository.DraftRepository, model ai.DraftService, logger *zap.Logger) *Generator {
	return &Generator{
		drafts:   drafts,
		model:    model,
		retryCfg: retry.AIConfig(),
		logger:   logger,
	}
}

// Generate calls the model with the bundle's prompt and stores the result
// as a pending draft with its "created" audit row.
func (g *Generator) Generate(ctx context.Context, msg *triagedomain.Message, bundle *draftdomain.ContextBundle) (*draftdomain.DraftRecord, error) {
	prompt := bundle.PromptText()

	var draftText string
	err := retry.Do(ctx, g.retryCfg, g.logger, func() error {
		text, err := g.model.GenerateDraft(ctx, prompt)
		if err != nil {
			return err
		}
		draftText = text
		return nil
	})
	if err != nil {
		return nil, err
	}

	record := &draftdomain.DraftRecord{
		ID:               uuid.New().String(),
		MessageID:        msg.ID,
		SenderAddress:    strings.ToLower(msg.FromAddress),
		DraftText:        draftText,
		ModelUsed:        g.model.ModelName(),
		PromptTokens:     textutil.EstimateTokens(prompt),
		CompletionTokens: textutil.EstimateTokens(draftText),
	}
	if err := g.drafts.Create(record); err != nil {
		return nil, err
	}

	g.logger.Info("draft created",
		zap.String("draft_id", record.ID),
		zap.String("message_id", msg.ID),
		zap.String("model", record.ModelUsed))
	return record, nil
}

// TokensUsed reports the total tokens a draft consumed.
func TokensUsed(record *draftdomain.DraftRecord) int {
	return record.PromptTokens + record.CompletionTokens
}
