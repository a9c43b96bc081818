package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	triagedomain "triage-backend/internal/triage/domain"
	"triage-backend/pkg/config"
)

func testOrchestrator(model *fakeModel, drafts *fakeDraftRepo, callLog *fakeCallLog) *Orchestrator {
	logger := zap.NewNop()
	budgeter := NewContextBudgeter(config.BudgetConfig{MaxContextTokens: 25000}, logger)
	builder := NewContextBuilder(&fakeMessageRepo{}, &fakeProfileRepo{}, budgeter, logger)
	filter := NewSenderFilter(config.FilterConfig{
		SkipPatterns:        []string{"no-reply@*"},
		AlwaysDraftPriority: 90,
		CriticalKeywords:    []string{"urgent"},
	}, logger)
	generator := NewGenerator(drafts, model, logger)
	return NewOrchestrator(builder, filter, generator, drafts, callLog, config.RateLimitConfig{
		MaxDraftsPerRun: 10,
		MaxHourlyCalls:  20,
		MaxDailyCalls:   100,
		MinDelay:        time.Millisecond,
		DuplicateWindow: 30 * time.Minute,
	}, logger)
}

func candidate(id, from, subject string) triagedomain.Message {
	return triagedomain.Message{
		ID:            id,
		FromAddress:   from,
		Subject:       subject,
		BodyText:      "body of " + subject,
		PriorityScore: 85,
	}
}

func TestProcessCandidatesCreatesDrafts(t *testing.T) {
	model := &fakeModel{reply: "Thanks, I will take a look today."}
	drafts := &fakeDraftRepo{}
	callLog := &fakeCallLog{}
	o := testOrchestrator(model, drafts, callLog)

	candidates := []triagedomain.Message{
		candidate("m1", "alice@example.com", "contract question"),
		candidate("m2", "bob@example.com", "renewal terms"),
	}

	report := o.ProcessCandidates(context.Background(), candidates, o.NewRunLimiter())

	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.DraftsCreated)
	assert.Zero(t, report.Filtered)
	assert.Zero(t, report.Failed)
	require.Len(t, drafts.created, 2)
	assert.Equal(t, "m1", drafts.created[0].MessageID)
	assert.Equal(t, "alice@example.com", drafts.created[0].SenderAddress)
	assert.Equal(t, "Thanks, I will take a look today.", drafts.created[0].DraftText)
	assert.Equal(t, "fake:test", drafts.created[0].ModelUsed)

	// one success row and one generation row per draft
	assert.Len(t, callLog.calls, 2)
	assert.Len(t, callLog.generations, 2)
}

func TestProcessCandidatesSkipsExistingDrafts(t *testing.T) {
	model := &fakeModel{reply: "reply"}
	drafts := &fakeDraftRepo{existing: map[string]bool{"m1": true}}
	o := testOrchestrator(model, drafts, &fakeCallLog{})

	report := o.ProcessCandidates(context.Background(), []triagedomain.Message{
		candidate("m1", "alice@example.com", "already drafted"),
	}, o.NewRunLimiter())

	assert.Zero(t, report.DraftsCreated)
	assert.Zero(t, report.Failed)
	assert.Zero(t, model.calls)
}

func TestProcessCandidatesFiltersSenders(t *testing.T) {
	model := &fakeModel{reply: "reply"}
	drafts := &fakeDraftRepo{}
	o := testOrchestrator(model, drafts, &fakeCallLog{})

	report := o.ProcessCandidates(context.Background(), []triagedomain.Message{
		candidate("m1", "no-reply@service.com", "receipt"),
	}, o.NewRunLimiter())

	assert.Equal(t, 1, report.Filtered)
	assert.Zero(t, report.DraftsCreated)
	assert.Zero(t, model.calls)
}

func TestProcessCandidatesRateLimitsDuplicateSender(t *testing.T) {
	model := &fakeModel{reply: "reply"}
	drafts := &fakeDraftRepo{}
	callLog := &fakeCallLog{}
	o := testOrchestrator(model, drafts, callLog)

	report := o.ProcessCandidates(context.Background(), []triagedomain.Message{
		candidate("m1", "alice@example.com", "first"),
		candidate("m2", "alice@example.com", "second within window"),
	}, o.NewRunLimiter())

	assert.Equal(t, 1, report.DraftsCreated)
	assert.Equal(t, 1, report.RateLimited)
	assert.Equal(t, 1, model.calls)
}

func TestProcessCandidatesModelFailureIsRecorded(t *testing.T) {
	model := &fakeModel{err: errors.New("invalid api key")}
	drafts := &fakeDraftRepo{}
	callLog := &fakeCallLog{}
	o := testOrchestrator(model, drafts, callLog)

	report := o.ProcessCandidates(context.Background(), []triagedomain.Message{
		candidate("m1", "alice@example.com", "question"),
	}, o.NewRunLimiter())

	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.DraftsCreated)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "generate")
	// the failed call is still logged, as a non-success row
	require.Len(t, callLog.calls, 1)
	assert.False(t, callLog.calls[0].Success)
	assert.Empty(t, callLog.generations)
}

func TestGenerateRejectsEmptyModelOutput(t *testing.T) {
	model := &fakeModel{} // empty reply surfaces as an error
	drafts := &fakeDraftRepo{}
	g := NewGenerator(drafts, model, zap.NewNop())

	bundle, err := NewContextBuilder(&fakeMessageRepo{}, &fakeProfileRepo{},
		NewContextBudgeter(config.BudgetConfig{MaxContextTokens: 25000}, zap.NewNop()), zap.NewNop()).
		Build(&triagedomain.Message{ID: "m1", FromAddress: "a@example.com", Subject: "s"}, 10)
	require.NoError(t, err)

	record, genErr := g.Generate(context.Background(), &triagedomain.Message{ID: "m1", FromAddress: "a@example.com"}, bundle)
	require.Error(t, genErr)
	assert.Nil(t, record)
	assert.Empty(t, drafts.created)
}

func TestGeneratePersistsTokenEstimates(t *testing.T) {
	model := &fakeModel{reply: "A reasonably sized reply body for estimation."}
	drafts := &fakeDraftRepo{}
	g := NewGenerator(drafts, model, zap.NewNop())

	bundle, err := NewContextBuilder(&fakeMessageRepo{}, &fakeProfileRepo{},
		NewContextBudgeter(config.BudgetConfig{MaxContextTokens: 25000}, zap.NewNop()), zap.NewNop()).
		Build(&triagedomain.Message{ID: "m1", FromAddress: "a@example.com", Subject: "subject"}, 10)
	require.NoError(t, err)

	record, err := g.Generate(context.Background(), &triagedomain.Message{ID: "m1", FromAddress: "A@Example.com"}, bundle)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "a@example.com", record.SenderAddress)
	assert.Positive(t, record.PromptTokens)
	assert.Positive(t, record.CompletionTokens)
	assert.Equal(t, record.PromptTokens+record.CompletionTokens, TokensUsed(record))
}
