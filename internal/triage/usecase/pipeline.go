package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	draftusecase "triage-backend/internal/draft/usecase"
	"triage-backend/internal/sendguard"
	triagedomain "triage-backend/internal/triage/domain"
	"triage-backend/internal/triage/repository"
	"triage-backend/pkg/config"
	"triage-backend/pkg/retry"
)

// MessageSource fetches raw provider-shaped payloads for one account.
// Fetching must be read-only and safe to repeat.
type MessageSource interface {
	Fetch(ctx context.Context, accountID string, limit int) ([]map[string]interface{}, error)
}

// relationshipHistoryLimit bounds how many recent messages feed the
// relationship classification, matching the context builder's history cap.
const relationshipHistoryLimit = 10

// RunReport summarizes one pipeline run. Per-item failures are collected
// here instead of aborting the run.
type RunReport struct {
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Fetched       int       `json:"fetched"`
	Duplicates    int       `json:"duplicates"`
	Stored        int       `json:"stored"`
	Candidates    int       `json:"candidates"`
	StaleUnread   int       `json:"stale_unread"`
	DraftsCreated int       `json:"drafts_created"`
	Filtered      int       `json:"filtered"`
	RateLimited   int       `json:"rate_limited"`
	Failed        int       `json:"failed"`
	Errors        []string  `json:"errors,omitempty"`
}

// Pipeline is the triage-and-draft flow: fetch, normalize, persist, thread,
// score, then hand candidates to the draft orchestrator. One run is a
// single sequential pass.
type Pipeline struct {
	sources      map[triagedomain.Provider]MessageSource
	accounts     []config.Account
	normalizer   *Normalizer
	grouper      *ThreadGrouper
	scorer       *PriorityScorer
	categorizer  *Categorizer
	messageRepo  repository.MessageRepository
	profileRepo  repository.SenderProfileRepository
	guard        *sendguard.Guard
	orchestrator *draftusecase.Orchestrator
	fetchLimit   int
	minPriority  int
	staleAfter   time.Duration
	staleMin     int
	retryCfg     retry.Config
	logger       *zap.Logger
}

func NewPipeline(
	sources map[triagedomain.Provider]MessageSource,
	accounts []config.Account,
	normalizer *Normalizer,
	grouper *ThreadGrouper,
	scorer *PriorityScorer,
	categorizer *Categorizer,
	messageRepo repository.MessageRepository,
	profileRepo repository.SenderProfileRepository,
	guard *sendguard.Guard,
	orchestrator *draftusecase.Orchestrator,
	fetchLimit int,
	minPriority int,
	staleAfter time.Duration,
	staleMin int,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		sources:      sources,
		accounts:     accounts,
		normalizer:   normalizer,
		grouper:      grouper,
		scorer:       scorer,
		categorizer:  categorizer,
		messageRepo:  messageRepo,
		profileRepo:  profileRepo,
		guard:        guard,
		orchestrator: orchestrator,
		fetchLimit:   fetchLimit,
		minPriority:  minPriority,
		staleAfter:   staleAfter,
		staleMin:     staleMin,
		retryCfg:     retry.DefaultConfig(),
		logger:       logger,
	}
}

// Run executes one full pass. It refuses to start without a verified guard.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	if p.guard == nil {
		return nil, fmt.Errorf("send guard is not configured; refusing to run")
	}
	if err := p.guard.Verify(); err != nil {
		return nil, fmt.Errorf("send guard verification failed: %w", err)
	}

	report := &RunReport{StartedAt: time.Now().UTC()}
	limiter := p.orchestrator.NewRunLimiter()

	for _, account := range p.accounts {
		provider := triagedomain.Provider(account.Provider)
		source, ok := p.sources[provider]
		if !ok {
			report.Errors = append(report.Errors,
				fmt.Sprintf("account %s: no source for provider %s", account.ID, account.Provider))
			continue
		}

		var raws []map[string]interface{}
		err := retry.Do(ctx, p.retryCfg, p.logger, func() error {
			var fetchErr error
			raws, fetchErr = source.Fetch(ctx, account.ID, p.fetchLimit)
			return fetchErr
		})
		if err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("account %s: fetch: %v", account.ID, err))
			continue
		}
		report.Fetched += len(raws)

		messages, duplicates, errs := p.normalizer.NormalizeAndDedup(raws, provider, account.ID)
		report.Duplicates += duplicates
		for _, err := range errs {
			report.Errors = append(report.Errors, fmt.Sprintf("account %s: %v", account.ID, err))
		}

		for i := range messages {
			stored, err := p.storeMessage(&messages[i])
			if err != nil {
				report.Failed++
				report.Errors = append(report.Errors,
					fmt.Sprintf("%s: store: %v", messages[i].ID, err))
				continue
			}
			if !stored {
				report.Duplicates++
				continue
			}
			report.Stored++
		}
	}

	candidates, err := p.messageRepo.ListCandidates(p.minPriority)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("list candidates: %v", err))
		report.FinishedAt = time.Now().UTC()
		return report, nil
	}

	if p.staleAfter > 0 {
		cutoff := time.Now().UTC().Add(-p.staleAfter)
		stale, err := p.messageRepo.ListStaleUnread(cutoff, p.staleMin)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("list stale unread: %v", err))
		} else {
			seen := make(map[string]bool, len(candidates))
			for _, c := range candidates {
				seen[c.ID] = true
			}
			for _, msg := range stale {
				if seen[msg.ID] {
					continue
				}
				candidates = append(candidates, msg)
				report.StaleUnread++
			}
		}
	}

	drafting := p.orchestrator.ProcessCandidates(ctx, candidates, limiter)
	report.Candidates = drafting.Candidates
	report.DraftsCreated = drafting.DraftsCreated
	report.Filtered = drafting.Filtered
	report.RateLimited = drafting.RateLimited
	report.Failed += drafting.Failed
	report.Errors = append(report.Errors, drafting.Errors...)

	report.FinishedAt = time.Now().UTC()
	p.logger.Info("pipeline run complete",
		zap.Int("fetched", report.Fetched),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("stored", report.Stored),
		zap.Int("drafts_created", report.DraftsCreated),
		zap.Int("failed", report.Failed))
	return report, nil
}

// storeMessage persists one normalized message with its score, category,
// thread, and sender-profile updates. It reports false when the message's
// fingerprint is already stored.
func (p *Pipeline) storeMessage(msg *triagedomain.Message) (bool, error) {
	existing, err := p.messageRepo.FindByFingerprint(msg.DedupFingerprint)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	score := p.scorer.Score(msg)
	category, boost := p.categorizer.Categorize(msg)
	score += boost
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	msg.PriorityScore = score
	msg.PriorityCategory = Categorize(score)
	msg.Category = category

	if err := p.messageRepo.Save(msg); err != nil {
		return false, err
	}

	// Saved above, so the history includes this message.
	history, err := p.messageRepo.ListBySender(msg.FromAddress, relationshipHistoryLimit)
	if err != nil {
		return false, err
	}
	relationship := draftusecase.DetermineRelationship(msg.FromAddress, history)
	if err := p.profileRepo.ApplyMessage(msg.FromAddress, msg.FromName, msg.ReceivedAt, score, relationship); err != nil {
		return false, err
	}

	if _, err := p.grouper.Group(msg); err != nil {
		return false, err
	}
	return true, nil
}

// RebuildSenderProfiles recomputes every profile from stored messages.
func (p *Pipeline) RebuildSenderProfiles() (int, error) {
	messages, err := p.messageRepo.ListAll()
	if err != nil {
		return 0, err
	}
	if err := p.profileRepo.DeleteAll(); err != nil {
		return 0, err
	}

	// ListAll is newest first, so each sender's slice starts with its most
	// recent messages.
	bySender := make(map[string][]triagedomain.Message)
	for _, msg := range messages {
		bySender[msg.FromAddress] = append(bySender[msg.FromAddress], msg)
	}

	rebuilt := 0
	for sender, history := range bySender {
		recent := history
		if len(recent) > relationshipHistoryLimit {
			recent = recent[:relationshipHistoryLimit]
		}
		relationship := draftusecase.DetermineRelationship(sender, recent)
		// Oldest first so first/last contact and the running mean come out right.
		for i := len(history) - 1; i >= 0; i-- {
			msg := history[i]
			if err := p.profileRepo.ApplyMessage(msg.FromAddress, msg.FromName, msg.ReceivedAt, msg.PriorityScore, relationship); err != nil {
				return rebuilt, err
			}
		}
		rebuilt++
	}
	p.logger.Info("sender profiles rebuilt", zap.Int("profiles", rebuilt))
	return rebuilt, nil
}
