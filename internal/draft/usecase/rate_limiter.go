package usecase

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	draftdomain "triage-backend/internal/draft/domain"
	"triage-backend/internal/draft/repository"
	"triage-backend/pkg/config"
)

// RunLimiter enforces draft-generation caps for one pipeline run. It is
// constructed at run start so the per-run counter can never leak across
// runs; the hourly and daily windows read the durable call log.
type RunLimiter struct {
	cfg     config.RateLimitConfig
	callLog repository.CallLogRepository
	logger  *zap.Logger

	now   func() time.Time
	sleep func(time.Duration)

	draftsThisRun int
	lastCallAt    time.Time
}

func NewRunLimiter(cfg config.RateLimitConfig, callLog repository.CallLogRepository, logger *zap.Logger) *RunLimiter {
	return &RunLimiter{
		cfg:     cfg,
		callLog: callLog,
		logger:  logger,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// WithClock replaces the limiter's clock and sleep. Used by tests.
func (l *RunLimiter) WithClock(now func() time.Time, sleep func(time.Duration)) *RunLimiter {
	l.now = now
	l.sleep = sleep
	return l
}

// CanGenerate checks every cap in order: per-run, daily, hourly, then the
// per-sender duplicate window. The first exhausted cap wins; exhaustion is
// an answer, not an error.
func (l *RunLimiter) CanGenerate(senderAddress string) (bool, string, error) {
	if l.draftsThisRun >= l.cfg.MaxDraftsPerRun {
		reason := fmt.Sprintf("Per-run limit reached (%d drafts)", l.cfg.MaxDraftsPerRun)
		l.logger.Warn(reason)
		return false, reason, nil
	}

	now := l.now()

	dailyCalls, err := l.callLog.CountSuccessSince(now.Add(-24 * time.Hour))
	if err != nil {
		return false, "", err
	}
	if dailyCalls >= int64(l.cfg.MaxDailyCalls) {
		reason := fmt.Sprintf("Daily limit reached (%d/%d calls)", dailyCalls, l.cfg.MaxDailyCalls)
		l.logger.Warn(reason)
		return false, reason, nil
	}

	hourlyCalls, err := l.callLog.CountSuccessSince(now.Add(-time.Hour))
	if err != nil {
		return false, "", err
	}
	if hourlyCalls >= int64(l.cfg.MaxHourlyCalls) {
		reason := fmt.Sprintf("Hourly limit reached (%d/%d calls)", hourlyCalls, l.cfg.MaxHourlyCalls)
		l.logger.Warn(reason)
		return false, reason, nil
	}

	sender := strings.ToLower(senderAddress)
	recent, err := l.callLog.LastGenerationFor(sender, now.Add(-l.cfg.DuplicateWindow))
	if err != nil {
		return false, "", err
	}
	if recent != nil {
		minutes := int(l.cfg.DuplicateWindow.Minutes())
		reason := fmt.Sprintf("Draft generated for %s in last %d minutes", sender, minutes)
		l.logger.Info(reason)
		return false, reason, nil
	}

	return true, "OK", nil
}

// EnforceMinDelay sleeps just long enough to keep the configured minimum
// interval between consecutive model calls. The first call never waits.
func (l *RunLimiter) EnforceMinDelay() {
	if l.lastCallAt.IsZero() {
		l.lastCallAt = l.now()
		return
	}
	elapsed := l.now().Sub(l.lastCallAt)
	if remaining := l.cfg.MinDelay - elapsed; remaining > 0 {
		l.logger.Info("rate limit delay before next call",
			zap.Duration("wait", remaining))
		l.sleep(remaining)
	}
	l.lastCallAt = l.now()
}

// RecordCall durably appends one call-log row whether or not the call
// succeeded. Only successful rows count against the windows.
func (l *RunLimiter) RecordCall(service, action string, success bool, tokensUsed int, costUSD float64, metadata map[string]interface{}) error {
	var meta string
	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			meta = string(data)
		}
	}
	return l.callLog.Record(&draftdomain.APICallLog{
		Service:    service,
		Action:     action,
		Success:    success,
		TokensUsed: tokensUsed,
		CostUSD:    costUSD,
		Metadata:   meta,
		CreatedAt:  l.now(),
	})
}

// RecordDraftGenerated bumps the run counter and appends to the
// generation log that feeds the duplicate window.
func (l *RunLimiter) RecordDraftGenerated(messageID, senderAddress, draftID string) error {
	l.draftsThisRun++
	l.logger.Info("recorded draft generation",
		zap.String("message_id", messageID),
		zap.Int("run_total", l.draftsThisRun))
	return l.callLog.RecordGeneration(&draftdomain.DraftGenerationLog{
		MessageID:     messageID,
		SenderAddress: strings.ToLower(senderAddress),
		DraftID:       draftID,
		GeneratedAt:   l.now(),
	})
}

// DraftsThisRun returns the run-scoped draft counter.
func (l *RunLimiter) DraftsThisRun() int {
	return l.draftsThisRun
}

// UsageSummary aggregates successful calls per service over a trailing
// window.
func (l *RunLimiter) UsageSummary(window time.Duration) ([]repository.UsageRow, error) {
	return l.callLog.UsageSummary(l.now().Add(-window))
}
