package repository

import (
	"time"

	"gorm.io/gorm"

	draftdomain "triage-backend/internal/draft/domain"
)

// UsageRow aggregates call-log rows for one service over a window
type UsageRow struct {
	Service    string  `json:"service"`
	Calls      int64   `json:"calls"`
	TokensUsed int64   `json:"tokens_used"`
	CostUSD    float64 `json:"cost_usd"`
}

// CallLogRepository defines storage for the API call log and the draft
// generation log. Both are append-only; the rate limiter reads its windows
// from here.
type CallLogRepository interface {
	// Record durably appends one call-log row
	Record(log *draftdomain.APICallLog) error
	// CountSuccessSince counts successful calls after a point in time
	CountSuccessSince(since time.Time) (int64, error)
	// RecordGeneration appends one draft-generation row
	RecordGeneration(log *draftdomain.DraftGenerationLog) error
	// LastGenerationFor returns the newest generation row for a sender
	// after a point in time, nil when there is none
	LastGenerationFor(senderAddress string, since time.Time) (*draftdomain.DraftGenerationLog, error)
	// UsageSummary aggregates successful calls per service over a window
	UsageSummary(since time.Time) ([]UsageRow, error)
}

type callLogRepository struct {
	db *gorm.DB
}

func NewCallLogRepository(db *gorm.DB) CallLogRepository {
	return &callLogRepository{db: db}
}

func (r *callLogRepository) Record(log *draftdomain.APICallLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	return r.db.Create(log).Error
}

func (r *callLogRepository) CountSuccessSince(since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&draftdomain.APICallLog{}).
		Where("success = ? AND created_at >= ?", true, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *callLogRepository) RecordGeneration(log *draftdomain.DraftGenerationLog) error {
	if log.GeneratedAt.IsZero() {
		log.GeneratedAt = time.Now()
	}
	return r.db.Create(log).Error
}

func (r *callLogRepository) LastGenerationFor(senderAddress string, since time.Time) (*draftdomain.DraftGenerationLog, error) {
	var log draftdomain.DraftGenerationLog
	err := r.db.Where("sender_address = ? AND generated_at >= ?", senderAddress, since).
		Order("generated_at DESC").
		First(&log).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

func (r *callLogRepository) UsageSummary(since time.Time) ([]UsageRow, error) {
	var rows []UsageRow
	err := r.db.Model(&draftdomain.APICallLog{}).
		Select("service, COUNT(*) as calls, COALESCE(SUM(tokens_used),0) as tokens_used, COALESCE(SUM(cost_usd),0) as cost_usd").
		Where("success = ? AND created_at >= ?", true, since).
		Group("service").
		Order("calls DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
