package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	draftdomain "triage-backend/internal/draft/domain"
)

// DraftRepository defines storage operations for drafts and their audit
// trail. Status transitions are validated here so no caller can move a
// draft backward.
type DraftRepository interface {
	// Create persists a new pending draft and its "created" history row
	Create(draft *draftdomain.DraftRecord) error
	// GetByID retrieves a draft
	GetByID(id string) (*draftdomain.DraftRecord, error)
	// ListByStatus returns drafts in one status, newest first
	ListByStatus(status draftdomain.DraftStatus) ([]draftdomain.DraftRecord, error)
	// ExistsForMessage reports whether a draft already exists for a message
	ExistsForMessage(messageID string) (bool, error)
	// Approve moves pending -> approved
	Approve(id, approvedBy string) (*draftdomain.DraftRecord, error)
	// Reject moves pending -> rejected with a reason
	Reject(id, rejectedBy, reason string) (*draftdomain.DraftRecord, error)
	// Edit stores reviewer-edited text on a pending or approved draft
	Edit(id, editedText, editedBy string) (*draftdomain.DraftRecord, error)
	// Rate records reviewer feedback, 1-5
	Rate(id string, score int, notes string) (*draftdomain.DraftRecord, error)
	// MarkSent moves approved -> sent, recording how it was sent
	MarkSent(id, sentVia string) (*draftdomain.DraftRecord, error)
	// History returns the append-only audit trail for a draft
	History(draftID string) ([]draftdomain.DraftHistoryEntry, error)
}

type draftRepository struct {
	db *gorm.DB
}

func NewDraftRepository(db *gorm.DB) DraftRepository {
	return &draftRepository{db: db}
}

func (r *draftRepository) Create(draft *draftdomain.DraftRecord) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		draft.Status = draftdomain.DraftStatusPending
		draft.CreatedAt = now
		draft.UpdatedAt = now
		if err := tx.Create(draft).Error; err != nil {
			return err
		}
		return tx.Create(&draftdomain.DraftHistoryEntry{
			DraftID:     draft.ID,
			Action:      draftdomain.ActionCreated,
			PerformedBy: "pipeline",
			PerformedAt: now,
		}).Error
	})
}

func (r *draftRepository) GetByID(id string) (*draftdomain.DraftRecord, error) {
	var draft draftdomain.DraftRecord
	err := r.db.Where("id = ?", id).First(&draft).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &draft, nil
}

func (r *draftRepository) ListByStatus(status draftdomain.DraftStatus) ([]draftdomain.DraftRecord, error) {
	var drafts []draftdomain.DraftRecord
	err := r.db.Where("status = ?", status).Order("created_at DESC").Find(&drafts).Error
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

func (r *draftRepository) ExistsForMessage(messageID string) (bool, error) {
	var count int64
	err := r.db.Model(&draftdomain.DraftRecord{}).Where("message_id = ?", messageID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *draftRepository) Approve(id, approvedBy string) (*draftdomain.DraftRecord, error) {
	return r.transition(id, draftdomain.DraftStatusApproved, draftdomain.ActionApproved, approvedBy, "", func(draft *draftdomain.DraftRecord, now time.Time) {
		draft.ApprovedBy = approvedBy
		draft.ApprovedAt = &now
	})
}

func (r *draftRepository) Reject(id, rejectedBy, reason string) (*draftdomain.DraftRecord, error) {
	return r.transition(id, draftdomain.DraftStatusRejected, draftdomain.ActionRejected, rejectedBy, reason, func(draft *draftdomain.DraftRecord, now time.Time) {
		draft.RejectedBy = rejectedBy
		draft.RejectedAt = &now
		draft.RejectionReason = reason
	})
}

func (r *draftRepository) MarkSent(id, sentVia string) (*draftdomain.DraftRecord, error) {
	return r.transition(id, draftdomain.DraftStatusSent, draftdomain.ActionSent, "", sentVia, func(draft *draftdomain.DraftRecord, now time.Time) {
		draft.SentVia = sentVia
		draft.SentAt = &now
	})
}

// transition applies one validated status change plus its audit row.
func (r *draftRepository) transition(id string, to draftdomain.DraftStatus, action draftdomain.HistoryAction, performedBy, notes string, apply func(*draftdomain.DraftRecord, time.Time)) (*draftdomain.DraftRecord, error) {
	var result *draftdomain.DraftRecord
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var draft draftdomain.DraftRecord
		if err := tx.Where("id = ?", id).First(&draft).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("draft %s not found", id)
			}
			return err
		}
		if !draftdomain.CanTransition(draft.Status, to) {
			return &draftdomain.InvalidTransitionError{From: draft.Status, To: to}
		}

		now := time.Now()
		draft.Status = to
		draft.UpdatedAt = now
		apply(&draft, now)
		if err := tx.Save(&draft).Error; err != nil {
			return err
		}
		if err := tx.Create(&draftdomain.DraftHistoryEntry{
			DraftID:     id,
			Action:      action,
			PerformedBy: performedBy,
			PerformedAt: now,
			Notes:       notes,
		}).Error; err != nil {
			return err
		}
		result = &draft
		return nil
	})
	return result, err
}

func (r *draftRepository) Edit(id, editedText, editedBy string) (*draftdomain.DraftRecord, error) {
	var result *draftdomain.DraftRecord
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var draft draftdomain.DraftRecord
		if err := tx.Where("id = ?", id).First(&draft).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("draft %s not found", id)
			}
			return err
		}
		if draft.Status != draftdomain.DraftStatusPending && draft.Status != draftdomain.DraftStatusApproved {
			return fmt.Errorf("draft %s is %s and can no longer be edited", id, draft.Status)
		}

		now := time.Now()
		draft.EditedText = editedText
		draft.UpdatedAt = now
		if err := tx.Save(&draft).Error; err != nil {
			return err
		}
		if err := tx.Create(&draftdomain.DraftHistoryEntry{
			DraftID:     id,
			Action:      draftdomain.ActionEdited,
			PerformedBy: editedBy,
			PerformedAt: now,
		}).Error; err != nil {
			return err
		}
		result = &draft
		return nil
	})
	return result, err
}

func (r *draftRepository) Rate(id string, score int, notes string) (*draftdomain.DraftRecord, error) {
	if score < 1 || score > 5 {
		return nil, fmt.Errorf("feedback score must be between 1 and 5, got %d", score)
	}
	var result *draftdomain.DraftRecord
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var draft draftdomain.DraftRecord
		if err := tx.Where("id = ?", id).First(&draft).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("draft %s not found", id)
			}
			return err
		}

		now := time.Now()
		draft.FeedbackScore = score
		draft.FeedbackNotes = notes
		draft.UpdatedAt = now
		if err := tx.Save(&draft).Error; err != nil {
			return err
		}
		if err := tx.Create(&draftdomain.DraftHistoryEntry{
			DraftID:     id,
			Action:      draftdomain.ActionRated,
			PerformedAt: now,
			Notes:       fmt.Sprintf("score=%d %s", score, notes),
		}).Error; err != nil {
			return err
		}
		result = &draft
		return nil
	})
	return result, err
}

func (r *draftRepository) History(draftID string) ([]draftdomain.DraftHistoryEntry, error) {
	var entries []draftdomain.DraftHistoryEntry
	err := r.db.Where("draft_id = ?", draftID).Order("performed_at ASC, id ASC").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
