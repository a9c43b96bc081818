package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	triagedomain "triage-backend/internal/triage/domain"
)

// ThreadRepository defines storage operations for threads and their participants
type ThreadRepository interface {
	// GetByID retrieves a thread by its derived id
	GetByID(threadID string) (*triagedomain.Thread, error)
	// ApplyMessage folds one message into its thread: upserts the thread
	// aggregates, upserts each participant, and stamps the message's
	// thread_id, all in one transaction
	ApplyMessage(message *triagedomain.Message, threadID string, participants []triagedomain.ThreadParticipant) error
	// ListParticipants returns the participants on a thread
	ListParticipants(threadID string) ([]triagedomain.ThreadParticipant, error)
	// ListRecent returns threads ordered by last activity
	ListRecent(limit int) ([]triagedomain.Thread, error)
}

type threadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) ThreadRepository {
	return &threadRepository{db: db}
}

func (r *threadRepository) GetByID(threadID string) (*triagedomain.Thread, error) {
	var thread triagedomain.Thread
	err := r.db.Where("thread_id = ?", threadID).First(&thread).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &thread, nil
}

func (r *threadRepository) ApplyMessage(message *triagedomain.Message, threadID string, participants []triagedomain.ThreadParticipant) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		var thread triagedomain.Thread
		err := tx.Where("thread_id = ?", threadID).First(&thread).Error
		if err == gorm.ErrRecordNotFound {
			thread = triagedomain.Thread{
				ThreadID:       threadID,
				Subject:        message.Subject,
				EmailCount:     1,
				FirstMessageAt: message.ReceivedAt,
				LastMessageAt:  message.ReceivedAt,
				IsUnread:       message.IsUnread,
				MaxPriority:    message.PriorityScore,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.Create(&thread).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else {
			thread.EmailCount++
			if message.ReceivedAt.Before(thread.FirstMessageAt) {
				thread.FirstMessageAt = message.ReceivedAt
			}
			if message.ReceivedAt.After(thread.LastMessageAt) {
				thread.LastMessageAt = message.ReceivedAt
				thread.Subject = message.Subject
			}
			thread.IsUnread = thread.IsUnread || message.IsUnread
			if message.PriorityScore > thread.MaxPriority {
				thread.MaxPriority = message.PriorityScore
			}
			thread.UpdatedAt = now
			if err := tx.Save(&thread).Error; err != nil {
				return err
			}
		}

		for _, p := range participants {
			address := strings.ToLower(p.Address)
			var existing triagedomain.ThreadParticipant
			err := tx.Where("thread_id = ? AND address = ?", threadID, address).First(&existing).Error
			if err == gorm.ErrRecordNotFound {
				entry := p
				entry.ThreadID = threadID
				entry.Address = address
				entry.MessageCount = 1
				entry.FirstSeen = message.ReceivedAt
				entry.LastSeen = message.ReceivedAt
				if err := tx.Create(&entry).Error; err != nil {
					return err
				}
				continue
			} else if err != nil {
				return err
			}
			existing.MessageCount++
			if message.ReceivedAt.After(existing.LastSeen) {
				existing.LastSeen = message.ReceivedAt
				existing.Role = p.Role
			}
			if p.Name != "" {
				existing.Name = p.Name
			}
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
		}

		return tx.Model(&triagedomain.Message{}).
			Where("id = ?", message.ID).
			Updates(map[string]interface{}{"thread_id": threadID, "updated_at": now}).Error
	})
}

func (r *threadRepository) ListParticipants(threadID string) ([]triagedomain.ThreadParticipant, error) {
	var participants []triagedomain.ThreadParticipant
	err := r.db.Where("thread_id = ?", threadID).Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *threadRepository) ListRecent(limit int) ([]triagedomain.Thread, error) {
	var threads []triagedomain.Thread
	err := r.db.Order("last_message_at DESC").Limit(limit).Find(&threads).Error
	if err != nil {
		return nil, err
	}
	return threads, nil
}
