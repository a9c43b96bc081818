package repository

import (
	"time"

	"gorm.io/gorm"

	triagedomain "triage-backend/internal/triage/domain"
)

// MessageRepository defines storage operations for normalized messages
type MessageRepository interface {
	// Save inserts a message or updates it if the id already exists
	Save(message *triagedomain.Message) error
	// GetByID retrieves a message by its composite id
	GetByID(id string) (*triagedomain.Message, error)
	// FindByFingerprint returns the first message carrying a fingerprint
	FindByFingerprint(fingerprint string) (*triagedomain.Message, error)
	// ListBySender returns the most recent messages from one address
	ListBySender(address string, limit int) ([]triagedomain.Message, error)
	// ListCandidates returns unread messages at or above a priority score
	ListCandidates(minPriority int) ([]triagedomain.Message, error)
	// ListStaleUnread returns messages still unread since before the cutoff,
	// at or above a (lower) priority floor
	ListStaleUnread(before time.Time, minPriority int) ([]triagedomain.Message, error)
	// SetThreadID assigns a derived thread id to a message
	SetThreadID(messageID, threadID string) error
	// UpdateTriage persists the scoring outcome for a message
	UpdateTriage(messageID string, score int, priority triagedomain.PriorityCategory, category triagedomain.Category) error
	// ListAll returns every stored message, newest first
	ListAll() ([]triagedomain.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Save(message *triagedomain.Message) error {
	var existing triagedomain.Message
	err := r.db.Where("id = ?", message.ID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return r.db.Create(message).Error
	} else if err != nil {
		return err
	}
	message.CreatedAt = existing.CreatedAt
	return r.db.Save(message).Error
}

func (r *messageRepository) GetByID(id string) (*triagedomain.Message, error) {
	var message triagedomain.Message
	err := r.db.Where("id = ?", id).First(&message).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) FindByFingerprint(fingerprint string) (*triagedomain.Message, error) {
	var message triagedomain.Message
	err := r.db.Where("dedup_fingerprint = ?", fingerprint).First(&message).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) ListBySender(address string, limit int) ([]triagedomain.Message, error) {
	var messages []triagedomain.Message
	err := r.db.Where("from_address = ?", address).
		Order("received_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) ListCandidates(minPriority int) ([]triagedomain.Message, error) {
	var messages []triagedomain.Message
	err := r.db.Where("priority_score >= ? AND is_unread = ?", minPriority, true).
		Order("priority_score DESC, received_at DESC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) ListStaleUnread(before time.Time, minPriority int) ([]triagedomain.Message, error) {
	var messages []triagedomain.Message
	err := r.db.Where("is_unread = ? AND received_at < ? AND priority_score >= ?", true, before, minPriority).
		Order("priority_score DESC, received_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) SetThreadID(messageID, threadID string) error {
	return r.db.Model(&triagedomain.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{"thread_id": threadID, "updated_at": time.Now()}).Error
}

func (r *messageRepository) UpdateTriage(messageID string, score int, priority triagedomain.PriorityCategory, category triagedomain.Category) error {
	return r.db.Model(&triagedomain.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"priority_score":    score,
			"priority_category": priority,
			"category":          category,
			"updated_at":        time.Now(),
		}).Error
}

func (r *messageRepository) ListAll() ([]triagedomain.Message, error) {
	var messages []triagedomain.Message
	err := r.db.Order("received_at DESC").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}
