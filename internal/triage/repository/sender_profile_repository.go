package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	triagedomain "triage-backend/internal/triage/domain"
)

// SenderProfileRepository defines storage operations for sender profiles
type SenderProfileRepository interface {
	// GetByAddress retrieves a profile by sender address
	GetByAddress(address string) (*triagedomain.SenderProfile, error)
	// ApplyMessage folds one observed message into the sender's profile:
	// count, contact timestamps, and the running priority mean, as a
	// read-modify-write inside a transaction
	ApplyMessage(address, displayName string, receivedAt time.Time, priorityScore int, relationship triagedomain.RelationshipType) error
	// Save writes a complete profile, replacing any existing row
	Save(profile *triagedomain.SenderProfile) error
	// DeleteAll clears every profile (used by rebuild)
	DeleteAll() error
	// ListAll returns all profiles ordered by last contact
	ListAll() ([]triagedomain.SenderProfile, error)
}

type senderProfileRepository struct {
	db *gorm.DB
}

func NewSenderProfileRepository(db *gorm.DB) SenderProfileRepository {
	return &senderProfileRepository{db: db}
}

func (r *senderProfileRepository) GetByAddress(address string) (*triagedomain.SenderProfile, error) {
	var profile triagedomain.SenderProfile
	err := r.db.Where("address = ?", strings.ToLower(address)).First(&profile).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *senderProfileRepository) ApplyMessage(address, displayName string, receivedAt time.Time, priorityScore int, relationship triagedomain.RelationshipType) error {
	address = strings.ToLower(address)
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		var profile triagedomain.SenderProfile
		err := tx.Where("address = ?", address).First(&profile).Error
		if err == gorm.ErrRecordNotFound {
			profile = triagedomain.SenderProfile{
				Address:               address,
				DisplayName:           displayName,
				TotalMessagesReceived: 1,
				FirstContactAt:        receivedAt,
				LastContactAt:         receivedAt,
				AvgPriorityScore:      float64(priorityScore),
				RelationshipType:      relationship,
				CreatedAt:             now,
				UpdatedAt:             now,
			}
			return tx.Create(&profile).Error
		} else if err != nil {
			return err
		}

		n := float64(profile.TotalMessagesReceived)
		profile.AvgPriorityScore = (profile.AvgPriorityScore*n + float64(priorityScore)) / (n + 1)
		profile.TotalMessagesReceived++
		if receivedAt.Before(profile.FirstContactAt) {
			profile.FirstContactAt = receivedAt
		}
		if receivedAt.After(profile.LastContactAt) {
			profile.LastContactAt = receivedAt
		}
		if displayName != "" {
			profile.DisplayName = displayName
		}
		if relationship != triagedomain.RelationshipUnknown {
			profile.RelationshipType = relationship
		}
		profile.UpdatedAt = now
		return tx.Save(&profile).Error
	})
}

func (r *senderProfileRepository) Save(profile *triagedomain.SenderProfile) error {
	profile.Address = strings.ToLower(profile.Address)
	return r.db.Save(profile).Error
}

func (r *senderProfileRepository) DeleteAll() error {
	return r.db.Where("1 = 1").Delete(&triagedomain.SenderProfile{}).Error
}

func (r *senderProfileRepository) ListAll() ([]triagedomain.SenderProfile, error) {
	var profiles []triagedomain.SenderProfile
	err := r.db.Order("last_contact_at DESC").Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}
