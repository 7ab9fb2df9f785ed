// Package ledger persists terminal processing outcomes. An entry in
// processed_emails means the message was durably actioned; the provider-side
// processed marker remains the authoritative fetch guard, so this store is an
// advisory double-check plus the operator-facing processing history.
package ledger

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"gym-calendar-agent/internal/model"
)

// Ledger tracks which messages have been durably actioned.
type Ledger interface {
	Has(messageID string) (bool, error)
	Record(result model.ProcessingResult) error
	LogAttempt(result model.ProcessingResult) error
	RecentLogs(limit int) ([]model.ProcessingLog, error)
}

// Store is the gorm-backed ledger implementation.
type Store struct {
	db *gorm.DB
}

// New creates a new ledger store
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Has reports whether the message already has a ledger entry.
func (s *Store) Has(messageID string) (bool, error) {
	var processed model.ProcessedEmail
	result := s.db.Where("message_id = ?", messageID).First(&processed)
	if result.Error == nil {
		return true, nil
	}
	if result.Error == gorm.ErrRecordNotFound {
		return false, nil
	}
	return false, fmt.Errorf("database error checking processed email: %w", result.Error)
}

// Record appends the ledger entry for a terminal outcome. It must be called
// once per message, strictly after the action and the provider-side mark have
// both succeeded.
func (s *Store) Record(result model.ProcessingResult) error {
	processed := model.ProcessedEmail{
		MessageID:   result.MessageID,
		ActionTaken: string(result.Action),
		ProcessedAt: time.Now(),
	}
	if err := s.db.Create(&processed).Error; err != nil {
		return fmt.Errorf("failed to record processed email: %w", err)
	}
	return nil
}

// LogAttempt records one processing attempt, terminal or not, for operator
// review.
func (s *Store) LogAttempt(result model.ProcessingResult) error {
	log := model.ProcessingLog{
		MessageID:  result.MessageID,
		EmailType:  string(result.Classification.Type),
		Confidence: result.Classification.Confidence,
		Action:     string(result.Action),
		ErrorMsg:   result.ErrorMessage(),
		CreatedAt:  time.Now(),
	}
	if err := s.db.Create(&log).Error; err != nil {
		return fmt.Errorf("failed to log processing attempt: %w", err)
	}
	return nil
}

// RecentLogs returns the most recent processing log entries.
func (s *Store) RecentLogs(limit int) ([]model.ProcessingLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []model.ProcessingLog
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get processing logs: %w", err)
	}
	return logs, nil
}
