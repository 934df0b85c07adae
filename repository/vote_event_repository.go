package repository

import (
	"context"
	"fmt"

	"dailyvote-bot/models"

	"gorm.io/gorm"
)

// VoteEventRepository is the append-only journal of accepted votes.
type VoteEventRepository interface {
	Append(ctx context.Context, ev *models.VoteEvent) error
	// ListByMessage returns a poll's events in append order.
	ListByMessage(ctx context.Context, messageID string) ([]models.VoteEvent, error)
}

// GormVoteEventRepository is the gorm implementation of VoteEventRepository.
type GormVoteEventRepository struct {
	db *gorm.DB
}

// NewVoteEventRepository creates a gorm backed vote journal.
func NewVoteEventRepository(db *gorm.DB) *GormVoteEventRepository {
	return &GormVoteEventRepository{db: db}
}

// Append stores one event.
func (r *GormVoteEventRepository) Append(ctx context.Context, ev *models.VoteEvent) error {
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("append vote event: %w", err)
	}
	return nil
}

// ListByMessage loads every event of one poll.
func (r *GormVoteEventRepository) ListByMessage(ctx context.Context, messageID string) ([]models.VoteEvent, error) {
	var events []models.VoteEvent
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list vote events: %w", err)
	}
	return events, nil
}
