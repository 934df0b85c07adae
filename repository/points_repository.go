package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dailyvote-bot/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PointsRepository defines PointsAccount persistence.
// Increment and Decrement are single-statement atomic updates.
type PointsRepository interface {
	Increment(ctx context.Context, userID, username string, amount int64, at time.Time) (int64, error)
	// Decrement floors at zero and never creates an account.
	Decrement(ctx context.Context, userID, username string, at time.Time) (int64, error)
	// Get returns nil without error when the user has no account.
	Get(ctx context.Context, userID string) (*models.PointsAccount, error)
	Top(ctx context.Context, limit int) ([]models.PointsAccount, error)
}

// GormPointsRepository is the gorm implementation of PointsRepository.
type GormPointsRepository struct {
	db *gorm.DB
}

// NewPointsRepository creates a gorm backed points repository.
func NewPointsRepository(db *gorm.DB) *GormPointsRepository {
	return &GormPointsRepository{db: db}
}

// Increment upserts the account and adds amount in one statement.
func (r *GormPointsRepository) Increment(ctx context.Context, userID, username string, amount int64, at time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"points":       gorm.Expr("points + ?", amount),
			"last_updated": at,
		}
		if username != "" {
			updates["username"] = username
		}

		acc := models.PointsAccount{UserID: userID, Username: username, Points: amount, LastUpdated: at}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(updates),
		}).Create(&acc).Error
		if err != nil {
			return fmt.Errorf("increment points: %w", err)
		}

		var stored models.PointsAccount
		if err := tx.Where("user_id = ?", userID).First(&stored).Error; err != nil {
			return fmt.Errorf("read points: %w", err)
		}
		total = stored.Points
		return nil
	})
	return total, err
}

// Decrement removes one point, never going below zero.
func (r *GormPointsRepository) Decrement(ctx context.Context, userID, username string, at time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"points":       gorm.Expr("CASE WHEN points > 0 THEN points - 1 ELSE 0 END"),
			"last_updated": at,
		}
		if username != "" {
			updates["username"] = username
		}

		res := tx.Model(&models.PointsAccount{}).Where("user_id = ?", userID).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("decrement points: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			total = 0
			return nil
		}

		var stored models.PointsAccount
		if err := tx.Where("user_id = ?", userID).First(&stored).Error; err != nil {
			return fmt.Errorf("read points: %w", err)
		}
		total = stored.Points
		return nil
	})
	return total, err
}

// Get loads a user's account.
func (r *GormPointsRepository) Get(ctx context.Context, userID string) (*models.PointsAccount, error) {
	var acc models.PointsAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get points account: %w", err)
	}
	return &acc, nil
}

// Top returns the accounts with the most points.
func (r *GormPointsRepository) Top(ctx context.Context, limit int) ([]models.PointsAccount, error) {
	if limit <= 0 {
		limit = 10
	}
	var accs []models.PointsAccount
	err := r.db.WithContext(ctx).
		Where("points > 0").
		Order("points DESC").Order("last_updated ASC").
		Limit(limit).
		Find(&accs).Error
	if err != nil {
		return nil, fmt.Errorf("top points: %w", err)
	}
	return accs, nil
}
