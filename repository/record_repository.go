package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dailyvote-bot/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrRecordNotFound daily vote record does not exist
	ErrRecordNotFound = errors.New("daily vote record not found")
	// ErrActiveRecordExists another record is still active
	ErrActiveRecordExists = errors.New("another daily vote record is active")
	// ErrDayTaken a record already exists for the day
	ErrDayTaken = errors.New("a daily vote record already exists for this day")
)

// Outcome is the finalization written onto a DailyVoteRecord.
type Outcome struct {
	EndedAt        time.Time
	WinnerNumber   *int
	WinnerImageRef *string
	WinnerCaption  *string
	PostID         *string
	PostStatus     models.PostStatus
}

// RecordRepository defines DailyVoteRecord persistence.
type RecordRepository interface {
	Create(ctx context.Context, rec *models.DailyVoteRecord) error
	GetByID(ctx context.Context, id string) (*models.DailyVoteRecord, error)
	// GetActive returns nil without error when no record is active.
	GetActive(ctx context.Context) (*models.DailyVoteRecord, error)
	// GetByDay returns nil without error when the day has no record.
	GetByDay(ctx context.Context, dayKey string) (*models.DailyVoteRecord, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.DailyVoteRecord, error)
	SetPresentationID(ctx context.Context, id, messageID string) error
	// MarkPosting claims the social post of an active record. Only the
	// first caller gets true.
	MarkPosting(ctx context.Context, id string) (bool, error)
	// SetPosted stores the post id of a claimed post ahead of Finalize.
	SetPosted(ctx context.Context, id, postID string) error
	// Finalize applies the outcome only while the record is active and
	// reports whether this call performed the transition.
	Finalize(ctx context.Context, id string, outcome Outcome) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]models.DailyVoteRecord, error)
}

// GormRecordRepository is the gorm implementation of RecordRepository.
type GormRecordRepository struct {
	db *gorm.DB
}

// NewRecordRepository creates a gorm backed record repository.
func NewRecordRepository(db *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{db: db}
}

// Create inserts a record, enforcing one active record and one record per day.
func (r *GormRecordRepository) Create(ctx context.Context, rec *models.DailyVoteRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rec.IsActive {
			var active int64
			if err := tx.Model(&models.DailyVoteRecord{}).Where("is_active = ?", true).Count(&active).Error; err != nil {
				return fmt.Errorf("count active records: %w", err)
			}
			if active > 0 {
				return ErrActiveRecordExists
			}
		}

		var sameDay int64
		if err := tx.Model(&models.DailyVoteRecord{}).Where("day_key = ?", rec.DayKey).Count(&sameDay).Error; err != nil {
			return fmt.Errorf("count day records: %w", err)
		}
		if sameDay > 0 {
			return ErrDayTaken
		}

		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		return nil
	})
}

// GetByID loads a record by id.
func (r *GormRecordRepository) GetByID(ctx context.Context, id string) (*models.DailyVoteRecord, error) {
	var rec models.DailyVoteRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return &rec, nil
}

// GetActive loads the active record, if any.
func (r *GormRecordRepository) GetActive(ctx context.Context) (*models.DailyVoteRecord, error) {
	return r.first(ctx, "is_active = ?", true)
}

// GetByDay loads the record for a calendar day, if any.
func (r *GormRecordRepository) GetByDay(ctx context.Context, dayKey string) (*models.DailyVoteRecord, error) {
	return r.first(ctx, "day_key = ?", dayKey)
}

// GetByMessageID loads the record rendered as messageID.
func (r *GormRecordRepository) GetByMessageID(ctx context.Context, messageID string) (*models.DailyVoteRecord, error) {
	rec, err := r.first(ctx, "presentation_message_id = ?", messageID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

func (r *GormRecordRepository) first(ctx context.Context, query string, args ...interface{}) (*models.DailyVoteRecord, error) {
	var rec models.DailyVoteRecord
	err := r.db.WithContext(ctx).Where(query, args...).Order("created_at DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	return &rec, nil
}

// SetPresentationID stores the message id once the poll is rendered.
func (r *GormRecordRepository) SetPresentationID(ctx context.Context, id, messageID string) error {
	res := r.db.WithContext(ctx).Model(&models.DailyVoteRecord{}).
		Where("id = ?", id).
		Update("presentation_message_id", messageID)
	if res.Error != nil {
		return fmt.Errorf("set presentation id: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkPosting sets PostStatusPosting on an active, unclaimed record.
func (r *GormRecordRepository) MarkPosting(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.DailyVoteRecord{}).
		Where("id = ? AND is_active = ? AND post_status = ?", id, true, models.PostStatusNone).
		Update("post_status", models.PostStatusPosting)
	if res.Error != nil {
		return false, fmt.Errorf("mark posting %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SetPosted records a successful post on a claimed, still active record.
func (r *GormRecordRepository) SetPosted(ctx context.Context, id, postID string) error {
	res := r.db.WithContext(ctx).Model(&models.DailyVoteRecord{}).
		Where("id = ? AND is_active = ? AND post_status = ?", id, true, models.PostStatusPosting).
		Updates(map[string]interface{}{
			"post_id":     postID,
			"post_status": models.PostStatusPosted,
		})
	if res.Error != nil {
		return fmt.Errorf("set posted %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Finalize marks the record inactive and stores the outcome.
func (r *GormRecordRepository) Finalize(ctx context.Context, id string, outcome Outcome) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.DailyVoteRecord{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":        false,
			"ended_at":         outcome.EndedAt,
			"winner_number":    outcome.WinnerNumber,
			"winner_image_ref": outcome.WinnerImageRef,
			"winner_caption":   outcome.WinnerCaption,
			"post_id":          outcome.PostID,
			"post_status":      outcome.PostStatus,
		})
	if res.Error != nil {
		return false, fmt.Errorf("finalize record %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListRecent returns the newest records first.
func (r *GormRecordRepository) ListRecent(ctx context.Context, limit int) ([]models.DailyVoteRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var recs []models.DailyVoteRecord
	if err := r.db.WithContext(ctx).Order("day_key DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return recs, nil
}
