package models

import (
	"time"
)

// PostStatus describes what happened to the external publish of a winner.
type PostStatus string

const (
	PostStatusNone    PostStatus = ""        // no winner, nothing posted
	PostStatusPosting PostStatus = "posting" // post claimed, outcome not yet stored
	PostStatusPosted  PostStatus = "posted"  // social post succeeded
	PostStatusFailed  PostStatus = "failed"  // winner chosen but the post failed
)

// EntrySnapshot is the persisted copy of a PollEntry taken at creation.
type EntrySnapshot struct {
	Number   int    `json:"number"`
	ImageRef string `json:"image_ref"`
	Prompt   string `json:"prompt"`
	Caption  string `json:"caption"`
}

// DailyVoteRecord survives restarts and drives the daily cycle.
// At most one row has IsActive set.
type DailyVoteRecord struct {
	ID                    string          `gorm:"primaryKey;size:36" json:"id"`
	DayKey                string          `gorm:"size:10;not null;uniqueIndex" json:"day_key"`
	IsActive              bool            `gorm:"not null;index" json:"is_active"`
	StartedAt             *time.Time      `json:"started_at,omitempty"`
	EndedAt               *time.Time      `json:"ended_at,omitempty"`
	FinalizeAt            *time.Time      `json:"finalize_at,omitempty"` // absolute deadline, authoritative for scheduling
	Entries               []EntrySnapshot `gorm:"serializer:json;type:text" json:"entries"`
	PresentationMessageID *string         `gorm:"size:32;index" json:"presentation_message_id,omitempty"`
	WinnerNumber          *int            `json:"winner_number,omitempty"`
	WinnerImageRef        *string         `gorm:"type:text" json:"winner_image_ref,omitempty"`
	WinnerCaption         *string         `gorm:"type:text" json:"winner_caption,omitempty"`
	PostID                *string         `gorm:"size:64" json:"post_id,omitempty"`
	PostStatus            PostStatus      `gorm:"size:16" json:"post_status"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// PointsAccount is a user's persisted point balance. Created lazily, never deleted.
type PointsAccount struct {
	UserID      string    `gorm:"primaryKey;size:32" json:"user_id"`
	Username    string    `gorm:"size:100" json:"username"`
	Points      int64     `gorm:"not null;default:0" json:"points"`
	LastUpdated time.Time `json:"last_updated"`
}

// VoteEvent is one accepted vote click, appended in apply order.
// Replaying a poll's events rebuilds its voter sets after a restart.
type VoteEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   string    `gorm:"size:32;not null;index" json:"message_id"`
	UserID      string    `gorm:"size:32;not null" json:"user_id"`
	EntryNumber int       `gorm:"not null" json:"entry_number"`
	CreatedAt   time.Time `json:"created_at"`
}
