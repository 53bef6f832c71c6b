package models

import (
	"time"

	"github.com/lib/pq"
)

type Post struct {
	ID          int64          `db:"id" json:"id"`
	UserID      int64          `db:"user_id" json:"user_id"`
	Body        string         `db:"body" json:"body"`
	Title       string         `db:"title" json:"title"`
	Hashtags    pq.StringArray `db:"hashtags" json:"hashtags"`
	Mentions    pq.StringArray `db:"mentions" json:"mentions"`
	Platforms   pq.StringArray `db:"platforms" json:"platforms"`
	ScheduledAt time.Time      `db:"scheduled_at" json:"scheduled_at"`
	Status      string         `db:"status" json:"status"` // draft, scheduled, posting, posted, failed
	RetryCount  int            `db:"retry_count" json:"retry_count"`
	LastAttempt *time.Time     `db:"last_attempt" json:"last_attempt,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

type PlatformResult struct {
	ID           int64     `db:"id" json:"id"`
	PostID       int64     `db:"post_id" json:"post_id"`
	Platform     string    `db:"platform" json:"platform"`
	Success      bool      `db:"success" json:"success"`
	RemotePostID string    `db:"remote_post_id" json:"remote_post_id,omitempty"`
	URL          string    `db:"url" json:"url,omitempty"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type MediaAsset struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	FileName  string    `db:"file_name"`
	FileType  string    `db:"file_type"`
	FileSize  int64     `db:"file_size"`
	FileURL   string    `db:"file_url"`
	CreatedAt time.Time `db:"created_at"`
}

type PostMedia struct {
	PostID       int64     `db:"post_id"`
	AssetID      int64     `db:"asset_id"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}

const (
	PostStatusDraft     = "draft"
	PostStatusScheduled = "scheduled"
	PostStatusPosting   = "posting"
	PostStatusPosted    = "posted"
	PostStatusFailed    = "failed"
)
