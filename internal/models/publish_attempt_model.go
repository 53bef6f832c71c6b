package models

import "time"

// PublishAttempt is the append-only audit record of one publish call,
// one row per (post, platform, attempt). Rows survive post deletion.
type PublishAttempt struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	PostID        int64     `db:"post_id" json:"post_id"`
	Platform      string    `db:"platform" json:"platform"`
	Status        string    `db:"status" json:"status"` // success, failed
	ScheduledTime time.Time `db:"scheduled_time" json:"scheduled_time"`
	ExecutedTime  time.Time `db:"executed_time" json:"executed_time"`
	Response      string    `db:"response" json:"response,omitempty"`
	ErrorMessage  string    `db:"error_message" json:"error_message,omitempty"`
	ErrorCode     string    `db:"error_code" json:"error_code,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

const (
	AttemptStatusSuccess = "success"
	AttemptStatusFailed  = "failed"
)
