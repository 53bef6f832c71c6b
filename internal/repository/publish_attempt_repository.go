package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/postpilothq/postpilot/internal/models"
)

// PublishAttemptRepository is the append-only attempt audit log. Rows are
// never updated and keep living after the post is deleted.
type PublishAttemptRepository interface {
	Create(ctx context.Context, attempt *models.PublishAttempt) (int64, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.PublishAttempt, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.PublishAttempt, error)
}

type publishAttemptRepository struct {
	db *sql.DB
}

func NewPublishAttemptRepository(db *sql.DB) PublishAttemptRepository {
	return &publishAttemptRepository{db: db}
}

func (r *publishAttemptRepository) Create(ctx context.Context, attempt *models.PublishAttempt) (int64, error) {
	query := `
		INSERT INTO publish_attempts (user_id, post_id, platform, status, scheduled_time, executed_time, response, error_message, error_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, attempt.UserID, attempt.PostID, attempt.Platform,
		attempt.Status, attempt.ScheduledTime, attempt.ExecutedTime, attempt.Response,
		attempt.ErrorMessage, attempt.ErrorCode).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *publishAttemptRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PublishAttempt, error) {
	query := `SELECT id, user_id, post_id, platform, status, scheduled_time, executed_time, response, error_message, error_code, created_at
		FROM publish_attempts WHERE post_id = $1 ORDER BY executed_time ASC`
	return r.list(ctx, query, postID)
}

func (r *publishAttemptRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.PublishAttempt, error) {
	query := `SELECT id, user_id, post_id, platform, status, scheduled_time, executed_time, response, error_message, error_code, created_at
		FROM publish_attempts WHERE user_id = $1 ORDER BY executed_time DESC`
	return r.list(ctx, query, userID)
}

func (r *publishAttemptRepository) list(ctx context.Context, query string, arg interface{}) ([]*models.PublishAttempt, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var attempts []*models.PublishAttempt
	for rows.Next() {
		var attempt models.PublishAttempt
		err := rows.Scan(&attempt.ID, &attempt.UserID, &attempt.PostID, &attempt.Platform,
			&attempt.Status, &attempt.ScheduledTime, &attempt.ExecutedTime, &attempt.Response,
			&attempt.ErrorMessage, &attempt.ErrorCode, &attempt.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		attempts = append(attempts, &attempt)
	}
	return attempts, nil
}
