package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilothq/postpilot/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	GetDue(ctx context.Context, now time.Time, maxRetries int) ([]*models.Post, error)
	GetStalePosting(ctx context.Context, cutoff time.Time) ([]*models.Post, error)
	ClaimForPosting(ctx context.Context, id int64, at time.Time) (bool, error)
	UpdateDispatchOutcome(ctx context.Context, id int64, status string, retryCount int, scheduledAt *time.Time) error
	UpdateStatus(ctx context.Context, status string, postID int64) error
	UpdateBody(ctx context.Context, id int64, body string) error
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, body, title, hashtags, mentions, platforms, scheduled_at, status, retry_count, last_attempt, created_at, updated_at`

func scanPost(row interface{ Scan(...interface{}) error }) (*models.Post, error) {
	var post models.Post
	err := row.Scan(&post.ID, &post.UserID, &post.Body, &post.Title, &post.Hashtags,
		&post.Mentions, &post.Platforms, &post.ScheduledAt, &post.Status,
		&post.RetryCount, &post.LastAttempt, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, body, title, hashtags, mentions, platforms, scheduled_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, post.UserID, post.Body, post.Title, post.Hashtags, post.Mentions, post.Platforms, post.ScheduledAt, post.Status).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, post.UserID, post.Body, post.Title, post.Hashtags, post.Mentions, post.Platforms, post.ScheduledAt, post.Status).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	post, err := scanPost(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY scheduled_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectPosts(rows)
}

// GetDue returns every post eligible for dispatch: scheduled, past its
// scheduled time and still under the retry cap.
func (r *postRepository) GetDue(ctx context.Context, now time.Time, maxRetries int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE status = $1 AND scheduled_at <= $2 AND retry_count < $3`
	rows, err := r.db.QueryContext(ctx, query, models.PostStatusScheduled, now, maxRetries)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectPosts(rows)
}

// GetStalePosting returns posts stuck in posting since before cutoff,
// i.e. dispatches that died between the claim and the final persist.
func (r *postRepository) GetStalePosting(ctx context.Context, cutoff time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE status = $1 AND last_attempt IS NOT NULL AND last_attempt < $2`
	rows, err := r.db.QueryContext(ctx, query, models.PostStatusPosting, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectPosts(rows)
}

func collectPosts(rows *sql.Rows) ([]*models.Post, error) {
	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

// ClaimForPosting flips scheduled -> posting in a single conditional
// update. The false return means another dispatch already holds the post.
func (r *postRepository) ClaimForPosting(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1,
			last_attempt = $2,
			updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusPosting, at, id, models.PostStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return affected == 1, nil
}

func (r *postRepository) UpdateDispatchOutcome(ctx context.Context, id int64, status string, retryCount int, scheduledAt *time.Time) error {
	query := `
		UPDATE posts
		SET status = $1,
			retry_count = $2,
			scheduled_at = COALESCE($3, scheduled_at),
			updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, status, retryCount, scheduledAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) UpdateStatus(ctx context.Context, status string, postID int64) error {
	query := `
		UPDATE posts
		SET status = $1,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) UpdateBody(ctx context.Context, id int64, body string) error {
	query := `
		UPDATE posts
		SET body = $1,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, body, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := "SELECT 1 FROM posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)

	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
