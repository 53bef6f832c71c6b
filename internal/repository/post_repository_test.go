package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/postpilothq/postpilot/internal/models"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// postRows encodes array columns the way the postgres driver hands them
// back, as their text representation.
func postRows(posts ...*models.Post) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "body", "title", "hashtags", "mentions", "platforms",
		"scheduled_at", "status", "retry_count", "last_attempt", "created_at", "updated_at",
	})
	for _, p := range posts {
		rows.AddRow(p.ID, p.UserID, p.Body, p.Title, "{}", "{}", "{twitter}",
			p.ScheduledAt, p.Status, p.RetryCount, p.LastAttempt, p.CreatedAt, p.UpdatedAt)
	}
	return rows
}

func TestClaimForPosting(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "claim wins", affected: 1, want: true},
		{name: "already claimed", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewPostRepository(db)

			at := time.Now()
			mock.ExpectExec("UPDATE posts").
				WithArgs(models.PostStatusPosting, at, int64(42), models.PostStatusScheduled).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			claimed, err := repo.ClaimForPosting(context.Background(), 42, at)
			if err != nil {
				t.Fatalf("ClaimForPosting: %v", err)
			}
			if claimed != tt.want {
				t.Errorf("claimed = %v, want %v", claimed, tt.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestGetDue(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostRepository(db)

	now := time.Now()
	due := &models.Post{
		ID:          7,
		UserID:      1,
		Body:        "ship it",
		ScheduledAt: now.Add(-time.Minute),
		Status:      models.PostStatusScheduled,
	}

	mock.ExpectQuery("SELECT (.+) FROM posts").
		WithArgs(models.PostStatusScheduled, now, 3).
		WillReturnRows(postRows(due))

	posts, err := repo.GetDue(context.Background(), now, 3)
	if err != nil {
		t.Fatalf("GetDue: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != 7 {
		t.Fatalf("posts = %+v, want the one due post", posts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetStalePosting(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostRepository(db)

	cutoff := time.Now().Add(-10 * time.Minute)

	mock.ExpectQuery("SELECT (.+) FROM posts").
		WithArgs(models.PostStatusPosting, cutoff).
		WillReturnRows(postRows())

	posts, err := repo.GetStalePosting(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("GetStalePosting: %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("posts = %d, want 0", len(posts))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateDispatchOutcome(t *testing.T) {
	t.Run("reschedule keeps new time", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewPostRepository(db)

		next := time.Now().Add(15 * time.Minute)
		mock.ExpectExec("UPDATE posts").
			WithArgs(models.PostStatusScheduled, 1, next, sqlmock.AnyArg(), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.UpdateDispatchOutcome(context.Background(), 7, models.PostStatusScheduled, 1, &next); err != nil {
			t.Fatalf("UpdateDispatchOutcome: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("terminal state passes nil schedule", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewPostRepository(db)

		mock.ExpectExec("UPDATE posts").
			WithArgs(models.PostStatusFailed, 3, nil, sqlmock.AnyArg(), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.UpdateDispatchOutcome(context.Background(), 7, models.PostStatusFailed, 3, nil); err != nil {
			t.Fatalf("UpdateDispatchOutcome: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
}

func TestGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM posts").
		WithArgs(int64(99)).
		WillReturnRows(postRows())

	post, err := repo.GetByID(context.Background(), 99)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if post != nil {
		t.Errorf("post = %+v, want nil for missing row", post)
	}
}

func TestCheckByUserID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostRepository(db)

	mock.ExpectQuery("SELECT 1 FROM posts").
		WithArgs(int64(7), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	ok, err := repo.CheckByUserID(context.Background(), 7, 1)
	if err != nil {
		t.Fatalf("CheckByUserID: %v", err)
	}
	if !ok {
		t.Error("CheckByUserID = false, want true")
	}

	mock.ExpectQuery("SELECT 1 FROM posts").
		WithArgs(int64(8), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	ok, err = repo.CheckByUserID(context.Background(), 8, 1)
	if err != nil {
		t.Fatalf("CheckByUserID: %v", err)
	}
	if ok {
		t.Error("CheckByUserID = true for another user's post")
	}
}
