package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/publisher"
	"github.com/postpilothq/postpilot/internal/repository"
	"github.com/postpilothq/postpilot/internal/scheduler"
	"github.com/postpilothq/postpilot/internal/transfer"
)

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (int64, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
	Results(ctx context.Context, postID, userID int64) ([]*models.PlatformResult, error)
	History(ctx context.Context, userID int64) ([]*models.PublishAttempt, error)
	PublishNow(ctx context.Context, userID, postID int64) error
	Remove(ctx context.Context, userID, postID int64) error
}

type postService struct {
	db         *sql.DB
	pr         repository.PostRepository
	results    repository.PlatformResultRepository
	attempts   repository.PublishAttemptRepository
	ac         repository.SocialAccountRepository
	ma         repository.MediaAssetRepository
	pm         repository.PostMediaRepository
	registry   *publisher.Registry
	dispatcher *scheduler.Dispatcher
	media      *MediaService
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	results repository.PlatformResultRepository,
	attempts repository.PublishAttemptRepository,
	ac repository.SocialAccountRepository,
	ma repository.MediaAssetRepository,
	pm repository.PostMediaRepository,
	registry *publisher.Registry,
	dispatcher *scheduler.Dispatcher,
	media *MediaService) PostService {
	return &postService{
		db:         db,
		pr:         pr,
		results:    results,
		attempts:   attempts,
		ac:         ac,
		ma:         ma,
		pm:         pm,
		registry:   registry,
		dispatcher: dispatcher,
		media:      media,
	}
}

func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (int64, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return 0, err
	}
	if pc.Body == "" {
		err := errors.New("post body cannot be empty")
		slog.Info(err.Error())
		return 0, err
	}
	if len(pc.Platforms) == 0 {
		err := errors.New("no target platforms selected")
		slog.Info(err.Error())
		return 0, err
	}

	content := publisher.Content{
		Body:      pc.Body,
		Title:     pc.Title,
		Hashtags:  pc.Hashtags,
		Mentions:  pc.Mentions,
		MediaURLs: make([]string, len(files)),
	}

	for _, platform := range pc.Platforms {
		pub, ok := s.registry.Get(platform)
		if !ok {
			err := fmt.Errorf("platform %s is not supported", platform)
			slog.Info(err.Error())
			return 0, err
		}

		if validation := pub.ValidateContent(content); !validation.IsValid {
			err := fmt.Errorf("content rejected for %s: %s", platform, strings.Join(validation.Errors, "; "))
			slog.Info(err.Error())
			return 0, err
		}
	}

	status := models.PostStatusScheduled
	if pc.Draft {
		status = models.PostStatusDraft
	}

	scheduledAt := time.Now()
	if pc.ScheduledTime != "" {
		parsed, err := time.Parse("2006-01-02T15:04", pc.ScheduledTime)
		if err != nil {
			err = fmt.Errorf("invalid scheduled time format: %w", err)
			slog.Error(err.Error())
			return 0, err
		}
		scheduledAt = parsed
	} else if !pc.Draft {
		err := errors.New("scheduled posts need a scheduled time")
		slog.Info(err.Error())
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post := models.Post{
		UserID:      userID,
		Body:        pc.Body,
		Title:       pc.Title,
		Hashtags:    pc.Hashtags,
		Mentions:    pc.Mentions,
		Platforms:   pc.Platforms,
		ScheduledAt: scheduledAt,
		Status:      status,
	}

	postID, err := s.pr.Create(ctx, tx, &post)
	if err != nil {
		return 0, fmt.Errorf("error creating post: %w", err)
	}

	if err = s.attachAssets(ctx, tx, userID, postID, pc.AssetIDs); err != nil {
		return 0, fmt.Errorf("error attaching media assets: %w", err)
	}

	if err = s.media.ProcessFiles(ctx, tx, userID, postID, len(pc.AssetIDs), files); err != nil {
		return 0, fmt.Errorf("error processing files: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return postID, nil
}

func (s *postService) attachAssets(ctx context.Context, tx *sql.Tx, userID, postID int64, assetIDs []int64) error {
	for i, assetID := range assetIDs {
		exists, err := s.ma.CheckByUserID(ctx, assetID, userID)
		if err != nil {
			return fmt.Errorf("error checking media asset %d: %w", assetID, err)
		}
		if !exists {
			return fmt.Errorf("media asset %d does not exist", assetID)
		}

		postMedia := models.PostMedia{
			PostID:       postID,
			AssetID:      assetID,
			DisplayOrder: i,
		}
		if err := s.pm.Create(ctx, tx, &postMedia); err != nil {
			return fmt.Errorf("error saving media asset %d: %w", assetID, err)
		}
	}
	return nil
}

// PublishNow runs the dispatcher for one post outside the timer. Draft
// posts are promoted to scheduled first so the same claim path applies.
func (s *postService) PublishNow(ctx context.Context, userID, postID int64) error {
	post, err := s.ownedPost(ctx, postID, userID)
	if err != nil {
		return err
	}

	switch post.Status {
	case models.PostStatusPosted:
		return errors.New("post is already published")
	case models.PostStatusPosting:
		return errors.New("a publish for this post is already in progress")
	case models.PostStatusDraft:
		if err := s.pr.UpdateStatus(ctx, models.PostStatusScheduled, post.ID); err != nil {
			return fmt.Errorf("unable to promote draft for publishing: %w", err)
		}
		post.Status = models.PostStatusScheduled
	}

	err = s.dispatcher.PublishPost(ctx, post)
	if errors.Is(err, scheduler.ErrAlreadyClaimed) {
		return errors.New("a publish for this post is already in progress")
	}
	return err
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	return s.ownedPost(ctx, postID, userID)
}

func (s *postService) Results(ctx context.Context, postID, userID int64) ([]*models.PlatformResult, error) {
	if _, err := s.ownedPost(ctx, postID, userID); err != nil {
		return nil, err
	}

	results, err := s.results.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("Error getting platform results")
	}
	return results, nil
}

func (s *postService) History(ctx context.Context, userID int64) ([]*models.PublishAttempt, error) {
	attempts, err := s.attempts.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Error getting posting history")
	}
	return attempts, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Error getting posts")
	}
	return posts, nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	post, err := s.ownedPost(ctx, postID, userID)
	if err != nil {
		return err
	}

	if post.Status == models.PostStatusPosting {
		err = errors.New("cannot remove a post while it is being published")
		slog.Info(err.Error())
		return err
	}

	err = s.pr.Remove(ctx, postID)
	if err != nil {
		return fmt.Errorf("Error removing post")
	}

	return nil
}

func (s *postService) ownedPost(ctx context.Context, postID, userID int64) (*models.Post, error) {
	var err error

	if userID == 0 {
		err = errors.New("User is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	if postID == 0 {
		err = errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	if !isValid {
		err = errors.New("Post doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil || post == nil {
		return nil, fmt.Errorf("Error getting post info")
	}

	return post, nil
}
