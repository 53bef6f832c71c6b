package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/publisher"
	"github.com/postpilothq/postpilot/internal/repository"
	"github.com/postpilothq/postpilot/pkg/utils"
)

const (
	MaxRetries          = 3
	RetryBackoff        = 15 * time.Minute
	DefaultTickInterval = time.Minute
)

// ErrAlreadyClaimed means another dispatch holds the post, or the post
// left the scheduled state before we could claim it.
var ErrAlreadyClaimed = errors.New("post is not claimable for dispatch")

// Dispatcher runs one full attempt cycle for a post: claim it, fan out to
// every target platform, record each outcome, then apply the retry policy.
// Per-platform failures never bubble up; only store failures do.
type Dispatcher struct {
	posts          repository.PostRepository
	results        repository.PlatformResultRepository
	attempts       repository.PublishAttemptRepository
	accounts       repository.SocialAccountRepository
	postMedia      repository.PostMediaRepository
	assets         repository.MediaAssetRepository
	registry       *publisher.Registry
	secretKey      []byte
	publishTimeout time.Duration
	concurrency    int
}

func NewDispatcher(
	posts repository.PostRepository,
	results repository.PlatformResultRepository,
	attempts repository.PublishAttemptRepository,
	accounts repository.SocialAccountRepository,
	postMedia repository.PostMediaRepository,
	assets repository.MediaAssetRepository,
	registry *publisher.Registry,
	secretKey []byte,
	publishTimeout time.Duration) *Dispatcher {
	if publishTimeout <= 0 {
		publishTimeout = 60 * time.Second
	}
	return &Dispatcher{
		posts:          posts,
		results:        results,
		attempts:       attempts,
		accounts:       accounts,
		postMedia:      postMedia,
		assets:         assets,
		registry:       registry,
		secretKey:      secretKey,
		publishTimeout: publishTimeout,
		concurrency:    5,
	}
}

func (d *Dispatcher) PublishPost(ctx context.Context, post *models.Post) error {
	dispatchedAt := time.Now()

	claimed, err := d.posts.ClaimForPosting(ctx, post.ID, dispatchedAt)
	if err != nil {
		return fmt.Errorf("failed to claim post %d: %w", post.ID, err)
	}
	if !claimed {
		slog.Info("post already claimed by another dispatch", "post_id", post.ID)
		return ErrAlreadyClaimed
	}

	content := d.buildContent(ctx, post)

	var wg sync.WaitGroup
	var mu sync.Mutex
	semaphore := make(chan struct{}, d.concurrency)

	successCount := 0
	failureCount := 0

	for _, platform := range post.Platforms {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(platform string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			result := d.attemptPlatform(ctx, post, platform, content, dispatchedAt)

			mu.Lock()
			if result.Success {
				successCount++
			} else {
				failureCount++
			}
			mu.Unlock()
		}(platform)
	}

	wg.Wait()

	if successCount > 0 {
		// Partial success still counts: one platform landing the post is
		// enough to stop retrying the whole thing.
		if err := d.posts.UpdateDispatchOutcome(ctx, post.ID, models.PostStatusPosted, post.RetryCount, nil); err != nil {
			return fmt.Errorf("failed to persist posted state for post %d: %w", post.ID, err)
		}
		return nil
	}

	return d.applyRetryPolicy(ctx, post, dispatchedAt)
}

// ReclaimStale settles a post whose dispatch died between the claim and
// the final persist. The stranded attempt counts as a full failure.
func (d *Dispatcher) ReclaimStale(ctx context.Context, post *models.Post) error {
	slog.Info("reclaiming post stuck in posting", "post_id", post.ID)
	return d.applyRetryPolicy(ctx, post, time.Now())
}

func (d *Dispatcher) applyRetryPolicy(ctx context.Context, post *models.Post, dispatchedAt time.Time) error {
	retryCount := post.RetryCount + 1

	if retryCount < MaxRetries {
		nextAttempt := dispatchedAt.Add(RetryBackoff)
		if err := d.posts.UpdateDispatchOutcome(ctx, post.ID, models.PostStatusScheduled, retryCount, &nextAttempt); err != nil {
			return fmt.Errorf("failed to reschedule post %d: %w", post.ID, err)
		}
		return nil
	}

	if err := d.posts.UpdateDispatchOutcome(ctx, post.ID, models.PostStatusFailed, retryCount, nil); err != nil {
		return fmt.Errorf("failed to persist failed state for post %d: %w", post.ID, err)
	}
	return nil
}

// attemptPlatform publishes to one platform and records the outcome as an
// attempt-log row plus a platform-result row. It never returns an error:
// every failure becomes a recorded failed result.
func (d *Dispatcher) attemptPlatform(ctx context.Context, post *models.Post, platform string, content publisher.Content, dispatchedAt time.Time) *models.PlatformResult {
	result := &models.PlatformResult{
		PostID:   post.ID,
		Platform: platform,
	}
	errorCode := ""

	account, err := d.accounts.GetByUserAndPlatform(ctx, post.UserID, platform)
	switch {
	case err != nil:
		result.ErrorMessage = fmt.Sprintf("account lookup failed: %v", err)
		errorCode = "account_lookup_failed"
	case account == nil:
		result.ErrorMessage = "account not connected"
		errorCode = "account_not_connected"
	default:
		pub, ok := d.registry.Get(platform)
		if !ok {
			result.ErrorMessage = fmt.Sprintf("platform %s is not supported", platform)
			errorCode = "platform_not_supported"
			break
		}

		acc, err := d.decryptAccount(account)
		if err != nil {
			result.ErrorMessage = "unable to decrypt account credentials"
			errorCode = "invalid_credentials"
			break
		}

		publishCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
		published, err := pub.Publish(publishCtx, acc, content)
		cancel()

		if err != nil {
			result.ErrorMessage = err.Error()
			errorCode = "publish_failed"
			slog.Info("publish failed", "post_id", post.ID, "platform", platform, "error", err.Error())
		} else {
			result.Success = true
			result.RemotePostID = published.RemotePostID
			result.URL = published.URL
		}
	}

	d.recordAttempt(ctx, post, platform, result, errorCode, dispatchedAt)

	if _, err := d.results.Create(ctx, result); err != nil {
		slog.Error("failed to save platform result", "post_id", post.ID, "platform", platform, "error", err.Error())
	}

	return result
}

// recordAttempt writes the audit row. Audit durability is best effort: a
// write failure is logged and must not disturb the attempt outcome.
func (d *Dispatcher) recordAttempt(ctx context.Context, post *models.Post, platform string, result *models.PlatformResult, errorCode string, dispatchedAt time.Time) {
	attempt := &models.PublishAttempt{
		UserID:        post.UserID,
		PostID:        post.ID,
		Platform:      platform,
		ScheduledTime: post.ScheduledAt,
		ExecutedTime:  dispatchedAt,
	}

	if result.Success {
		attempt.Status = models.AttemptStatusSuccess
		if response, err := json.Marshal(result); err == nil {
			attempt.Response = string(response)
		}
	} else {
		attempt.Status = models.AttemptStatusFailed
		attempt.ErrorMessage = result.ErrorMessage
		attempt.ErrorCode = errorCode
	}

	if _, err := d.attempts.Create(ctx, attempt); err != nil {
		slog.Error("failed to save publish attempt", "post_id", post.ID, "platform", platform, "error", err.Error())
	}
}

func (d *Dispatcher) decryptAccount(account *models.SocialAccount) (publisher.Account, error) {
	accessToken, err := utils.Decrypt(account.AccessToken, d.secretKey)
	if err != nil {
		slog.Info(err.Error())
		return publisher.Account{}, err
	}

	refreshToken := ""
	if account.RefreshToken != "" {
		refreshToken, err = utils.Decrypt(account.RefreshToken, d.secretKey)
		if err != nil {
			slog.Info(err.Error())
			return publisher.Account{}, err
		}
	}

	return publisher.Account{
		UserID:       account.UserID,
		Platform:     account.Platform,
		RemoteID:     account.AccountID,
		Username:     account.AccountUsername,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// buildContent assembles the publish payload. Media resolution is best
// effort: a post without resolvable media still goes out as text to the
// platforms that allow it.
func (d *Dispatcher) buildContent(ctx context.Context, post *models.Post) publisher.Content {
	content := publisher.Content{
		Body:     post.Body,
		Title:    post.Title,
		Hashtags: post.Hashtags,
		Mentions: post.Mentions,
	}

	medias, err := d.postMedia.ListByPostID(ctx, post.ID)
	if err != nil {
		slog.Info(err.Error())
		return content
	}

	for _, pm := range medias {
		asset, err := d.assets.GetByID(ctx, pm.AssetID)
		if err != nil || asset == nil {
			continue
		}
		content.MediaURLs = append(content.MediaURLs, asset.FileURL)
	}

	return content
}
