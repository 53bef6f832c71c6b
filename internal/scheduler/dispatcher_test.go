package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/publisher"
	"github.com/postpilothq/postpilot/pkg/utils"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakePostRepo struct {
	mu sync.Mutex

	posts     map[int64]*models.Post
	due       []*models.Post
	stale     []*models.Post
	dueErr    error
	claimErr  error
	updateErr error
	claims    []int64
	outcomes  []dispatchOutcome
}

type dispatchOutcome struct {
	id          int64
	status      string
	retryCount  int
	scheduledAt *time.Time
}

func newFakePostRepo(posts ...*models.Post) *fakePostRepo {
	r := &fakePostRepo{posts: make(map[int64]*models.Post)}
	for _, p := range posts {
		r.posts[p.ID] = p
	}
	return r
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.posts[id], nil
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	return 0, errors.New("not implemented")
}

func (r *fakePostRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	return nil, nil
}

func (r *fakePostRepo) GetDue(ctx context.Context, now time.Time, maxRetries int) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dueErr != nil {
		return nil, r.dueErr
	}
	return r.due, nil
}

func (r *fakePostRepo) GetStalePosting(ctx context.Context, cutoff time.Time) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stale, nil
}

func (r *fakePostRepo) ClaimForPosting(ctx context.Context, id int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimErr != nil {
		return false, r.claimErr
	}
	post, ok := r.posts[id]
	if !ok || post.Status != models.PostStatusScheduled {
		return false, nil
	}
	post.Status = models.PostStatusPosting
	r.claims = append(r.claims, id)
	return true, nil
}

func (r *fakePostRepo) UpdateDispatchOutcome(ctx context.Context, id int64, status string, retryCount int, scheduledAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if post, ok := r.posts[id]; ok {
		post.Status = status
		post.RetryCount = retryCount
		if scheduledAt != nil {
			post.ScheduledAt = *scheduledAt
		}
	}
	r.outcomes = append(r.outcomes, dispatchOutcome{id: id, status: status, retryCount: retryCount, scheduledAt: scheduledAt})
	return nil
}

func (r *fakePostRepo) UpdateStatus(ctx context.Context, status string, postID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if post, ok := r.posts[postID]; ok {
		post.Status = status
	}
	return nil
}

func (r *fakePostRepo) UpdateBody(ctx context.Context, id int64, body string) error { return nil }

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	return true, nil
}

func (r *fakePostRepo) Remove(ctx context.Context, id int64) error { return nil }

type fakeResultRepo struct {
	mu      sync.Mutex
	results []*models.PlatformResult
	err     error
}

func (r *fakeResultRepo) Create(ctx context.Context, result *models.PlatformResult) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.results = append(r.results, result)
	return int64(len(r.results)), nil
}

func (r *fakeResultRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PlatformResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results, nil
}

func (r *fakeResultRepo) byPlatform(platform string) *models.PlatformResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if res.Platform == platform {
			return res
		}
	}
	return nil
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []*models.PublishAttempt
	err      error
}

func (r *fakeAttemptRepo) Create(ctx context.Context, attempt *models.PublishAttempt) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.attempts = append(r.attempts, attempt)
	return int64(len(r.attempts)), nil
}

func (r *fakeAttemptRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PublishAttempt, error) {
	return r.attempts, nil
}

func (r *fakeAttemptRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.PublishAttempt, error) {
	return r.attempts, nil
}

func (r *fakeAttemptRepo) byPlatform(platform string) *models.PublishAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.Platform == platform {
			return a
		}
	}
	return nil
}

type fakeAccountRepo struct {
	accounts map[string]*models.SocialAccount
	err      error
}

func (r *fakeAccountRepo) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	return 0, errors.New("not implemented")
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) GetByUserAndPlatform(ctx context.Context, userID int64, platform string) (*models.SocialAccount, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.accounts[platform], nil
}

func (r *fakeAccountRepo) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	return true, nil
}

func (r *fakeAccountRepo) Remove(ctx context.Context, id int64) error { return nil }

type fakePostMediaRepo struct{}

func (r *fakePostMediaRepo) Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error {
	return nil
}

func (r *fakePostMediaRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error) {
	return nil, nil
}

type fakeAssetRepo struct{}

func (r *fakeAssetRepo) Create(ctx context.Context, tx *sql.Tx, asset *models.MediaAsset) (int64, error) {
	return 0, errors.New("not implemented")
}

func (r *fakeAssetRepo) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	return nil, nil
}

func (r *fakeAssetRepo) CheckByUserID(ctx context.Context, assetID, userID int64) (bool, error) {
	return true, nil
}

type fakePublisher struct {
	platform string
	err      error
	delay    time.Duration

	mu    sync.Mutex
	calls int
}

func (p *fakePublisher) Platform() string { return p.platform }

func (p *fakePublisher) Publish(ctx context.Context, acc publisher.Account, content publisher.Content) (*publisher.PublishResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &publisher.PublishResult{
		Platform:     p.platform,
		RemotePostID: "remote-1",
		URL:          "https://example.com/remote-1",
	}, nil
}

func (p *fakePublisher) VerifyConnection(ctx context.Context, acc publisher.Account) (bool, error) {
	return p.err == nil, p.err
}

func (p *fakePublisher) ContentLimits() publisher.ContentLimits {
	return publisher.ContentLimits{TextLimit: 280, MediaLimit: 4, HashtagLimit: 10}
}

func (p *fakePublisher) ValidateContent(content publisher.Content) publisher.ValidationResult {
	return publisher.ValidationResult{IsValid: true}
}

func encryptToken(t *testing.T, token string) string {
	t.Helper()
	enc, err := utils.Encrypt([]byte(token), testKey)
	if err != nil {
		t.Fatalf("encrypt token: %v", err)
	}
	return enc
}

func connectedAccount(t *testing.T, platform string) *models.SocialAccount {
	t.Helper()
	return &models.SocialAccount{
		ID:              1,
		UserID:          7,
		Platform:        platform,
		AccountID:       "acc-1",
		AccountUsername: "tester",
		AccessToken:     encryptToken(t, "token-"+platform),
	}
}

func scheduledPost(id int64, retryCount int, platforms ...string) *models.Post {
	return &models.Post{
		ID:          id,
		UserID:      7,
		Body:        "release day",
		Platforms:   platforms,
		Status:      models.PostStatusScheduled,
		RetryCount:  retryCount,
		ScheduledAt: time.Now().Add(-time.Minute),
	}
}

type dispatcherEnv struct {
	posts    *fakePostRepo
	results  *fakeResultRepo
	attempts *fakeAttemptRepo
	accounts *fakeAccountRepo
	d        *Dispatcher
}

func newDispatcherEnv(posts *fakePostRepo, accounts *fakeAccountRepo, pubs ...publisher.Publisher) *dispatcherEnv {
	results := &fakeResultRepo{}
	attempts := &fakeAttemptRepo{}
	d := NewDispatcher(posts, results, attempts, accounts, &fakePostMediaRepo{}, &fakeAssetRepo{}, publisher.NewRegistry(pubs...), testKey, time.Second)
	return &dispatcherEnv{posts: posts, results: results, attempts: attempts, accounts: accounts, d: d}
}

func TestPublishPostAllPlatformsSucceed(t *testing.T) {
	post := scheduledPost(1, 0, "twitter", "linkedin")
	posts := newFakePostRepo(post)
	accounts := &fakeAccountRepo{accounts: map[string]*models.SocialAccount{
		"twitter":  connectedAccount(t, "twitter"),
		"linkedin": connectedAccount(t, "linkedin"),
	}}
	env := newDispatcherEnv(posts, accounts,
		&fakePublisher{platform: "twitter"},
		&fakePublisher{platform: "linkedin"},
	)

	if err := env.d.PublishPost(context.Background(), post); err != nil {
		t.Fatalf("PublishPost: %v", err)
	}

	if got := posts.posts[1].Status; got != models.PostStatusPosted {
		t.Errorf("status = %q, want %q", got, models.PostStatusPosted)
	}
	if got := posts.posts[1].RetryCount; got != 0 {
		t.Errorf("retry count = %d, want 0", got)
	}
	if len(env.results.results) != 2 {
		t.Fatalf("platform results = %d, want 2", len(env.results.results))
	}
	if len(env.attempts.attempts) != 2 {
		t.Fatalf("publish attempts = %d, want 2", len(env.attempts.attempts))
	}
	for _, a := range env.attempts.attempts {
		if a.Status != models.AttemptStatusSuccess {
			t.Errorf("attempt status for %s = %q, want %q", a.Platform, a.Status, models.AttemptStatusSuccess)
		}
		if a.Response == "" {
			t.Errorf("attempt response for %s is empty", a.Platform)
		}
	}
}

func TestPublishPostPartialSuccessCountsAsPosted(t *testing.T) {
	post := scheduledPost(1, 0, "twitter", "linkedin")
	posts := newFakePostRepo(post)
	accounts := &fakeAccountRepo{accounts: map[string]*models.SocialAccount{
		"twitter":  connectedAccount(t, "twitter"),
		"linkedin": connectedAccount(t, "linkedin"),
	}}
	env := newDispatcherEnv(posts, accounts,
		&fakePublisher{platform: "twitter"},
		&fakePublisher{platform: "linkedin", err: errors.New("upstream 500")},
	)

	if err := env.d.PublishPost(context.Background(), post); err != nil {
		t.Fatalf("PublishPost: %v", err)
	}

	if got := posts.posts[1].Status; got != models.PostStatusPosted {
		t.Errorf("status = %q, want %q", got, models.PostStatusPosted)
	}
	if got := posts.posts[1].RetryCount; got != 0 {
		t.Errorf("retry count = %d, want 0", got)
	}

	failed := env.results.byPlatform("linkedin")
	if failed == nil || failed.Success {
		t.Fatalf("linkedin result = %+v, want recorded failure", failed)
	}
	if !strings.Contains(failed.ErrorMessage, "upstream 500") {
		t.Errorf("linkedin error = %q, want publish error", failed.ErrorMessage)
	}
	if a := env.attempts.byPlatform("linkedin"); a == nil || a.ErrorCode != "publish_failed" {
		t.Errorf("linkedin attempt = %+v, want error code publish_failed", a)
	}
}

func TestPublishPostAllFailuresReschedules(t *testing.T) {
	post := scheduledPost(1, 0, "twitter")
	posts := newFakePostRepo(post)
	accounts := &fakeAccountRepo{accounts: map[string]*models.SocialAccount{
		"twitter": connectedAccount(t, "twitter"),
	}}
	env := newDispatcherEnv(posts, accounts,
		&fakePublisher{platform: "twitter", err: errors.New("rate limited")},
	)

	before := time.Now()
	if err := env.d.PublishPost(context.Background(), post); err != nil {
		t.Fatalf("PublishPost: %v", err)
	}

	got := posts.posts[1]
	if got.Status != models.PostStatusScheduled {
		t.Errorf("status = %q, want %q", got.Status, models.PostStatusScheduled)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", got.RetryCount)
	}

	wantEarliest := before.Add(RetryBackoff)
	if got.ScheduledAt.Before(wantEarliest.Add(-time.Second)) {
		t.Errorf("rescheduled at %v, want >= %v", got.ScheduledAt, wantEarliest)
	}
}

func TestPublishPostExhaustedRetriesFailsTerminally(t *testing.T) {
	post := scheduledPost(1, MaxRetries-1, "twitter")
	posts := newFakePostRepo(post)
	accounts := &fakeAccountRepo{accounts: map[string]*models.SocialAccount{
		"twitter": connectedAccount(t, "twitter"),
	}}
	env := newDispatcherEnv(posts, accounts,
		&fakePublisher{platform: "twitter", err: errors.New("rate limited")},
	)

	if err := env.d.PublishPost(context.Background(), post); err != nil {
		t.Fatalf("PublishPost: %v", err)
	}

	got := posts.posts[1]
	if got.Status != models.PostStatusFailed {
		t.Errorf("status = %q, want %q", got.Status, models.PostStatusFailed)
	}
	if got.RetryCount != MaxRetries {
		t.Errorf("retry count = %d, want %d", got.RetryCount, MaxRetries)
	}
}

func TestPublishPostNotClaimable(t *testing.T) {
	post := scheduledPost(1, 0, "twitter")
	post.Status = models.PostStatusPosting

	posts := newFakePostRepo(post)
	env := newDispatcherEnv(posts, &fakeAccountRepo{}, &fakePublisher{platform: "twitter"})

	err := env.d.PublishPost(context.Background(), &models.Post{ID: 1, Platforms: []string{"twitter"}})
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("err = %v, want ErrAlreadyClaimed", err)
	}
	if len(env.results.results) != 0 {
		t.Errorf("platform results = %d, want 0", len(env.results.results))
	}
	if len(env.attempts.attempts) != 0 {
		t.Errorf("publish attempts = %d, want 0", len(env.attempts.attempts))
	}
}

func TestPublishPostFailureTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		platform  string
		accounts  *fakeAccountRepo
		publisher publisher.Publisher
		wantCode  string
	}{
		{
			name:     "account not connected",
			platform: "twitter",
			accounts: &fakeAccountRepo{accounts: map[string]*models.SocialAccount{}},
			publisher: &fakePublisher{
				platform: "twitter",
			},
			wantCode: "account_not_connected",
		},
		{
			name:     "account lookup failed",
			platform: "twitter",
			accounts: &fakeAccountRepo{err: errors.New("connection refused")},
			publisher: &fakePublisher{
				platform: "twitter",
			},
			wantCode: "account_lookup_failed",
		},
		{
			name:     "platform not registered",
			platform: "tiktok",
			accounts: func() *fakeAccountRepo {
				return &fakeAccountRepo{accounts: map[string]*models.SocialAccount{
					"tiktok": {ID: 1, UserID: 7, Platform: "tiktok", AccessToken: "whatever"},
				}}
			}(),
			publisher: &fakePublisher{
				platform: "twitter",
			},
			wantCode: "platform_not_supported",
		},
		{
			name:     "token not decryptable",
			platform: "twitter",
			accounts: &fakeAccountRepo{accounts: map[string]*models.SocialAccount{
				"twitter": {ID: 1, UserID: 7, Platform: "twitter", AccessToken: "not-a-ciphertext"},
			}},
			publisher: &fakePublisher{
				platform: "twitter",
			},
			wantCode: "invalid_credentials",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := scheduledPost(1, 0, tt.platform)
			posts := newFakePostRepo(post)
			env := newDispatcherEnv(posts, tt.accounts, tt.publisher)

			if err := env.d.PublishPost(context.Background(), post); err != nil {
				t.Fatalf("PublishPost: %v", err)
			}

			if got := posts.posts[1].Status; got != models.PostStatusScheduled {
				t.Errorf("status = %q, want %q", got, models.PostStatusScheduled)
			}

			attempt := env.attempts.byPlatform(tt.platform)
			if attempt == nil {
				t.Fatal("no publish attempt recorded")
			}
			if attempt.Status != models.AttemptStatusFailed {
				t.Errorf("attempt status = %q, want %q", attempt.Status, models.AttemptStatusFailed)
			}
			if attempt.ErrorCode != tt.wantCode {
				t.Errorf("error code = %q, want %q", attempt.ErrorCode, tt.wantCode)
			}

			result := env.results.byPlatform(tt.platform)
			if result == nil || result.Success {
				t.Errorf("platform result = %+v, want recorded failure", result)
			}
		})
	}
}

func TestPublishPostTimesOutSlowPublisher(t *testing.T) {
	post := scheduledPost(1, 0, "twitter")
	posts := newFakePostRepo(post)
	accounts := &fakeAccountRepo{accounts: map[string]*models.SocialAccount{
		"twitter": connectedAccount(t, "twitter"),
	}}

	slow := &fakePublisher{platform: "twitter", delay: 5 * time.Second}
	results := &fakeResultRepo{}
	attempts := &fakeAttemptRepo{}
	d := NewDispatcher(posts, results, attempts, accounts, &fakePostMediaRepo{}, &fakeAssetRepo{}, publisher.NewRegistry(slow), testKey, 50*time.Millisecond)

	if err := d.PublishPost(context.Background(), post); err != nil {
		t.Fatalf("PublishPost: %v", err)
	}

	if got := posts.posts[1].Status; got != models.PostStatusScheduled {
		t.Errorf("status = %q, want %q", got, models.PostStatusScheduled)
	}
	if a := attempts.byPlatform("twitter"); a == nil || a.ErrorCode != "publish_failed" {
		t.Errorf("attempt = %+v, want error code publish_failed", a)
	}
}

func TestPublishPostAttemptWrittenBeforeResult(t *testing.T) {
	post := scheduledPost(1, 0, "twitter")
	posts := newFakePostRepo(post)
	accounts := &fakeAccountRepo{accounts: map[string]*models.SocialAccount{
		"twitter": connectedAccount(t, "twitter"),
	}}

	attempts := &fakeAttemptRepo{}
	results := &orderTrackingResultRepo{attempts: attempts}
	d := NewDispatcher(posts, results, attempts, accounts, &fakePostMediaRepo{}, &fakeAssetRepo{}, publisher.NewRegistry(&fakePublisher{platform: "twitter"}), testKey, time.Second)

	if err := d.PublishPost(context.Background(), post); err != nil {
		t.Fatalf("PublishPost: %v", err)
	}
	if !results.sawAttemptFirst {
		t.Error("platform result was written before the attempt log row")
	}
}

// orderTrackingResultRepo checks the audit row lands before the result row.
type orderTrackingResultRepo struct {
	fakeResultRepo
	attempts        *fakeAttemptRepo
	sawAttemptFirst bool
}

func (r *orderTrackingResultRepo) Create(ctx context.Context, result *models.PlatformResult) (int64, error) {
	r.attempts.mu.Lock()
	r.sawAttemptFirst = len(r.attempts.attempts) > 0
	r.attempts.mu.Unlock()
	return r.fakeResultRepo.Create(ctx, result)
}

func TestPublishPostResultWriteFailureIsBestEffort(t *testing.T) {
	post := scheduledPost(1, 0, "twitter")
	posts := newFakePostRepo(post)
	accounts := &fakeAccountRepo{accounts: map[string]*models.SocialAccount{
		"twitter": connectedAccount(t, "twitter"),
	}}

	results := &fakeResultRepo{err: errors.New("disk full")}
	attempts := &fakeAttemptRepo{err: errors.New("disk full")}
	d := NewDispatcher(posts, results, attempts, accounts, &fakePostMediaRepo{}, &fakeAssetRepo{}, publisher.NewRegistry(&fakePublisher{platform: "twitter"}), testKey, time.Second)

	if err := d.PublishPost(context.Background(), post); err != nil {
		t.Fatalf("PublishPost: %v", err)
	}
	if got := posts.posts[1].Status; got != models.PostStatusPosted {
		t.Errorf("status = %q, want %q", got, models.PostStatusPosted)
	}
}

func TestReclaimStaleAppliesRetryPolicy(t *testing.T) {
	tests := []struct {
		name       string
		retryCount int
		wantStatus string
		wantRetry  int
	}{
		{name: "retries remain", retryCount: 0, wantStatus: models.PostStatusScheduled, wantRetry: 1},
		{name: "retries exhausted", retryCount: MaxRetries - 1, wantStatus: models.PostStatusFailed, wantRetry: MaxRetries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := scheduledPost(1, tt.retryCount, "twitter")
			post.Status = models.PostStatusPosting

			posts := newFakePostRepo(post)
			env := newDispatcherEnv(posts, &fakeAccountRepo{}, &fakePublisher{platform: "twitter"})

			if err := env.d.ReclaimStale(context.Background(), post); err != nil {
				t.Fatalf("ReclaimStale: %v", err)
			}

			got := posts.posts[1]
			if got.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tt.wantStatus)
			}
			if got.RetryCount != tt.wantRetry {
				t.Errorf("retry count = %d, want %d", got.RetryCount, tt.wantRetry)
			}
		})
	}
}
