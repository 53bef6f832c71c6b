package publisher

import (
	"context"
	"fmt"
	"sort"
)

const (
	PlatformTwitter   = "twitter"
	PlatformLinkedin  = "linkedin"
	PlatformInstagram = "instagram"
	PlatformTiktok    = "tiktok"
	PlatformYoutube   = "youtube"
)

// Account carries the decrypted credential bundle for one connected
// platform account. Publishers never refresh or mutate it.
type Account struct {
	UserID       int64
	Platform     string
	RemoteID     string
	Username     string
	AccessToken  string
	RefreshToken string
}

type Content struct {
	Body      string
	Title     string
	Hashtags  []string
	Mentions  []string
	MediaURLs []string
}

type PublishResult struct {
	Platform     string `json:"platform"`
	RemotePostID string `json:"remote_post_id"`
	URL          string `json:"url"`
}

type ContentLimits struct {
	TextLimit    int `json:"text_limit"`
	MediaLimit   int `json:"media_limit"`
	HashtagLimit int `json:"hashtag_limit"`
}

type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// Publisher is the capability one platform implementation provides.
// Publish either fully succeeds (remote post exists) or fully fails.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, acc Account, content Content) (*PublishResult, error)
	VerifyConnection(ctx context.Context, acc Account) (bool, error)
	ContentLimits() ContentLimits
	ValidateContent(content Content) ValidationResult
}

// Registry maps platform identifiers to their publisher implementation.
// Adding a platform means registering an implementation, not editing a
// dispatch branch.
type Registry struct {
	publishers map[string]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[string]Publisher, len(publishers))}
	for _, p := range publishers {
		r.publishers[p.Platform()] = p
	}
	return r
}

func (r *Registry) Get(platform string) (Publisher, bool) {
	p, ok := r.publishers[platform]
	return p, ok
}

func (r *Registry) Platforms() []string {
	platforms := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		platforms = append(platforms, name)
	}
	sort.Strings(platforms)
	return platforms
}

func validateAgainst(limits ContentLimits, content Content) ValidationResult {
	var errs []string

	if content.Body == "" {
		errs = append(errs, "text body is empty")
	}
	if limits.TextLimit > 0 && len([]rune(content.Body)) > limits.TextLimit {
		errs = append(errs, fmt.Sprintf("text exceeds %d characters", limits.TextLimit))
	}
	if limits.MediaLimit >= 0 && len(content.MediaURLs) > limits.MediaLimit {
		errs = append(errs, fmt.Sprintf("more than %d media attachments", limits.MediaLimit))
	}
	if limits.HashtagLimit > 0 && len(content.Hashtags) > limits.HashtagLimit {
		errs = append(errs, fmt.Sprintf("more than %d hashtags", limits.HashtagLimit))
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// composeText appends hashtags to the body the way the platforms expect
// them inline.
func composeText(content Content) string {
	text := content.Body
	for _, tag := range content.Hashtags {
		if tag == "" {
			continue
		}
		if tag[0] != '#' {
			tag = "#" + tag
		}
		text += " " + tag
	}
	return text
}
