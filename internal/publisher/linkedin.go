package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const linkedinAPIBase = "https://api.linkedin.com/v2"

type LinkedinPublisher struct {
	apiBase    string
	httpClient *http.Client
}

func NewLinkedinPublisher() *LinkedinPublisher {
	return &LinkedinPublisher{
		apiBase:    linkedinAPIBase,
		httpClient: &http.Client{},
	}
}

func (p *LinkedinPublisher) Platform() string {
	return PlatformLinkedin
}

type ugcShareContent struct {
	ShareCommentary struct {
		Text string `json:"text"`
	} `json:"shareCommentary"`
	ShareMediaCategory string `json:"shareMediaCategory"`
}

type ugcPostRequest struct {
	Author          string `json:"author"`
	LifecycleState  string `json:"lifecycleState"`
	SpecificContent struct {
		ShareContent ugcShareContent `json:"com.linkedin.ugc.ShareContent"`
	} `json:"specificContent"`
	Visibility struct {
		MemberNetworkVisibility string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
	} `json:"visibility"`
}

type ugcPostResponse struct {
	ID string `json:"id"`
}

func (p *LinkedinPublisher) Publish(ctx context.Context, acc Account, content Content) (*PublishResult, error) {
	var payload ugcPostRequest
	payload.Author = "urn:li:person:" + acc.RemoteID
	payload.LifecycleState = "PUBLISHED"
	payload.SpecificContent.ShareContent.ShareCommentary.Text = composeText(content)
	payload.SpecificContent.ShareContent.ShareMediaCategory = "NONE"
	payload.Visibility.MemberNetworkVisibility = "PUBLIC"

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/ugcPosts", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+acc.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("linkedin returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var share ugcPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&share); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if share.ID == "" {
		return nil, errors.New("linkedin response is missing the share id")
	}

	return &PublishResult{
		Platform:     PlatformLinkedin,
		RemotePostID: share.ID,
		URL:          fmt.Sprintf("https://www.linkedin.com/feed/update/%s", share.ID),
	}, nil
}

func (p *LinkedinPublisher) VerifyConnection(ctx context.Context, acc Account) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.apiBase+"/userinfo", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+acc.AccessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

func (p *LinkedinPublisher) ContentLimits() ContentLimits {
	return ContentLimits{TextLimit: 3000, MediaLimit: 9, HashtagLimit: 30}
}

func (p *LinkedinPublisher) ValidateContent(content Content) ValidationResult {
	return validateAgainst(p.ContentLimits(), content)
}
