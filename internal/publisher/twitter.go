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

const twitterAPIBase = "https://api.twitter.com/2"

type TwitterPublisher struct {
	apiBase    string
	httpClient *http.Client
}

func NewTwitterPublisher() *TwitterPublisher {
	return &TwitterPublisher{
		apiBase:    twitterAPIBase,
		httpClient: &http.Client{},
	}
}

func (p *TwitterPublisher) Platform() string {
	return PlatformTwitter
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (p *TwitterPublisher) Publish(ctx context.Context, acc Account, content Content) (*PublishResult, error) {
	body, err := json.Marshal(tweetRequest{Text: composeText(content)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/tweets", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+acc.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("twitter returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var tweet tweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&tweet); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if len(tweet.Errors) > 0 {
		return nil, errors.New(tweet.Errors[0].Message)
	}
	if tweet.Data.ID == "" {
		return nil, errors.New("twitter response is missing the tweet id")
	}

	return &PublishResult{
		Platform:     PlatformTwitter,
		RemotePostID: tweet.Data.ID,
		URL:          fmt.Sprintf("https://twitter.com/%s/status/%s", acc.Username, tweet.Data.ID),
	}, nil
}

func (p *TwitterPublisher) VerifyConnection(ctx context.Context, acc Account) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.apiBase+"/users/me", nil)
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

func (p *TwitterPublisher) ContentLimits() ContentLimits {
	return ContentLimits{TextLimit: 280, MediaLimit: 4, HashtagLimit: 10}
}

func (p *TwitterPublisher) ValidateContent(content Content) ValidationResult {
	return validateAgainst(p.ContentLimits(), content)
}
