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

const instagramAPIBase = "https://graph.instagram.com/v21.0"

// InstagramPublisher publishes through the two-step container flow:
// create a media container for the image URL, then publish the container.
type InstagramPublisher struct {
	apiBase    string
	httpClient *http.Client
}

func NewInstagramPublisher() *InstagramPublisher {
	return &InstagramPublisher{
		apiBase:    instagramAPIBase,
		httpClient: &http.Client{},
	}
}

func (p *InstagramPublisher) Platform() string {
	return PlatformInstagram
}

type igContainerResponse struct {
	ID    string `json:"id"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (p *InstagramPublisher) Publish(ctx context.Context, acc Account, content Content) (*PublishResult, error) {
	if len(content.MediaURLs) == 0 {
		return nil, errors.New("instagram requires at least one media attachment")
	}

	containerID, err := p.createContainer(ctx, acc, content)
	if err != nil {
		return nil, err
	}

	mediaID, err := p.publishContainer(ctx, acc, containerID)
	if err != nil {
		return nil, err
	}

	return &PublishResult{
		Platform:     PlatformInstagram,
		RemotePostID: mediaID,
		URL:          fmt.Sprintf("https://www.instagram.com/p/%s", mediaID),
	}, nil
}

func (p *InstagramPublisher) createContainer(ctx context.Context, acc Account, content Content) (string, error) {
	payload := map[string]interface{}{
		"image_url": content.MediaURLs[0],
		"caption":   composeText(content),
	}

	container, err := p.graphPost(ctx, acc, fmt.Sprintf("%s/%s/media", p.apiBase, acc.RemoteID), payload)
	if err != nil {
		return "", err
	}
	return container, nil
}

func (p *InstagramPublisher) publishContainer(ctx context.Context, acc Account, containerID string) (string, error) {
	payload := map[string]interface{}{
		"creation_id": containerID,
	}

	mediaID, err := p.graphPost(ctx, acc, fmt.Sprintf("%s/%s/media_publish", p.apiBase, acc.RemoteID), payload)
	if err != nil {
		return "", err
	}
	return mediaID, nil
}

func (p *InstagramPublisher) graphPost(ctx context.Context, acc Account, url string, payload map[string]interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+acc.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("instagram returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var container igContainerResponse
	if err := json.NewDecoder(resp.Body).Decode(&container); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	if container.Error.Message != "" {
		return "", errors.New(container.Error.Message)
	}
	if container.ID == "" {
		return "", errors.New("instagram response is missing the media id")
	}

	return container.ID, nil
}

func (p *InstagramPublisher) VerifyConnection(ctx context.Context, acc Account) (bool, error) {
	url := fmt.Sprintf("%s/me?fields=id,username&access_token=%s", p.apiBase, acc.AccessToken)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

func (p *InstagramPublisher) ContentLimits() ContentLimits {
	return ContentLimits{TextLimit: 2200, MediaLimit: 10, HashtagLimit: 30}
}

func (p *InstagramPublisher) ValidateContent(content Content) ValidationResult {
	result := validateAgainst(p.ContentLimits(), content)
	if len(content.MediaURLs) == 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, "instagram posts require media")
	}
	return result
}
