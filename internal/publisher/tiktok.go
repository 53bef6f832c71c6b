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

	"github.com/postpilothq/postpilot/internal/transfer"
)

const tiktokAPIBase = "https://open.tiktokapis.com/v2"

// TiktokPublisher initializes a video post with PULL_FROM_URL so TikTok
// fetches the media from our public asset URL.
type TiktokPublisher struct {
	apiBase    string
	httpClient *http.Client
}

func NewTiktokPublisher() *TiktokPublisher {
	return &TiktokPublisher{
		apiBase:    tiktokAPIBase,
		httpClient: &http.Client{},
	}
}

func (p *TiktokPublisher) Platform() string {
	return PlatformTiktok
}

func (p *TiktokPublisher) Publish(ctx context.Context, acc Account, content Content) (*PublishResult, error) {
	if len(content.MediaURLs) == 0 {
		return nil, errors.New("tiktok requires a video attachment")
	}

	uploadRequest := transfer.TiktokVideoUploadRequest{
		PostInfo: transfer.TiktokVideoPostInfo{
			Title:                 composeText(content),
			PrivacyLevel:          "PUBLIC_TO_EVERYONE",
			VideoCoverTimestampMs: 1000,
		},
		SourceInfo: transfer.TiktokVideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: content.MediaURLs[0],
		},
	}

	jsonData, err := json.Marshal(uploadRequest)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/post/publish/video/init/", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+acc.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tiktok returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var upload transfer.TiktokUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&upload); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if upload.Error.Code != "" && upload.Error.Code != "ok" {
		return nil, errors.New(upload.Error.Message)
	}
	if upload.Data.PublishID == "" {
		return nil, errors.New("tiktok response is missing the publish id")
	}

	return &PublishResult{
		Platform:     PlatformTiktok,
		RemotePostID: upload.Data.PublishID,
		URL:          fmt.Sprintf("https://www.tiktok.com/@%s", acc.Username),
	}, nil
}

func (p *TiktokPublisher) VerifyConnection(ctx context.Context, acc Account) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.apiBase+"/user/info/?fields=open_id,username", nil)
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

func (p *TiktokPublisher) ContentLimits() ContentLimits {
	return ContentLimits{TextLimit: 2200, MediaLimit: 35, HashtagLimit: 30}
}

func (p *TiktokPublisher) ValidateContent(content Content) ValidationResult {
	result := validateAgainst(p.ContentLimits(), content)
	if len(content.MediaURLs) == 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, "tiktok posts require a video")
	}
	return result
}
