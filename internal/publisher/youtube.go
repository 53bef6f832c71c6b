package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YoutubePublisher uploads the post's video through the YouTube Data API.
type YoutubePublisher struct {
	httpClient *http.Client
}

func NewYoutubePublisher() *YoutubePublisher {
	return &YoutubePublisher{
		httpClient: &http.Client{},
	}
}

func (p *YoutubePublisher) Platform() string {
	return PlatformYoutube
}

func (p *YoutubePublisher) Publish(ctx context.Context, acc Account, content Content) (*PublishResult, error) {
	if len(content.MediaURLs) == 0 {
		return nil, errors.New("youtube requires a video attachment")
	}

	token := &oauth2.Token{AccessToken: acc.AccessToken}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	service, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	tempFile, err := p.downloadVideo(ctx, content.MediaURLs[0])
	if err != nil {
		return nil, err
	}
	defer os.Remove(tempFile)

	file, err := os.Open(tempFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	title := content.Title
	if title == "" {
		title = content.Body
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: composeText(content),
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	call := service.Videos.Insert([]string{"snippet", "status"}, video)
	response, err := call.Media(file).Do()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &PublishResult{
		Platform:     PlatformYoutube,
		RemotePostID: response.Id,
		URL:          fmt.Sprintf("https://youtu.be/%s", response.Id),
	}, nil
}

func (p *YoutubePublisher) downloadVideo(ctx context.Context, fileURL string) (string, error) {
	tempFile, err := os.CreateTemp("", "video-*.mp4")
	if err != nil {
		return "", fmt.Errorf("error creating temporary file: %w", err)
	}
	defer tempFile.Close()

	req, err := http.NewRequestWithContext(ctx, "GET", fileURL, nil)
	if err != nil {
		return "", err
	}

	response, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error downloading video: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected response status: %d", response.StatusCode)
	}

	if _, err := io.Copy(tempFile, response.Body); err != nil {
		return "", fmt.Errorf("error saving video to temporary file: %w", err)
	}

	return tempFile.Name(), nil
}

func (p *YoutubePublisher) VerifyConnection(ctx context.Context, acc Account) (bool, error) {
	token := &oauth2.Token{AccessToken: acc.AccessToken}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	service, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return false, err
	}

	_, err = service.Channels.List([]string{"id"}).Mine(true).Do()
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (p *YoutubePublisher) ContentLimits() ContentLimits {
	return ContentLimits{TextLimit: 5000, MediaLimit: 1, HashtagLimit: 15}
}

func (p *YoutubePublisher) ValidateContent(content Content) ValidationResult {
	result := validateAgainst(p.ContentLimits(), content)
	if len(content.MediaURLs) == 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, "youtube posts require a video")
	}
	return result
}
