package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const anthropicAPIURL = "https://api.anthropic.com/v1/messages"

// Generator drafts post copy through the Anthropic messages API.
type Generator struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

func NewGenerator(apiKey string) *Generator {
	return &Generator{
		apiKey:     apiKey,
		apiURL:     anthropicAPIURL,
		httpClient: &http.Client{},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// GeneratePost writes a short social post about topic. Tone is optional.
func (g *Generator) GeneratePost(ctx context.Context, topic, tone string) (string, error) {
	if g.apiKey == "" {
		return "", errors.New("anthropic api key is not configured")
	}
	if topic == "" {
		return "", errors.New("topic is empty")
	}

	if tone == "" {
		tone = "conversational"
	}

	prompt := fmt.Sprintf(`You are a social media copywriter.

Write a single social media post about:
%s

The post should:
1. Sound %s, not corporate or salesy
2. Start with a hook that grabs attention
3. Stay under 280 characters so it fits every platform
4. Not include hashtags; those are added separately

Respond with the post text only, no preamble.`, topic, tone)

	return g.callModel(ctx, prompt)
}

func (g *Generator) callModel(ctx context.Context, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1000,
		Messages: []anthropicMessage{
			{
				Role:    "user",
				Content: prompt,
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Anthropic API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Info("anthropic returned non-200 status", "status", resp.StatusCode)
		return "", fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, string(body))
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != nil {
		return "", errors.New(response.Error.Message)
	}
	if len(response.Content) == 0 {
		return "", errors.New("empty response from model")
	}

	return strings.TrimSpace(response.Content[0].Text), nil
}
