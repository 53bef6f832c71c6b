package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGeneratePost(t *testing.T) {
	var gotKey, gotVersion string
	var gotReq anthropicRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{
				{"type": "text", "text": "Shipping season is here."},
			},
		})
	}))
	defer srv.Close()

	g := NewGenerator("sk-test")
	g.apiURL = srv.URL

	text, err := g.GeneratePost(context.Background(), "our v2 launch", "excited")
	if err != nil {
		t.Fatalf("GeneratePost: %v", err)
	}

	if text != "Shipping season is here." {
		t.Errorf("text = %q", text)
	}
	if gotKey != "sk-test" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotVersion != "2023-06-01" {
		t.Errorf("anthropic-version = %q", gotVersion)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v, want one user message", gotReq.Messages)
	}
}

func TestGeneratePostUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "rate_limit_error", "message": "try later"},
		})
	}))
	defer srv.Close()

	g := NewGenerator("sk-test")
	g.apiURL = srv.URL

	if _, err := g.GeneratePost(context.Background(), "anything", ""); err == nil {
		t.Fatal("GeneratePost succeeded against a rate limited API")
	}
}

func TestGeneratePostInputValidation(t *testing.T) {
	g := NewGenerator("")
	if _, err := g.GeneratePost(context.Background(), "topic", ""); err == nil {
		t.Error("missing api key accepted")
	}

	g = NewGenerator("sk-test")
	if _, err := g.GeneratePost(context.Background(), "", ""); err == nil {
		t.Error("empty topic accepted")
	}
}
