package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/types"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role    string
		wantErr bool
	}{
		{role: "system"},
		{role: "user"},
		{role: "assistant"},
		{role: "tool", wantErr: true},
	}
	for _, tt := range tests {
		msg, err := convertMessage(types.Message{Role: tt.role, Content: "x"})
		if (err != nil) != tt.wantErr {
			t.Fatalf("convertMessage(%s) err = %v", tt.role, err)
		}
		if tt.wantErr {
			continue
		}
		switch tt.role {
		case "system":
			if msg.OfSystem == nil {
				t.Error("expected OfSystem to be set")
			}
		case "user":
			if msg.OfUser == nil {
				t.Error("expected OfUser to be set")
			}
		case "assistant":
			if msg.OfAssistant == nil {
				t.Error("expected OfAssistant to be set")
			}
		}
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty API key")
	}
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.model != DefaultModel {
		t.Errorf("model = %q, want %q", p.model, DefaultModel)
	}
}

func TestCompleteAgainstFakeServer(t *testing.T) {
	t.Parallel()

	var got struct {
		Model               string  `json:"model"`
		Temperature         float64 `json:"temperature"`
		MaxCompletionTokens int     `json:"max_completion_tokens"`
		Messages            []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "It is noon."}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/"), WithMaxRetries(0))
	if err != nil {
		t.Fatal(err)
	}
	temp := 0.1
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "Be brief.",
		Messages: []types.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "Hello."},
			{Role: "user", Content: "what time is it"},
		},
		Temperature: &temp,
		MaxTokens:   30,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Content != "It is noon." || resp.Usage.TotalTokens != 16 {
		t.Errorf("response = %+v", resp)
	}
	if got.Model != "gpt-4o-mini" || got.Temperature != 0.1 || got.MaxCompletionTokens != 30 {
		t.Errorf("request params = %+v", got)
	}
	if len(got.Messages) != 4 || got.Messages[0].Role != "system" || got.Messages[3].Content != "what time is it" {
		t.Errorf("request messages = %+v", got.Messages)
	}
}
