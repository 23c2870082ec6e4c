package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"vfrelay/pkg/config"
	"vfrelay/pkg/voiceflow"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New(config.OpenAIProviderConfig{Model: "gpt-5-mini"}, nil)
	if err == nil {
		t.Fatal("expected error when API key is missing")
	}
}

func TestNewUsesConfiguredAPIKeyEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("TEST_OPENAI_API_KEY", "sk-test")

	client, err := New(config.OpenAIProviderConfig{APIKeyEnv: "TEST_OPENAI_API_KEY", Model: "gpt-5-mini"}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client == nil {
		t.Fatal("expected client")
	}
}

func TestNewFallsBackToDefaultAPIKeyEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-default")
	t.Setenv("TEST_OPENAI_API_KEY", "")

	client, err := New(config.OpenAIProviderConfig{APIKeyEnv: "TEST_OPENAI_API_KEY", Model: "openai/gpt-5-mini"}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.model != "gpt-5-mini" {
		t.Fatalf("model = %q, want gpt-5-mini", client.model)
	}
}

func TestNormalizeModel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain model", input: "gpt-5.2", want: "gpt-5.2"},
		{name: "openai prefix", input: "openai/gpt-5.2", want: "gpt-5.2"},
		{name: "other provider", input: "anthropic/claude", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeModel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeModel error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("normalizeModel = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInteractReusesConversationPerSession(t *testing.T) {
	var mu sync.Mutex
	created := 0
	conversationsUsed := []string{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/conversations"):
			mu.Lock()
			created++
			id := fmt.Sprintf("conv_%d", created)
			mu.Unlock()
			fmt.Fprintf(w, `{"id":%q,"object":"conversation","created_at":1,"metadata":{}}`, id)
		case strings.HasSuffix(r.URL.Path, "/responses"):
			var body struct {
				Conversation struct {
					ID string `json:"id"`
				} `json:"conversation"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			conversationsUsed = append(conversationsUsed, body.Conversation.ID)
			mu.Unlock()
			fmt.Fprint(w, `{"id":"resp_1","object":"response","created_at":1,"status":"completed","model":"gpt-5-mini","output":[{"type":"message","id":"msg_1","role":"assistant","status":"completed","content":[{"type":"output_text","text":"Hello there","annotations":[]}]}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "sk-test")
	client, err := New(config.OpenAIProviderConfig{BaseURL: server.URL, Model: "gpt-5-mini"}, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for range 2 {
		traces, err := client.Interact(context.Background(), "telegram:1", "hi")
		if err != nil {
			t.Fatalf("Interact error: %v", err)
		}
		if len(traces) != 1 || traces[0].Type != voiceflow.TraceText {
			t.Fatalf("traces = %+v, want one text trace", traces)
		}
		text, err := traces[0].Text()
		if err != nil || text.Message != "Hello there" {
			t.Fatalf("text = %+v err = %v", text, err)
		}
	}

	if created != 1 {
		t.Fatalf("conversations created = %d, want 1", created)
	}
	if len(conversationsUsed) != 2 || conversationsUsed[0] != "conv_1" || conversationsUsed[1] != "conv_1" {
		t.Fatalf("conversations used = %v", conversationsUsed)
	}
}

func TestInteractRejectsEmptyInput(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	client, err := New(config.OpenAIProviderConfig{Model: "gpt-5-mini"}, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if _, err := client.Interact(context.Background(), "s", "  "); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := client.Interact(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error for empty session key")
	}
}
