package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"idobridge/pkg/activity"
	"idobridge/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg := &config.Config{}
	_, err := New(cfg)
	if err == nil {
		t.Fatal("expected error when API key is missing")
	}
}

func TestNewUsesConfiguredAPIKeyEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("TEST_OPENAI_API_KEY", "sk-test")

	cfg := &config.Config{}
	cfg.Providers.OpenAI.APIKeyEnv = "TEST_OPENAI_API_KEY"

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.model != defaultModel {
		t.Fatalf("model = %q, want %q", client.model, defaultModel)
	}
	if client.instructions != defaultInstructions {
		t.Fatalf("instructions = %q, want default", client.instructions)
	}
}

func TestNewRejectsForeignModel(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-default")

	cfg := &config.Config{}
	cfg.Responder.Model = "anthropic/claude"

	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for non-openai model")
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
		{name: "missing model id", input: "openai/", wantErr: true},
		{name: "empty uses default", input: "", want: defaultModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeModel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("normalizeModel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("normalizeModel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// recordedInputs collects the "input" field of every Responses request.
type recordedInputs struct {
	mu     sync.Mutex
	inputs []any
}

func (r *recordedInputs) add(input any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, input)
}

func (r *recordedInputs) list() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.inputs...)
}

func newFakeResponsesAPI(t *testing.T, inputs *recordedInputs) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/models"):
			_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
		case strings.HasSuffix(r.URL.Path, "/responses"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			inputs.add(body["input"])
			if model, _ := body["model"].(string); model != defaultModel {
				http.Error(w, "unexpected model", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{
			  "id": "resp_1",
			  "object": "response",
			  "created_at": 0,
			  "model": "gpt-5-mini",
			  "status": "completed",
			  "output": [{
			    "type": "message",
			    "id": "msg_1",
			    "role": "assistant",
			    "status": "completed",
			    "content": [{"type": "output_text", "text": " hello alice ", "annotations": []}]
			  }]
			}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	return server
}

func TestRespondAgainstFakeAPI(t *testing.T) {
	inputs := &recordedInputs{}
	server := newFakeResponsesAPI(t, inputs)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := &config.Config{}
	cfg.Providers.OpenAI.BaseURL = server.URL + "/v1/"

	client, err := New(cfg)
	require.NoError(t, err)
	require.Equal(t, "openai", client.Name())
	require.NoError(t, client.Health(context.Background()))

	text, err := client.Respond(context.Background(), activity.Activity{
		Text: "hi @bot",
		From: activity.ChannelAccount{ID: "9", Name: "alice"},
	})
	require.NoError(t, err)
	require.Equal(t, "hello alice", text)
	require.Equal(t, []any{"alice: hi @bot"}, inputs.list())
}

func TestRespondReplaysRoomHistory(t *testing.T) {
	inputs := &recordedInputs{}
	server := newFakeResponsesAPI(t, inputs)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := &config.Config{}
	cfg.Providers.OpenAI.BaseURL = server.URL + "/v1/"
	cfg.Responder.HistoryTurns = 1

	client, err := New(cfg)
	require.NoError(t, err)

	mention := func(roomID string, text string) activity.Activity {
		return activity.Activity{
			ChannelID: roomID,
			Text:      text,
			From:      activity.ChannelAccount{ID: "9", Name: "alice"},
			Recipient: activity.ChannelAccount{ID: "42", Name: "hibot"},
		}
	}

	_, err = client.Respond(context.Background(), mention("3", "first"))
	require.NoError(t, err)
	_, err = client.Respond(context.Background(), mention("3", "second"))
	require.NoError(t, err)
	_, err = client.Respond(context.Background(), mention("4", "elsewhere"))
	require.NoError(t, err)

	require.Equal(t, []any{
		"alice: first",
		"alice: first\nhibot: hello alice\nalice: second",
		"alice: elsewhere",
	}, inputs.list())
}

func TestRespondRequiresText(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	client, err := New(&config.Config{})
	require.NoError(t, err)

	_, err = client.Respond(context.Background(), activity.Activity{Text: "  "})
	require.Error(t, err)
}
