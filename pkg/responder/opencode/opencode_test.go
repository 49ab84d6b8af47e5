package opencode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"idobridge/pkg/activity"
	"idobridge/pkg/config"

	sdk "github.com/sst/opencode-sdk-go"
	"github.com/stretchr/testify/require"
)

type promptRequest struct {
	Parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"parts"`
	Agent string `json:"agent"`
	Model struct {
		ProviderID string `json:"providerID"`
		ModelID    string `json:"modelID"`
	} `json:"model"`
}

type recordedPrompt struct {
	sessionID string
	body      promptRequest
}

// fakeServer is a minimal opencode server: health, session creation and prompts.
type fakeServer struct {
	mu       sync.Mutex
	healthy  bool
	sessions []string
	prompts  []recordedPrompt
	failWith int
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/global/health":
		_ = json.NewEncoder(w).Encode(map[string]any{"healthy": f.healthy, "version": "0.9.0"})
	case r.Method == http.MethodPost && r.URL.Path == "/session":
		id := fmt.Sprintf("ses_%d", len(f.sessions)+1)
		f.sessions = append(f.sessions, id)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":        id,
			"title":     "room",
			"version":   "0.9.0",
			"projectID": "proj",
			"directory": "/srv",
			"time":      map[string]any{"created": 1, "updated": 1},
		})
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/session/") && strings.HasSuffix(r.URL.Path, "/message"):
		if f.failWith != 0 {
			w.WriteHeader(f.failWith)
			_, _ = w.Write([]byte(`{"error":"bad request"}`))
			return
		}

		sessionID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/session/"), "/message")
		var body promptRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.prompts = append(f.prompts, recordedPrompt{sessionID: sessionID, body: body})

		text := ""
		if len(body.Parts) > 0 {
			text = body.Parts[0].Text
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"info": map[string]any{
				"id":         "msg_1",
				"sessionID":  sessionID,
				"role":       "assistant",
				"providerID": "openai",
				"modelID":    "gpt-5-mini",
			},
			"parts": []map[string]any{
				{"id": "prt_1", "messageID": "msg_1", "sessionID": sessionID, "type": "reasoning", "text": "thinking"},
				{"id": "prt_2", "messageID": "msg_1", "sessionID": sessionID, "type": "text", "text": "re " + text},
			},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeServer, model string, agent string) *Client {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Responder.Model = model
	cfg.Providers.OpenCode.BaseURL = server.URL
	cfg.Providers.OpenCode.Agent = agent

	client, err := New(cfg)
	require.NoError(t, err)
	return client
}

func mention(roomID string, sender string, text string) activity.Activity {
	return activity.Activity{
		ID:        "7",
		Type:      activity.TypeMessage,
		ChannelID: roomID,
		From:      activity.ChannelAccount{ID: "9", Name: sender},
		Recipient: activity.ChannelAccount{ID: "42", Name: "hibot"},
		Text:      text,
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	cfg := &config.Config{}

	_, err := New(cfg)
	if err == nil {
		t.Fatal("expected error when base_url is missing")
	}
}

func TestNewRejectsMalformedModel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Providers.OpenCode.BaseURL = "http://127.0.0.1:4096"
	cfg.Responder.Model = "gpt-5-mini"

	_, err := New(cfg)
	require.ErrorContains(t, err, "provider/model")
}

func TestHealth(t *testing.T) {
	fake := &fakeServer{healthy: true}
	client := newTestClient(t, fake, "", "")
	require.NoError(t, client.Health(context.Background()))

	fake.mu.Lock()
	fake.healthy = false
	fake.mu.Unlock()
	require.ErrorContains(t, client.Health(context.Background()), "unhealthy")
}

func TestRespondKeepsOneSessionPerRoom(t *testing.T) {
	fake := &fakeServer{healthy: true}
	client := newTestClient(t, fake, "openai/gpt-5-mini", "chat")
	ctx := context.Background()

	reply, err := client.Respond(ctx, mention("3", "alice", "@hibot hello"))
	require.NoError(t, err)
	require.Equal(t, "re alice: @hibot hello", reply)

	_, err = client.Respond(ctx, mention("3", "bob", "@hibot again"))
	require.NoError(t, err)

	_, err = client.Respond(ctx, mention("4", "", "@hibot other room"))
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()

	require.Equal(t, []string{"ses_1", "ses_2"}, fake.sessions)
	require.Len(t, fake.prompts, 3)
	require.Equal(t, "ses_1", fake.prompts[0].sessionID)
	require.Equal(t, "ses_1", fake.prompts[1].sessionID)
	require.Equal(t, "ses_2", fake.prompts[2].sessionID)
	require.Equal(t, "user: @hibot other room", fake.prompts[2].body.Parts[0].Text)

	first := fake.prompts[0].body
	require.Equal(t, "text", first.Parts[0].Type)
	require.Equal(t, "chat", first.Agent)
	require.Equal(t, "openai", first.Model.ProviderID)
	require.Equal(t, "gpt-5-mini", first.Model.ModelID)
}

func TestRespondSurfacesPromptFailure(t *testing.T) {
	fake := &fakeServer{healthy: true, failWith: http.StatusBadRequest}
	client := newTestClient(t, fake, "", "")

	_, err := client.Respond(context.Background(), mention("3", "alice", "@hibot hello"))
	require.ErrorContains(t, err, "prompt failed")
}

func TestRespondRequiresText(t *testing.T) {
	client := newTestClient(t, &fakeServer{healthy: true}, "", "")

	_, err := client.Respond(context.Background(), mention("3", "alice", "   "))
	require.Error(t, err)
}

func TestParseModelRef(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantOK     bool
		wantProvID string
		wantModel  string
	}{
		{name: "valid", input: "openai/gpt-5-mini", wantOK: true, wantProvID: "openai", wantModel: "gpt-5-mini"},
		{name: "missing slash", input: "gpt-5-mini", wantOK: false},
		{name: "empty provider", input: "/gpt-5-mini", wantOK: false},
		{name: "empty model", input: "openai/", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provID, modelID, ok := parseModelRef(tt.input)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantProvID, provID)
			require.Equal(t, tt.wantModel, modelID)
		})
	}
}

func TestExtractText(t *testing.T) {
	parts := []sdk.Part{
		{Type: sdk.PartTypeReasoning, Text: "should be ignored"},
		{Type: sdk.PartTypeText, Text: "  first line  "},
		{Type: sdk.PartTypeText, Text: ""},
		{Type: sdk.PartTypeText, Text: "second line"},
	}

	require.Equal(t, "first line\nsecond line", extractText(parts))
}

func TestBuildBasicAuthHeader(t *testing.T) {
	t.Setenv("TEST_OPENCODE_PASSWORD", "secret")

	header, ok := buildBasicAuthHeader(config.OpenCodeProviderConfig{PasswordEnv: "TEST_OPENCODE_PASSWORD"})
	require.True(t, ok)
	require.Equal(t, "Basic b3BlbmNvZGU6c2VjcmV0", header)

	t.Setenv("TEST_OPENCODE_PASSWORD", "")
	_, ok = buildBasicAuthHeader(config.OpenCodeProviderConfig{PasswordEnv: "TEST_OPENCODE_PASSWORD"})
	require.False(t, ok)
}
