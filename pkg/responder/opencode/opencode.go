package opencode

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"idobridge/pkg/activity"
	"idobridge/pkg/config"

	sdk "github.com/sst/opencode-sdk-go"
	"github.com/sst/opencode-sdk-go/option"
)

// Client answers mentions through an opencode server. Each Idobata room gets
// its own opencode session, so the server keeps the room's conversation.
type Client struct {
	client         *sdk.Client
	requestTimeout time.Duration
	model          string
	agent          string

	mu       sync.Mutex
	sessions map[string]string
}

type healthResponse struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version"`
}

func New(cfg *config.Config) (*Client, error) {
	providerCfg := cfg.Providers.OpenCode
	baseURL := strings.TrimSpace(providerCfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("providers.opencode.base_url is required")
	}

	model := strings.TrimSpace(cfg.Responder.Model)
	if model != "" {
		if _, _, ok := parseModelRef(model); !ok {
			return nil, fmt.Errorf("opencode model must look like provider/model, got %q", model)
		}
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if authHeader, ok := buildBasicAuthHeader(providerCfg); ok {
		opts = append(opts, option.WithHeader("Authorization", authHeader))
	}

	return &Client{
		client:         sdk.NewClient(opts...),
		requestTimeout: time.Duration(providerCfg.RequestTimeoutSeconds) * time.Second,
		model:          model,
		agent:          strings.TrimSpace(providerCfg.Agent),
		sessions:       make(map[string]string),
	}, nil
}

func (c *Client) Name() string {
	return "opencode"
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := responderLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("provider request started")

	var response healthResponse
	if err := c.client.Get(ctx, "/global/health", nil, &response); err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	if !response.Healthy {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "server unhealthy")
		return errors.New("opencode server reported unhealthy status")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "version", response.Version)
	return nil
}

// Respond prompts the room's session with the sender's message, opening the
// session on the room's first mention.
func (c *Client) Respond(ctx context.Context, act activity.Activity) (string, error) {
	message := strings.TrimSpace(act.Text)
	if message == "" {
		return "", errors.New("prompt is required")
	}

	sender := strings.TrimSpace(act.From.Name)
	if sender == "" {
		sender = "user"
	}

	sessionID, err := c.sessionFor(ctx, act.ChannelID)
	if err != nil {
		return "", err
	}

	return c.prompt(ctx, sessionID, sender+": "+message)
}

// sessionFor returns the room's session id, creating the session once.
func (c *Client) sessionFor(ctx context.Context, roomID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.sessions[roomID]; ok {
		return id, nil
	}

	id, err := c.createSession(ctx, "Idobata room "+roomID)
	if err != nil {
		return "", err
	}
	c.sessions[roomID] = id
	return id, nil
}

func (c *Client) createSession(ctx context.Context, title string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := responderLogger().With("operation", "create_session")
	startedAt := time.Now()
	log.Debug("provider request started", "title", title)

	session, err := c.client.Session.New(ctx, sdk.SessionNewParams{Title: sdk.F(title)})
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("create session failed: %w", err)
	}
	if session.ID == "" {
		return "", errors.New("create session returned empty session id")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "session_id", session.ID)

	return session.ID, nil
}

func (c *Client) prompt(ctx context.Context, sessionID string, prompt string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := responderLogger().With("operation", "prompt", "session_id", sessionID)
	startedAt := time.Now()
	log.Debug("provider request started", "model", c.model, "agent", c.agent, "prompt_length", len(prompt))

	params := sdk.SessionPromptParams{
		Parts: sdk.F([]sdk.SessionPromptParamsPartUnion{
			sdk.TextPartInputParam{
				Type: sdk.F(sdk.TextPartInputTypeText),
				Text: sdk.F(prompt),
			},
		}),
	}
	if c.agent != "" {
		params.Agent = sdk.F(c.agent)
	}
	if providerID, modelID, ok := parseModelRef(c.model); ok {
		params.Model = sdk.F(sdk.SessionPromptParamsModel{
			ProviderID: sdk.F(providerID),
			ModelID:    sdk.F(modelID),
		})
	}

	response, err := c.client.Session.Prompt(ctx, sessionID, params)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("prompt failed: %w", err)
	}

	text := extractText(response.Parts)
	if text == "" {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no text parts")
		return "", errors.New("prompt succeeded but returned no text parts")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return text, nil
}

func responderLogger() *slog.Logger {
	return slog.Default().With("component", "responder.opencode")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func buildBasicAuthHeader(cfg config.OpenCodeProviderConfig) (string, bool) {
	passwordEnv := strings.TrimSpace(cfg.PasswordEnv)
	if passwordEnv == "" {
		return "", false
	}

	password := strings.TrimSpace(os.Getenv(passwordEnv))
	if password == "" {
		return "", false
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "opencode"
	}

	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password)), true
}

func parseModelRef(input string) (providerID string, modelID string, ok bool) {
	providerID, modelID, found := strings.Cut(strings.TrimSpace(input), "/")
	if !found {
		return "", "", false
	}

	providerID = strings.TrimSpace(providerID)
	modelID = strings.TrimSpace(modelID)
	if providerID == "" || modelID == "" {
		return "", "", false
	}

	return providerID, modelID, true
}

// extractText joins the non-empty text parts; reasoning and tool parts are not chat replies.
func extractText(parts []sdk.Part) string {
	var lines []string
	for _, part := range parts {
		if part.Type != sdk.PartTypeText {
			continue
		}
		if text := strings.TrimSpace(part.Text); text != "" {
			lines = append(lines, text)
		}
	}

	return strings.Join(lines, "\n")
}
