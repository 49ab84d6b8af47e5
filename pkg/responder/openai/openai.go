package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"idobridge/pkg/activity"
	"idobridge/pkg/config"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const defaultModel = "gpt-5-mini"

const defaultInstructions = "You are a helpful bot in an Idobata chat room. Reply in plain text, briefly."

// Client answers mentions with the OpenAI Responses API. With
// responder.history_turns set, recent exchanges in the room are replayed ahead
// of the new message.
type Client struct {
	client         osdk.Client
	model          string
	instructions   string
	requestTimeout time.Duration
	history        *transcript
}

func New(cfg *config.Config) (*Client, error) {
	providerCfg := cfg.Providers.OpenAI
	apiKey := resolveAPIKey(providerCfg)
	if apiKey == "" {
		return nil, errors.New("providers.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	model, err := normalizeModel(cfg.Responder.Model)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(providerCfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(providerCfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(providerCfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(providerCfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	instructions := strings.TrimSpace(cfg.Responder.Instructions)
	if instructions == "" {
		instructions = defaultInstructions
	}

	return &Client{
		client:         osdk.NewClient(opts...),
		model:          model,
		instructions:   instructions,
		requestTimeout: requestTimeout,
		history:        newTranscript(cfg.Responder.HistoryTurns),
	}, nil
}

func (c *Client) Name() string {
	return "openai"
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := responderLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("provider request started")

	if _, err := c.client.Models.List(ctx); err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return nil
}

// Respond asks the model for a reply to one chat message.
func (c *Client) Respond(ctx context.Context, act activity.Activity) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := responderLogger().With("operation", "respond", "room_id", act.ChannelID)
	startedAt := time.Now()

	message := strings.TrimSpace(act.Text)
	if message == "" {
		return "", errors.New("prompt is required")
	}

	sender := strings.TrimSpace(act.From.Name)
	if sender == "" {
		sender = "user"
	}
	prompt := sender + ": " + message
	if earlier := c.history.Render(act.ChannelID); earlier != "" {
		prompt = earlier + "\n" + prompt
	}

	log.Debug("provider request started", "model", c.model, "prompt_length", len(prompt))

	response, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:        c.model,
		Instructions: osdk.String(c.instructions),
		Input:        responses.ResponseNewParamsInputUnion{OfString: osdk.String(prompt)},
	})
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("respond failed: %w", err)
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no output text")
		return "", errors.New("respond succeeded but returned no text")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	botName := strings.TrimSpace(act.Recipient.Name)
	if botName == "" {
		botName = "bot"
	}
	c.history.Append(act.ChannelID, sender, message)
	c.history.Append(act.ChannelID, botName, text)

	return text, nil
}

func responderLogger() *slog.Logger {
	return slog.Default().With("component", "responder.openai")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIProviderConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}

// normalizeModel accepts "model" or "openai/model" and defaults when unset.
func normalizeModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return defaultModel, nil
	}

	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 {
		return model, nil
	}

	providerID := strings.TrimSpace(parts[0])
	modelID := strings.TrimSpace(parts[1])
	if providerID == "" || modelID == "" {
		return "", errors.New("model is invalid")
	}
	if providerID != "openai" {
		return "", fmt.Errorf("model provider %q is not supported by openai responder", providerID)
	}

	return modelID, nil
}
