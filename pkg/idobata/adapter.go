package idobata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"idobridge/pkg/activity"
	"idobridge/pkg/bus"
	"idobridge/pkg/config"
	"idobridge/pkg/turn"
)

const channelName = "idobata"
const messagePreviewLimit = 240

// Adapter connects the Idobata event stream and messages API to the bot runtime.
//
// One Adapter owns one bot identity: it learns the identity from the stream's
// seed event and uses it to decide which messages are addressed to the bot.
type Adapter struct {
	name     string
	token    string
	messages string
	stream   string

	httpClient *http.Client
	source     Stream
	events     *bus.MessageBus
	pipeline   turn.Pipeline
	log        *slog.Logger

	mu    sync.RWMutex
	botID string
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithHTTPClient sets the client used for the messages API and the default stream.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithStream replaces the server-push transport.
func WithStream(source Stream) Option {
	return func(a *Adapter) {
		a.source = source
	}
}

// WithEvents publishes adapter lifecycle events to mb.
func WithEvents(mb *bus.MessageBus) Option {
	return func(a *Adapter) {
		a.events = mb
	}
}

// NewAdapter validates Idobata configuration and constructs an adapter instance.
func NewAdapter(cfg config.IdobataConfig, log *slog.Logger, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = slog.Default()
	}

	messages, err := endpoint(cfg.MessagesURL(), "api", "messages")
	if err != nil {
		return nil, fmt.Errorf("idobata.url: %w", err)
	}
	stream, err := endpoint(cfg.StreamURL(), "api", "stream")
	if err != nil {
		return nil, fmt.Errorf("idobata.event_url: %w", err)
	}

	a := &Adapter{
		name:       cfg.BotName(),
		token:      strings.TrimSpace(cfg.APIToken),
		messages:   messages,
		stream:     stream,
		httpClient: http.DefaultClient,
		log:        log.With("component", "channel.idobata"),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Name returns the channel identifier used in events and logs.
func (a *Adapter) Name() string {
	return channelName
}

// BotID returns the bot's own Idobata id, or "" until the seed event arrives.
func (a *Adapter) BotID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.botID
}

func (a *Adapter) setBotID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.botID = id
}

// Use registers middleware that runs for every live and resumed turn.
func (a *Adapter) Use(middleware ...turn.Middleware) {
	a.pipeline.Use(middleware...)
}

// ProcessActivity wraps act in a turn context and runs it through the middleware and logic.
func (a *Adapter) ProcessActivity(ctx context.Context, act activity.Activity, logic turn.Logic) error {
	return a.pipeline.Run(ctx, turn.NewContext(a, act), logic)
}

// setAuthHeaders applies the headers both the stream and the messages API expect.
func (a *Adapter) setAuthHeaders(header http.Header) {
	for key, value := range a.headers() {
		header.Set(key, value)
	}
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + a.token,
		"User-Agent":    a.name,
	}
}

// streamURL is the stream endpoint with the access token query parameter.
func (a *Adapter) streamURL() string {
	return a.stream + "?" + url.Values{"access_token": {a.token}}.Encode()
}

func (a *Adapter) publish(ctx context.Context, event bus.Event) {
	if a.events == nil {
		return
	}

	event.Channel = channelName
	a.events.PublishEvent(ctx, event)
}

// endpoint joins API path segments onto a configured base URL.
func endpoint(base string, segments ...string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errors.New("must be an absolute URL")
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.JoinPath(segments...).String(), nil
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
