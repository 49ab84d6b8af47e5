package idobata

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"
)

// Seeds carry the bot's room and user records and outgrow the client's default buffer.
const maxEventSize = 1 << 20

var errStreamEnded = errors.New("event stream ended")

// sseStream is the production Stream backed by an SSE client. Reconnects are
// owned here: the client retries failed connections with exponential backoff
// and resubscribes when the server ends the response.
type sseStream struct {
	client *sse.Client
}

func newSSEStream(endpoint string, headers map[string]string, httpClient *http.Client) *sseStream {
	client := sse.NewClient(endpoint, sse.ClientMaxBufferSize(maxEventSize))
	for key, value := range headers {
		client.Headers[key] = value
	}
	if httpClient != nil {
		client.Connection = httpClient
	}

	return &sseStream{client: client}
}

func (s *sseStream) Subscribe(ctx context.Context, handle func(StreamEvent)) error {
	s.client.ReconnectStrategy = backoff.WithContext(newReconnectBackOff(), ctx)
	s.client.ReconnectNotify = func(err error, _ time.Duration) {
		handle(StreamEvent{Name: EventError, Err: err})
	}

	resubscribe := backoff.WithContext(newReconnectBackOff(), ctx)
	for {
		received := false
		err := s.client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			received = true
			handle(StreamEvent{Name: string(msg.Event), Data: msg.Data})
		})
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errStreamEnded
		}
		handle(StreamEvent{Name: EventError, Err: err})

		if received {
			resubscribe.Reset()
		}
		wait := resubscribe.NextBackOff()
		if wait == backoff.Stop {
			return err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// newReconnectBackOff never gives up; the connection lives as long as the caller's ctx.
func newReconnectBackOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0
	policy.MaxInterval = 30 * time.Second
	return policy
}
