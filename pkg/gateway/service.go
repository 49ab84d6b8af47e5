package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"idobridge/pkg/activity"
	"idobridge/pkg/bus"
	"idobridge/pkg/channel"
	"idobridge/pkg/config"
	"idobridge/pkg/responder"
	"idobridge/pkg/turn"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790
	defaultWorkers    = 4
)

// Service runs one channel adapter. Stream activities are queued on the bus and
// answered by the responder, one turn at a time per room and at most
// gateway.workers turns at once.
type Service struct {
	cfg       *config.Config
	log       *slog.Logger
	adapter   channel.Adapter
	responder responder.Responder
	bus       *bus.MessageBus
	rooms     *roomSerializer

	mu                 sync.RWMutex
	startedAt          time.Time
	responderLastOKAt  time.Time
	responderLastErr   string
	stream             streamState
	references         map[string]activity.ConversationReference
	middlewareAttached bool
}

// streamState is what the service has observed about the adapter's stream.
type streamState struct {
	Running      bool
	Error        string
	BotID        string
	LastSeedAt   time.Time
	LastEventAt  time.Time
	Received     int64
	Sent         int64
	SendFailures int64
	TurnFailures int64
	StreamErrors int64
	LastError    string
}

type streamStatus struct {
	Running            bool   `json:"running"`
	Error              string `json:"error,omitempty"`
	BotID              string `json:"bot_id,omitempty"`
	LastSeedAt         string `json:"last_seed_at,omitempty"`
	LastEventAt        string `json:"last_event_at,omitempty"`
	ActivitiesReceived int64  `json:"activities_received"`
	ActivitiesSent     int64  `json:"activities_sent"`
	SendFailures       int64  `json:"send_failures"`
	TurnFailures       int64  `json:"turn_failures"`
	StreamErrors       int64  `json:"stream_errors"`
	LastError          string `json:"last_error,omitempty"`
}

type statusResponse struct {
	Status            string       `json:"status"`
	UptimeSeconds     int64        `json:"uptime_seconds"`
	Responder         string       `json:"responder"`
	ResponderLastOKAt string       `json:"responder_last_ok_at,omitempty"`
	ResponderLastErr  string       `json:"responder_last_error,omitempty"`
	QueueDepth        int          `json:"queue_depth"`
	Rooms             int          `json:"rooms"`
	Stream            streamStatus `json:"stream"`
}

type notifyRequest struct {
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

type notifyResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewService resolves the configured responder and wires the adapter's middleware.
func NewService(cfg *config.Config, adapter channel.Adapter, mb *bus.MessageBus, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	client, err := responder.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize responder: %w", err)
	}

	return newService(cfg, adapter, mb, client, log)
}

func newService(cfg *config.Config, adapter channel.Adapter, mb *bus.MessageBus, client responder.Responder, log *slog.Logger) (*Service, error) {
	if adapter == nil {
		return nil, errors.New("channel adapter is required")
	}
	if mb == nil {
		return nil, errors.New("message bus is required")
	}
	if client == nil {
		return nil, errors.New("responder is required")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		cfg:        cfg,
		log:        log.With("component", "gateway.service"),
		adapter:    adapter,
		responder:  client,
		bus:        mb,
		rooms:      newRoomSerializer(workerCount(cfg)),
		references: make(map[string]activity.ConversationReference),
	}
	s.attachMiddleware()

	return s, nil
}

func (s *Service) attachMiddleware() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.middlewareAttached {
		return
	}

	s.adapter.Use(logTurns(s.log), allowRooms(s.cfg.Responder.AllowRooms, s.log))
	s.middlewareAttached = true
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkResponderHealth(ctx); err != nil {
		return err
	}

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.checkResponderHealth(ctx)
			}
		}
	}()

	events, unsubscribe := s.bus.SubscribeEvents(ctx, 0)
	defer unsubscribe()
	go func() {
		for event := range events {
			s.applyEvent(event)
		}
	}()

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		s.dispatch(ctx)
	}()

	errCh := make(chan error, 1)
	streamDone := make(chan struct{})
	s.setStreamRunning(true, "")
	go func() {
		defer close(streamDone)
		err := s.adapter.Run(ctx, s.enqueue)
		s.setStreamRunning(false, errorString(err))
		if err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("run %s channel: %w", s.adapter.Name(), err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrors:
	case runErr = <-errCh:
	}

	cancel()
	<-streamDone
	s.bus.Close()
	<-dispatched
	s.rooms.Wait()
	return runErr
}

// enqueue is the adapter handler. It records where the activity came from and
// queues it on the bus; a full bus blocks the stream.
func (s *Service) enqueue(ctx context.Context, act activity.Activity) {
	s.rememberReference(act)

	if !s.bus.PublishInbound(ctx, act) && ctx.Err() == nil {
		s.log.Warn("Dropped activity", "activity_id", act.ID, "room_id", act.ChannelID)
	}
}

// dispatch drains the bus in arrival order and hands each activity to its
// room's queue.
func (s *Service) dispatch(ctx context.Context) {
	for {
		act, ok := s.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}

		if !s.rooms.Submit(ctx, act.ChannelID, func() { s.process(ctx, act) }) {
			return
		}
	}
}

func (s *Service) process(ctx context.Context, act activity.Activity) {
	if err := s.adapter.ProcessActivity(ctx, act, s.reply); err != nil {
		s.log.Error("Failed to process activity", "activity_id", act.ID, "room_id", act.ChannelID, "error", err)
		s.bus.PublishEvent(ctx, bus.Event{
			Type:       bus.EventTurnFailed,
			Channel:    s.adapter.Name(),
			RoomID:     act.ChannelID,
			ActivityID: act.ID,
			Error:      err.Error(),
		})
	}
}

// reply is the turn logic for live messages.
func (s *Service) reply(ctx context.Context, tc *turn.Context) error {
	act := tc.Activity()
	if !act.IsMessage() {
		return nil
	}

	text, err := s.responder.Respond(ctx, act)
	if err != nil {
		return fmt.Errorf("respond with %s: %w", s.responder.Name(), err)
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	_, err = tc.SendActivity(ctx, text)
	return err
}

// Notify sends text into a room outside of any live turn by resuming the room's
// conversation.
func (s *Service) Notify(ctx context.Context, channelID string, text string) (activity.ResourceResponse, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return activity.ResourceResponse{}, errors.New("channel_id is required")
	}
	if strings.TrimSpace(text) == "" {
		return activity.ResourceResponse{}, errors.New("text is required")
	}

	var sent activity.ResourceResponse
	err := s.adapter.ContinueConversation(ctx, s.referenceFor(channelID), func(ctx context.Context, tc *turn.Context) error {
		response, err := tc.SendActivity(ctx, text)
		sent = response
		return err
	})
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	if sent.ID == "" {
		return activity.ResourceResponse{}, errors.New("notification was not sent")
	}

	return sent, nil
}

func (s *Service) rememberReference(act activity.Activity) {
	if act.ChannelID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.references[act.ChannelID] = activity.GetConversationReference(act)
}

// referenceFor returns the last reference seen in a room, or a bare one for rooms
// the bot has not heard from.
func (s *Service) referenceFor(channelID string) activity.ConversationReference {
	s.mu.RLock()
	ref, ok := s.references[channelID]
	s.mu.RUnlock()
	if ok {
		ref.ActivityID = ""
		return ref
	}

	return activity.ConversationReference{
		ChannelID:    channelID,
		Conversation: activity.ConversationAccount{ID: channelID},
	}
}

func workerCount(cfg *config.Config) int {
	if cfg != nil && cfg.Gateway.Workers > 0 {
		return cfg.Gateway.Workers
	}
	return defaultWorkers
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/notify", s.handleNotify)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeJSON(w, http.StatusMethodNotAllowed, notifyResponse{Status: "error", Error: "method not allowed"})
		return
	}

	var req notifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, notifyResponse{Status: "error", Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.ChannelID) == "" || strings.TrimSpace(req.Text) == "" {
		s.writeJSON(w, http.StatusBadRequest, notifyResponse{Status: "error", Error: "channel_id and text are required"})
		return
	}

	sent, err := s.Notify(r.Context(), req.ChannelID, req.Text)
	if err != nil {
		s.log.Error("Failed to send notification", "room_id", req.ChannelID, "error", err)
		s.writeJSON(w, http.StatusBadGateway, notifyResponse{Status: "error", Error: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, notifyResponse{Status: "sent", ID: sent.ID})
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	s.writeJSON(w, statusCode, s.currentStatus(status))
}

func (s *Service) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	responderLastOK := ""
	if !s.responderLastOKAt.IsZero() {
		responderLastOK = s.responderLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:            status,
		UptimeSeconds:     uptime,
		Responder:         s.responder.Name(),
		ResponderLastOKAt: responderLastOK,
		ResponderLastErr:  s.responderLastErr,
		QueueDepth:        s.bus.Pending(),
		Rooms:             s.rooms.Len(),
		Stream: streamStatus{
			Running:            s.stream.Running,
			Error:              s.stream.Error,
			BotID:              s.stream.BotID,
			LastSeedAt:         formatTime(s.stream.LastSeedAt),
			LastEventAt:        formatTime(s.stream.LastEventAt),
			ActivitiesReceived: s.stream.Received,
			ActivitiesSent:     s.stream.Sent,
			SendFailures:       s.stream.SendFailures,
			TurnFailures:       s.stream.TurnFailures,
			StreamErrors:       s.stream.StreamErrors,
			LastError:          s.stream.LastError,
		},
	}
}

// isReady requires a running stream that has completed its seed handshake and
// a healthy responder.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.stream.Running || s.stream.BotID == "" {
		return false
	}

	if s.responderLastOKAt.IsZero() {
		return false
	}

	if s.responderLastErr != "" {
		return false
	}

	return true
}

// applyEvent folds one adapter lifecycle event into the stream status.
func (s *Service) applyEvent(event bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stream.LastEventAt = event.At
	switch event.Type {
	case bus.EventSeedReceived:
		s.stream.BotID = event.BotID
		s.stream.LastSeedAt = event.At
	case bus.EventActivityReceived:
		s.stream.Received++
	case bus.EventActivitySent:
		s.stream.Sent++
	case bus.EventSendFailed:
		s.stream.SendFailures++
		s.stream.LastError = event.Error
	case bus.EventTurnFailed:
		s.stream.TurnFailures++
		s.stream.LastError = event.Error
	case bus.EventStreamError:
		s.stream.StreamErrors++
		s.stream.LastError = event.Error
	}
}

func (s *Service) checkResponderHealth(ctx context.Context) error {
	if err := s.responder.Health(ctx); err != nil {
		s.mu.Lock()
		s.responderLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("responder health check failed: %w", err)
	}

	s.mu.Lock()
	s.responderLastErr = ""
	s.responderLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}

func (s *Service) setStreamRunning(running bool, errText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream.Running = running
	s.stream.Error = errText
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
