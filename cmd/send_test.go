package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"idobridge/pkg/config"
	"idobridge/pkg/idobata"

	"github.com/stretchr/testify/require"
)

func TestSendMessagePostsToRoom(t *testing.T) {
	var roomID, source string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		roomID = r.PostForm.Get("message[room_id]")
		source = r.PostForm.Get("message[source]")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"id":314}}`))
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{Idobata: config.IdobataConfig{Name: "hibot", APIToken: "secret", URL: server.URL}}
	adapter, err := newIdobataAdapter(cfg, nil, slog.Default())
	require.NoError(t, err)

	sent, err := sendMessage(context.Background(), adapter, " 3 ", "deploy finished")
	require.NoError(t, err)
	require.Equal(t, "314", sent.ID)
	require.Equal(t, "3", roomID)
	require.Equal(t, "deploy finished", source)
}

func TestSendMessageValidatesInput(t *testing.T) {
	cfg := &config.Config{Idobata: config.IdobataConfig{APIToken: "secret"}}
	adapter, err := newIdobataAdapter(cfg, nil, slog.Default())
	require.NoError(t, err)

	_, err = sendMessage(context.Background(), adapter, "", "hello")
	require.ErrorContains(t, err, "room id is required")

	_, err = sendMessage(context.Background(), adapter, "3", "  ")
	require.ErrorContains(t, err, "message text is required")
}

func TestSendMessageSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{Idobata: config.IdobataConfig{APIToken: "secret", URL: server.URL}}
	adapter, err := newIdobataAdapter(cfg, nil, slog.Default())
	require.NoError(t, err)

	_, err = sendMessage(context.Background(), adapter, "3", "hello")
	var apiErr *idobata.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}
