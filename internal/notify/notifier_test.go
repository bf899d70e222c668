package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	name  string
	err   error
	calls int
}

func (s *stubSender) Send(_ context.Context, _, _ string) error {
	s.calls++
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	sender := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{sender}, []string{"bet_confirmed"}, testLogger())

	require.NoError(t, n.Notify(context.Background(), "bet_failed", "t", "m"))
	assert.Equal(t, 0, sender.calls)

	require.NoError(t, n.Notify(context.Background(), "bet_confirmed", "t", "m"))
	assert.Equal(t, 1, sender.calls)
}

func TestNotifyEmptyEventListAllowsAll(t *testing.T) {
	sender := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Equal(t, 1, sender.calls)
}

func TestNotifyCollectsSenderErrors(t *testing.T) {
	broken := &stubSender{name: "broken", err: errors.New("unreachable")}
	healthy := &stubSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, testLogger())

	err := n.Notify(context.Background(), "bet_confirmed", "t", "m")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	// One sender failing does not block the other.
	assert.Equal(t, 1, healthy.calls)
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	require.NoError(t, sender.Send(context.Background(), "Bet failed", "market 3 reverted"))
	assert.Equal(t, "**Bet failed**\nmarket 3 reverted", got["content"])
}

func TestDiscordSenderReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	err := sender.Send(context.Background(), "t", "m")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
