package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/homefinder/internal/domain/session"
)

func dial(t *testing.T, h *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, sessionID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return h.Subscribers(sessionID) == 1 },
		2*time.Second, 10*time.Millisecond)
	return conn
}

func TestHub_DeliversSessionEvents(t *testing.T) {
	h := NewHub(Config{}, zap.NewNop())
	conn := dial(t, h, "s1")

	h.Publish("other", session.ContactFormEvent())
	h.Publish("s1", session.MatchesEvent([]map[string]any{{"id": "listing-0"}}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev struct {
		Topic string           `json:"topic"`
		Type  string           `json:"type"`
		Data  []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, session.TopicMatches, ev.Topic)
	require.Len(t, ev.Data, 1)
	assert.Equal(t, "listing-0", ev.Data[0]["id"])
}

func TestHub_ClientDisconnectUnsubscribes(t *testing.T) {
	h := NewHub(Config{}, zap.NewNop())
	conn := dial(t, h, "s1")

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.Subscribers("s1") == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestHub_SlowSubscriberDropped(t *testing.T) {
	h := NewHub(Config{Buffer: 1}, zap.NewNop())
	sub := h.subscribe("s1")

	h.Publish("s1", session.ContactFormEvent())
	h.Publish("s1", session.EndCallEvent())

	assert.Equal(t, 0, h.Subscribers("s1"))
	select {
	case <-sub.done:
	default:
		t.Fatal("slow subscriber should be closed")
	}
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	h := NewHub(Config{}, zap.NewNop())
	h.Publish("nobody", session.EndCallEvent())
	assert.Equal(t, 0, h.Subscribers("nobody"))
}

func TestHub_UnsubscribeTwice(t *testing.T) {
	h := NewHub(Config{}, zap.NewNop())
	sub := h.subscribe("s1")
	h.unsubscribe("s1", sub)
	h.unsubscribe("s1", sub)
	assert.Equal(t, 0, h.Subscribers("s1"))
}
