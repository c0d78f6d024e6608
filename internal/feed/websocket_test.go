package feed

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waio/crawlwatch/internal/visit"
)

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// TestStreamHandlerDeliversBroadcasts connects a real websocket client and
// checks a broadcast record arrives as a VISIT_UPDATE envelope.
func TestStreamHandlerDeliversBroadcasts(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil)
	srv := httptest.NewServer(StreamHandler(registry, time.Second, nil))
	defer srv.Close()

	conn := dialStream(t, srv)
	require.Eventually(t, func() bool {
		return registry.Len() == 1
	}, time.Second, 10*time.Millisecond)

	rt := int64(55)
	rec := visit.Record{
		ID:             3,
		URL:            "/test/articles",
		BotName:        "GPTBot",
		BotCategory:    visit.CategoryLLM,
		BotCompany:     "OpenAI",
		ResponseTimeMs: &rt,
	}
	registry.Broadcast(rec)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeVisitUpdate, msg.Type)
	assert.Equal(t, int64(3), msg.Data.ID)
	assert.Equal(t, "GPTBot", msg.Data.BotName)
	require.NotNil(t, msg.Data.ResponseTimeMs)
	assert.Equal(t, int64(55), *msg.Data.ResponseTimeMs)
}

// TestStreamHandlerUnregistersOnDisconnect verifies that a client closing
// its connection leaves the registry empty.
func TestStreamHandlerUnregistersOnDisconnect(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil)
	srv := httptest.NewServer(StreamHandler(registry, time.Second, nil))
	defer srv.Close()

	conn := dialStream(t, srv)
	require.Eventually(t, func() bool {
		return registry.Len() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return registry.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// TestStreamHandlerMultipleClients fans one broadcast out to several
// concurrent connections.
func TestStreamHandlerMultipleClients(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil)
	srv := httptest.NewServer(StreamHandler(registry, time.Second, nil))
	defer srv.Close()

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dialStream(t, srv)
	}
	require.Eventually(t, func() bool {
		return registry.Len() == 3
	}, time.Second, 10*time.Millisecond)

	registry.Broadcast(visit.Record{ID: 9, BotName: "Googlebot"})

	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, int64(9), msg.Data.ID)
	}
}
