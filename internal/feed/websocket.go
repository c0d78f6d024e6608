package feed

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultWriteTimeout = 5 * time.Second

// wsSubscriber adapts a websocket connection to the Subscriber interface.
// Writes are serialized because gorilla/websocket allows at most one
// concurrent writer per connection.
type wsSubscriber struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (s *wsSubscriber) Send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

func (s *wsSubscriber) Close() error {
	return s.conn.Close()
}

// StreamHandler upgrades requests to websocket connections and registers
// them with the registry. The connection stays registered until the client
// disconnects or a delivery fails.
func StreamHandler(registry *Registry, writeTimeout time.Duration, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// The feed is read-only and unauthenticated, so cross-origin
		// dashboards may subscribe.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		sub := &wsSubscriber{conn: conn, writeTimeout: writeTimeout}
		registry.Register(sub)

		// Drain the read side so close frames and pings are processed; the
		// feed never acts on inbound payloads.
		go func() {
			defer func() {
				registry.Unregister(sub)
				_ = conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						logger.Debug("websocket read failed", zap.Error(err))
					}
					return
				}
			}
		}()
	}
}
