package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"market-search/services"
	"market-search/utils"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsReadWait     = 35 * time.Second
)

// EventStream pushes orchestrator changes to WebSocket clients. The first
// message is always a full snapshot.
type EventStream struct {
	orch     *services.Orchestrator
	upgrader websocket.Upgrader
}

func NewEventStream(orch *services.Orchestrator, origins []string) *EventStream {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &EventStream{
		orch: orch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if _, ok := allowed["*"]; ok {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// ServeHTTP handles GET /search/events.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context()).WithFields(utils.Fields{"handler": "EventStream"})

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", utils.Fields{"error": err.Error()})
		return
	}
	defer conn.Close()

	events, unsubscribe := s.orch.Subscribe()
	defer unsubscribe()

	snap := s.orch.Snapshot()
	if err := writeMessage(conn, wsMessage{Type: "snapshot", Snapshot: &snap}); err != nil {
		logger.Warn("websocket write failed", utils.Fields{"error": err.Error()})
		return
	}

	// Reads only serve pongs and close frames.
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := writeMessage(conn, wsMessage{Type: "event", Event: &ev}); err != nil {
				logger.Debug("websocket client gone", utils.Fields{"error": err.Error()})
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg wsMessage) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(msg)
}
