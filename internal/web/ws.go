package web

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hpungsan/snapfood/internal/ops"
	"github.com/hpungsan/snapfood/internal/syncer"
)

const (
	writeWait    = 10 * time.Second
	clientBuffer = 16
)

// wsMessage is the envelope for every websocket frame in both directions.
type wsMessage struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// hub streams coordinator status to websocket clients.
type hub struct {
	svc      *ops.Service
	log      *zap.Logger
	upgrader websocket.Upgrader
	clients  sync.Map
}

func newHub(svc *ops.Service, log *zap.Logger) *hub {
	return &hub{
		svc: svc,
		log: log.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameOrigin,
		},
	}
}

// clientCount returns the number of connected websocket clients.
func (h *hub) clientCount() int {
	n := 0
	h.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// sameOrigin accepts non-browser clients and pages served from this host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// HandleWebSocket handles GET /ws. The client gets the current status on
// connect and after every change; it may send {"type":"sync"} or
// {"type":"status"}.
func (h *hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()
	h.clients.Store(clientID, conn)
	defer h.clients.Delete(clientID)
	log := h.log.With(zap.String("client", clientID))
	log.Debug("client connected")

	out := make(chan wsMessage, clientBuffer)
	done := make(chan struct{})

	send := func(msg wsMessage) {
		select {
		case out <- msg:
		case <-done:
		default:
			// Slow client; the next status supersedes this one.
			log.Debug("dropping message", zap.String("type", msg.Type))
		}
	}

	unsubscribe := h.svc.SubscribeStatus(func(s syncer.Status) {
		send(wsMessage{Type: "status", Data: s})
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					log.Debug("write failed", zap.Error(err))
					return
				}
			case <-done:
				return
			}
		}
	}()
	defer func() {
		unsubscribe()
		close(done)
		<-writerDone
	}()

	send(wsMessage{Type: "status", Data: h.svc.QueueStatus()})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug("client disconnected", zap.Error(err))
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			send(wsMessage{Type: "error", Message: "invalid message format"})
			continue
		}

		switch msg.Type {
		case "sync":
			send(wsMessage{Type: "sync", Data: map[string]any{"trigger": h.svc.RequestSync()}})
		case "status":
			send(wsMessage{Type: "status", Data: h.svc.QueueStatus()})
		default:
			send(wsMessage{Type: "error", Message: "unknown message type"})
		}
	}
}
