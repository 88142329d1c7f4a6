// internal/api/websocket.go
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/dex-router/internal/events"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient writes envelopes to one websocket connection. mu serializes
// data writes with pings and Close.
type wsClient struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (w *wsClient) Deliver(_ context.Context, env events.Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return events.ErrObserverClosed
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(env)
}

func (w *wsClient) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return events.ErrObserverClosed
	}
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (w *wsClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.conn.Close()
}

// streamEvents upgrades the request and forwards every order update to the
// client until it disconnects. Clients receive only updates published after
// they connected.
func (h *Handler) streamEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	remote := conn.RemoteAddr().String()
	client := &wsClient{conn: conn}
	observer := events.NewAsyncObserver("ws:"+remote, client, h.wsBuffer, writeWait, h.logger)
	sub := h.events.Subscribe(observer)
	h.logger.Info("WebSocket client connected", zap.String("remote", remote), zap.String("subscription", sub.ID()))

	done := make(chan struct{})
	defer func() {
		close(done)
		sub.Unsubscribe()
		_ = client.Close()
		_ = observer.Close()
		h.logger.Info("WebSocket client disconnected", zap.String("remote", remote))
	}()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := client.ping(); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Inbound messages carry no meaning; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}
