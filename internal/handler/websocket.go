package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/flybeeper/track-filter/internal/metrics"
	"github.com/flybeeper/track-filter/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// WebSocketHandler рассылает принятые позиции подключенным клиентам
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	logger   *logrus.Entry

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

// wsClient одно WebSocket соединение
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWebSocketHandler создает новый WebSocket handler
func NewWebSocketHandler() *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  logrus.New().WithField("component", "websocket"),
		clients: make(map[*wsClient]struct{}),
	}
}

// Handle апгрейдит HTTP соединение и регистрирует клиента
func (h *WebSocketHandler) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		metrics.WebSocketErrors.Inc()
		h.logger.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	metrics.WebSocketConnections.Inc()

	h.logger.WithField("remote", conn.RemoteAddr().String()).Debug("Client connected")

	go h.writePump(client)
	go h.readPump(client)
}

// BroadcastPosition отправляет принятую позицию всем клиентам.
// Медленный клиент с переполненным буфером отключается, чтобы не
// тормозить конвейер.
func (h *WebSocketHandler) BroadcastPosition(position *models.Position) {
	data, err := json.Marshal(position)
	if err != nil {
		metrics.WebSocketErrors.Inc()
		h.logger.WithError(err).Error("Failed to marshal position")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- data:
			metrics.WebSocketMessagesOut.Inc()
		default:
			h.logger.Warn("Client send buffer full, dropping connection")
			go h.drop(client)
		}
	}
}

// Close отключает всех клиентов
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WebSocketConnections.Dec()
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHandler) drop(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	metrics.WebSocketConnections.Dec()
}

// readPump читает контрольные фреймы клиента; входящие данные
// игнорируются - поток односторонний
func (h *WebSocketHandler) readPump(client *wsClient) {
	defer func() {
		h.drop(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				metrics.WebSocketErrors.Inc()
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
