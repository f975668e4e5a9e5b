// stream.go - WebSocket push of position snapshots
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dispatch-board/backend/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// WebSocket message types for the position stream
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypePositions = "positions"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 8
)

// WSMessage is the envelope of every stream message
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// PositionsPayload carries one snapshot
type PositionsPayload struct {
	SnapshotID string           `json:"snapshotId"`
	CapturedAt time.Time        `json:"capturedAt"`
	Stale      bool             `json:"stale,omitempty"`
	Positions  *models.Snapshot `json:"positions"`
}

// WSErrorPayload reports a failed refresh to stream clients
type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type streamClient struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (sc *streamClient) close() {
	sc.closeOnce.Do(func() { close(sc.send) })
}

// StreamHub polls the position cache and pushes every new snapshot to all
// connected websocket clients. Nothing is fetched while no client is connected.
type StreamHub struct {
	source   PositionSource
	interval time.Duration
	upgrader websocket.Upgrader
	log      *log.Entry

	mu      sync.RWMutex
	clients map[string]*streamClient
	last    *models.Snapshot
}

// NewStreamHub creates a hub that refreshes every interval
func NewStreamHub(source PositionSource, interval time.Duration) *StreamHub {
	return &StreamHub{
		source:   source,
		interval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		log:     log.WithField("component", "stream"),
		clients: make(map[string]*streamClient),
	}
}

// ClientCount returns the number of connected clients
func (h *StreamHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleStream upgrades the connection and serves it until the client leaves
func (h *StreamHub) HandleStream(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &streamClient{
		id:   uuid.New().String(),
		conn: ws,
		send: make(chan []byte, sendBufferSize),
	}
	client.send <- encodeMessage(WSMessage{Type: MsgTypeConnected, ID: client.id, Timestamp: time.Now().UnixMilli()})

	h.mu.Lock()
	if h.last != nil {
		client.send <- positionsMessage(h.last)
	}
	h.clients[client.id] = client
	h.mu.Unlock()

	h.log.WithField("client", client.id).Info("stream client connected")

	go h.writePump(client)
	h.readPump(client)

	h.unregister(client)
	h.log.WithField("client", client.id).Info("stream client disconnected")
	return nil
}

// Run refreshes on every tick until ctx is done
func (h *StreamHub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.refresh(ctx)
		}
	}
}

func (h *StreamHub) refresh(ctx context.Context) {
	if h.ClientCount() == 0 {
		return
	}

	snap, err := h.source.GetPositions(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		apiErr := positionsError(err)
		h.log.WithError(err).Warn("stream refresh failed")
		h.broadcast(encodeMessage(WSMessage{
			Type:      MsgTypeError,
			Timestamp: time.Now().UnixMilli(),
			Payload:   mustJSON(WSErrorPayload{Message: apiErr.Message, Code: apiErr.Code}),
		}))
		return
	}

	h.mu.Lock()
	unchanged := h.last != nil && h.last.ID() == snap.ID() && h.last.Stale() == snap.Stale()
	h.last = snap
	h.mu.Unlock()
	if unchanged {
		return
	}
	h.broadcast(positionsMessage(snap))
}

func (h *StreamHub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Slow consumer: drop it rather than stall everyone else.
			h.log.WithField("client", id).Warn("stream client too slow, disconnecting")
			delete(h.clients, id)
			client.close()
		}
	}
}

func (h *StreamHub) unregister(client *streamClient) {
	h.mu.Lock()
	delete(h.clients, client.id)
	h.mu.Unlock()
	client.close()
}

func (h *StreamHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		client.close()
	}
}

func (h *StreamHub) readPump(client *streamClient) {
	ws := client.conn
	ws.SetReadLimit(4 * 1024)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithField("client", client.id).WithError(err).Debug("stream read failed")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case MsgTypePing:
			h.sendTo(client, encodeMessage(WSMessage{Type: MsgTypePong, ID: msg.ID, Timestamp: time.Now().UnixMilli()}))
		default:
			h.sendTo(client, encodeMessage(WSMessage{
				Type:      MsgTypeError,
				Timestamp: time.Now().UnixMilli(),
				Payload:   mustJSON(WSErrorPayload{Message: "Unknown message type: " + msg.Type, Code: "INVALID_TYPE"}),
			}))
		}
	}
}

// sendTo queues a reply for one client unless it has already been dropped.
func (h *StreamHub) sendTo(client *streamClient, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.id]; !ok {
		return
	}
	select {
	case client.send <- msg:
	default:
	}
}

func (h *StreamHub) writePump(client *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.WithField("client", client.id).WithError(err).Debug("stream write failed")
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func positionsMessage(snap *models.Snapshot) []byte {
	return encodeMessage(WSMessage{
		Type:      MsgTypePositions,
		ID:        snap.ID(),
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(PositionsPayload{
			SnapshotID: snap.ID(),
			CapturedAt: snap.CapturedAt(),
			Stale:      snap.Stale(),
			Positions:  snap,
		}),
	})
}

func encodeMessage(msg WSMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		return []byte(`{"type":"error"}`)
	}
	return data
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
