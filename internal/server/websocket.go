package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// wsClient serializes writes; a gorilla connection allows one writer at a time.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (w *wsClient) write(data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsClient) close() {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = w.conn.Close()
}

type wsHub struct {
	mu     sync.Mutex
	groups map[string]map[*wsClient]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{groups: make(map[string]map[*wsClient]struct{})}
}

func (h *wsHub) Add(sessionID string, conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[sessionID]
	if group == nil {
		group = make(map[*wsClient]struct{})
		h.groups[sessionID] = group
	}
	group[client] = struct{}{}
	return client
}

func (h *wsHub) Remove(sessionID string, client *wsClient) {
	h.mu.Lock()
	group := h.groups[sessionID]
	_, ok := group[client]
	if ok {
		delete(group, client)
		if len(group) == 0 {
			delete(h.groups, sessionID)
		}
	}
	h.mu.Unlock()
	if ok {
		client.close()
	}
}

// Close drops every connection for a session.
func (h *wsHub) Close(sessionID string) {
	h.mu.Lock()
	group := h.groups[sessionID]
	delete(h.groups, sessionID)
	h.mu.Unlock()
	for client := range group {
		client.close()
	}
}

func (h *wsHub) Send(client *wsClient, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return client.write(data)
}

func (h *wsHub) Broadcast(sessionID string, payload any) {
	h.mu.Lock()
	group := h.groups[sessionID]
	clients := make([]*wsClient, 0, len(group))
	for client := range group {
		clients = append(clients, client)
	}
	h.mu.Unlock()
	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	for _, client := range clients {
		if err := client.write(data); err != nil {
			h.Remove(sessionID, client)
		}
	}
}

func (s *Server) handleWebsocket(c *gin.Context) {
	sessionID := c.Param("id")
	snap, err := s.coord.Snapshot(c.Request.Context(), sessionID)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	s.logger.Debug().Str("session_id", sessionID).Str("remote", c.Request.RemoteAddr).Msg("ws connected")
	client := s.ws.Add(sessionID, conn)
	if err := s.ws.Send(client, snap); err != nil {
		s.ws.Remove(sessionID, client)
		return
	}
	go s.readWS(sessionID, client)
}

func (s *Server) readWS(sessionID string, client *wsClient) {
	defer s.ws.Remove(sessionID, client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			s.logger.Debug().Err(err).Str("session_id", sessionID).Msg("ws disconnected")
			return
		}
	}
}

// broadcastSession pushes a fresh snapshot to every socket on the session.
func (s *Server) broadcastSession(ctx context.Context, sessionID string) {
	if s.ws == nil {
		return
	}
	snap, err := s.coord.Snapshot(ctx, sessionID)
	if err != nil {
		return
	}
	s.ws.Broadcast(sessionID, snap)
}
