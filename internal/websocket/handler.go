package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"proctorhub/internal/config"
	"proctorhub/pkg/types"
)

// Upgrader allows all origins: student agents and observer dashboards run
// from arbitrary hosts during an exam session.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Relay is the narrow slice of the broadcast relay the handlers need.
// Declared here so this package does not import the relay implementation.
type Relay interface {
	BroadcastFrame(studentID, payload string)
	SendCachedFrame(observer *Connection, studentID string)
}

// Handler owns the two WebSocket endpoints: student agents pushing frames
// and observers receiving the fan-out.
type Handler struct {
	registry *Registry
	relay    Relay
	cfg      *config.WebSocketConfig
	logger   *zap.Logger
}

func NewHandler(registry *Registry, relay Relay, cfg *config.WebSocketConfig, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		relay:    relay,
		cfg:      cfg,
		logger:   logger,
	}
}

// handshake is the first message a student agent must send.
type handshake struct {
	StudentID string `json:"student_id"`
}

// HandleStudent upgrades a student agent connection. The agent identifies
// itself with a {"student_id": ...} handshake, then streams screen frames
// until it disconnects. Disconnect triggers a handle-guarded deregistration,
// so a stale close can never evict a newer connection for the same student.
func (h *Handler) HandleStudent(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("student upgrade failed", zap.Error(err))
		return
	}

	studentID, err := h.readHandshake(conn)
	if err != nil {
		h.logger.Warn("student handshake rejected", zap.Error(err))
		_ = conn.Close()
		return
	}

	wsConn := NewConnection(conn, h.cfg.BufferSize, h.cfg.WriteTimeout)
	wsConn.SetIdentity(studentID, types.RoleStudent)

	if err := h.registry.RegisterStudent(studentID, wsConn); err != nil {
		h.logger.Warn("student registration failed",
			zap.String("student_id", studentID), zap.Error(err))
		_ = wsConn.Close()
		return
	}

	go h.runStudent(wsConn)
}

// HandleObserver upgrades an observer connection and adds it to the fan-out
// set. Observers need no identity beyond the live handle.
func (h *Handler) HandleObserver(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("observer upgrade failed", zap.Error(err))
		return
	}

	wsConn := NewConnection(conn, h.cfg.BufferSize, h.cfg.WriteTimeout)
	wsConn.SetIdentity("", types.RoleObserver)

	if err := h.registry.RegisterObserver(wsConn); err != nil {
		_ = wsConn.Close()
		return
	}

	go h.runObserver(wsConn)
}

// readHandshake reads and validates the student's identifying message on the
// raw socket, before the single-writer wrapper takes over.
func (h *Handler) readHandshake(conn *websocket.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return "", ErrHandshakeTimeout
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", ErrHandshakeTimeout
	}

	var hs handshake
	if err := json.Unmarshal(data, &hs); err != nil {
		return "", ErrBadHandshake
	}
	if !types.IsValidStudentID(hs.StudentID) {
		return "", ErrBadHandshake
	}

	return hs.StudentID, nil
}

// runStudent is the student connection's read loop. Frames are relayed
// synchronously from here, which is what keeps one student's frames in
// production order across the fan-out.
func (h *Handler) runStudent(conn *Connection) {
	studentID := conn.StudentID()

	defer func() {
		h.registry.UnregisterStudent(studentID, conn)
		_ = conn.Close()
	}()

	h.startHeartbeat(conn)

	for {
		var msg types.ClientMessage
		if err := h.readJSON(conn, &msg); err != nil {
			return
		}

		if msg.Type == types.MessageTypeScreen {
			h.relay.BroadcastFrame(studentID, msg.Image)
		}
	}
}

// runObserver is the observer connection's read loop; the only client
// message it accepts is a subscribe request for a cached frame.
func (h *Handler) runObserver(conn *Connection) {
	defer func() {
		h.registry.UnregisterObserver(conn)
		_ = conn.Close()
	}()

	h.startHeartbeat(conn)

	for {
		var msg types.ClientMessage
		if err := h.readJSON(conn, &msg); err != nil {
			return
		}

		if msg.Type == types.MessageTypeSubscribe {
			h.relay.SendCachedFrame(conn, msg.StudentID)
		}
	}
}

// startHeartbeat installs the read deadline + pong handler and starts the
// ping ticker. The ticker goroutine exits with the connection context.
func (h *Handler) startHeartbeat(conn *Connection) {
	_ = conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()
}

// readJSON reads the next text message and decodes it. Close errors other
// than a normal goodbye are logged once at debug.
func (h *Handler) readJSON(conn *Connection, v interface{}) error {
	messageType, data, err := conn.conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
			h.logger.Debug("websocket read failed", zap.Error(err))
		}
		return err
	}

	if messageType != websocket.TextMessage {
		return nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		h.logger.Debug("discarding malformed client message", zap.Error(err))
	}
	return nil
}
