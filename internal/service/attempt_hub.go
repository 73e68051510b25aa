package service

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"lingua_exam_backend/internal/session"
	"lingua_exam_backend/internal/util"
	"lingua_exam_backend/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientEvent is what the exam page sends upstream: playback and recording
// lifecycle signals.
type clientEvent struct {
	Type string `json:"type"`
}

// attemptStream fans session notices out to however many sockets the attempt
// has open (usually one; a reconnect briefly makes it two). It is the
// session's Notifier, so Notify must never block the session lock: slow
// clients get dropped notices, not a stalled exam.
type attemptStream struct {
	mu    sync.Mutex
	conns map[*streamClient]struct{}
}

func (st *attemptStream) Notify(n session.Notice) {
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for c := range st.conns {
		select {
		case c.send <- payload:
		default:
		}
	}
}

func (st *attemptStream) attach(c *streamClient) {
	st.mu.Lock()
	st.conns[c] = struct{}{}
	st.mu.Unlock()
}

func (st *attemptStream) detach(c *streamClient) {
	st.mu.Lock()
	delete(st.conns, c)
	st.mu.Unlock()
}

func (st *attemptStream) closeAll() {
	st.mu.Lock()
	conns := make([]*streamClient, 0, len(st.conns))
	for c := range st.conns {
		conns = append(conns, c)
	}
	st.conns = make(map[*streamClient]struct{})
	st.mu.Unlock()

	for _, c := range conns {
		close(c.send)
	}
}

// StreamHub tracks one attemptStream per live attempt.
type StreamHub struct {
	mu      sync.Mutex
	streams map[string]*attemptStream
}

func NewStreamHub() *StreamHub {
	return &StreamHub{streams: make(map[string]*attemptStream)}
}

// Open creates the attempt's stream; it exists before any socket connects so
// no notice emitted at session start is lost to a nil notifier.
func (h *StreamHub) Open(attemptID string) *attemptStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := &attemptStream{conns: make(map[*streamClient]struct{})}
	h.streams[attemptID] = st
	return st
}

func (h *StreamHub) Close(attemptID string) {
	h.mu.Lock()
	st, ok := h.streams[attemptID]
	delete(h.streams, attemptID)
	h.mu.Unlock()

	if ok {
		st.closeAll()
	}
}

func (h *StreamHub) get(attemptID string) (*attemptStream, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.streams[attemptID]
	return st, ok
}

type streamClient struct {
	stream *attemptStream
	conn   *websocket.Conn
	send   chan []byte

	attemptID string
	userID    uint
	limiter   *rate.Limiter
	onEvent   func(eventType string)
}

// ServeWS upgrades the request and runs the read/write pumps for one socket.
// onEvent receives each well-formed client event.
func (h *StreamHub) ServeWS(w http.ResponseWriter, r *http.Request, attemptID string, userID uint, onEvent func(eventType string)) error {
	st, ok := h.get(attemptID)
	if !ok {
		return util.ErrSessionClosed
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &streamClient{
		stream:    st,
		conn:      conn,
		send:      make(chan []byte, 64),
		attemptID: attemptID,
		userID:    userID,
		limiter:   rate.NewLimiter(rate.Limit(20), 40),
		onEvent:   onEvent,
	}
	st.attach(c)

	go c.writePump()
	go c.readPump()
	return nil
}

func (c *streamClient) readPump() {
	defer func() {
		c.stream.detach(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("attempt socket closed unexpectedly",
					zap.Error(err), zap.String("attemptId", c.attemptID), zap.Uint("userId", c.userID))
			}
			break
		}
		if !c.limiter.Allow() {
			continue
		}

		var ev clientEvent
		if err := json.Unmarshal(message, &ev); err != nil || ev.Type == "" {
			continue
		}
		c.onEvent(ev.Type)
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
