package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Role classifies what a connection turned out to be. Every session starts
// unclassified; the first meaningful event decides.
type Role int

const (
	RoleUnclassified Role = iota
	RoleDevice
	RoleDriverSubscriber
	RoleAdminEnrolling
)

func (r Role) String() string {
	switch r {
	case RoleDevice:
		return "device"
	case RoleDriverSubscriber:
		return "driver-subscriber"
	case RoleAdminEnrolling:
		return "admin-enrolling"
	default:
		return "unclassified"
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 64
)

// Session is one live connection. Role and device metadata are owned by the
// hub and only mutated under its lock; the pumps touch nothing but conn and
// send.
type Session struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	done     chan struct{}
	doneOnce sync.Once

	role           Role
	deviceID       string
	deviceVersion  string
	deviceFeatures string
	deviceStatus   string
	lastSeen       time.Time
	lastPong       time.Time
}

func newSession(h *Hub, conn *websocket.Conn) *Session {
	return &Session{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan Message, sendBuffer),
		done: make(chan struct{}),
	}
}

// close signals the write pump to say goodbye and stop. Safe to call more
// than once.
func (s *Session) close() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Send queues a message without ever blocking the caller. A consumer that
// cannot keep up loses messages rather than stalling the router; the
// connection-level ping/pong will eventually reap it if it is truly dead.
func (s *Session) Send(event string, data any) {
	select {
	case s.send <- Message{Event: event, Data: data}:
	default:
		s.hub.log.Warn("dropping message for slow session",
			zap.String("session_id", s.ID),
			zap.String("event", event))
	}
}

// readPump reads and dispatches messages for the life of the connection.
// Each session's events are handled here sequentially, so one device's tag
// reads are processed in arrival order; different sessions run on their own
// pumps and interleave freely.
func (s *Session) readPump() {
	defer func() {
		s.hub.Unregister(s)
		s.conn.Close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.log.Warn("session closed unexpectedly",
					zap.String("session_id", s.ID), zap.Error(err))
			}
			return
		}
		s.hub.dispatch(s, env)
	}
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
