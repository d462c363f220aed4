package relay

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Conn is the subset of the websocket connection the session writes to.
// Narrowed to an interface so tests can capture outbound frames.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session pairs one identity with one live connection. Outbound writes go
// through a buffered channel drained by a single write pump, so any
// goroutine may deliver to the session without racing on the socket.
type Session struct {
	ID     string
	UserID string

	conn   Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}
}

// NewSession constructs a Session for the given identity.
func NewSession(userID string, conn Conn, bufferSize int) *Session {
	return &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, bufferSize),
		closed: make(chan struct{}),
	}
}

// Start launches the write pump. Call exactly once per session.
func (s *Session) Start() {
	go s.writePump()
}

// Deliver encodes the event and enqueues the frame. Delivery is best effort:
// a closed session or a full buffer drops the frame rather than blocking the
// caller.
func (s *Session) Deliver(event string, data any) bool {
	frame, err := EncodeEvent(event, data)
	if err != nil {
		return false
	}
	return s.push(frame)
}

func (s *Session) push(frame []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Close terminates the connection and stops the write pump.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case frame := <-s.send:
			if err := s.write(websocket.TextMessage, frame); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *Session) write(messageType int, payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, payload)
}
