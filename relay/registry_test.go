package relay

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testConn captures frames written by the session's write pump.
type testConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *testConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data != nil {
		c.frames = append(c.frames, data)
	}
	return nil
}

func (c *testConn) SetWriteDeadline(_ time.Time) error { return nil }
func (c *testConn) Close() error                       { return nil }

func (c *testConn) events() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var envelopes []Envelope
	for _, frame := range c.frames {
		var envelope Envelope
		if err := json.Unmarshal(frame, &envelope); err == nil {
			envelopes = append(envelopes, envelope)
		}
	}
	return envelopes
}

func newTestSession(userID string) (*Session, *testConn) {
	conn := &testConn{}
	session := NewSession(userID, conn, 16)
	session.Start()
	return session, conn
}

func TestRegistry_Register_First_Session_Is_Online_Edge(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()

	// Given no live session for the user
	req.Zero(registry.LiveSessions(userID))

	// When the user connects twice
	first, _ := newTestSession(userID)
	second, _ := newTestSession(userID)

	// Then only the first registration reports the online edge
	req.True(registry.Register(first))
	req.False(registry.Register(second))
	req.Equal(2, registry.LiveSessions(userID))
}

func TestRegistry_Unregister_Last_Session_Is_Offline_Edge(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()

	// Given a user with three live sessions
	var sessions []*Session
	for i := 0; i < 3; i++ {
		session, _ := newTestSession(userID)
		registry.Register(session)
		sessions = append(sessions, session)
	}

	// When all but one disconnect
	req.False(registry.Unregister(sessions[0]))
	req.False(registry.Unregister(sessions[1]))
	req.Equal(1, registry.LiveSessions(userID))

	// Then only the last disconnect reports the offline edge
	req.True(registry.Unregister(sessions[2]))
	req.Zero(registry.LiveSessions(userID))

	// And a stale unregister is not a second edge
	req.False(registry.Unregister(sessions[2]))
}

func TestRegistry_DeliverTo_Fans_Out_To_Every_Session(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()

	// Given a user connected on two devices
	session1, conn1 := newTestSession(userID)
	session2, conn2 := newTestSession(userID)
	registry.Register(session1)
	registry.Register(session2)

	// When one event is delivered to the identity
	registry.DeliverTo(userID, EventMessageNew, MessagePayload{Text: "hi"})

	// Then each device receives it exactly once
	for _, conn := range []*testConn{conn1, conn2} {
		req.Eventually(func() bool {
			return len(conn.events()) == 1
		}, time.Second, 10*time.Millisecond)
		req.Equal(EventMessageNew, conn.events()[0].Event)
	}
}

func TestRegistry_DeliverTo_Unknown_Identity_Is_NoOp(t *testing.T) {
	registry := NewRegistry()

	// No live handles: the event is dropped, not an error
	registry.DeliverTo(uuid.NewString(), EventMessageNew, MessagePayload{Text: "hi"})
}

func TestRegistry_Broadcast_Reaches_All_Identities(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given two connected identities
	session1, conn1 := newTestSession(uuid.NewString())
	session2, conn2 := newTestSession(uuid.NewString())
	registry.Register(session1)
	registry.Register(session2)

	// When a presence transition is broadcast
	registry.Broadcast(EventPresenceOnline, PresenceOnlinePayload{UserID: "someone"})

	// Then every connected party receives it
	for _, conn := range []*testConn{conn1, conn2} {
		req.Eventually(func() bool {
			return len(conn.events()) == 1
		}, time.Second, 10*time.Millisecond)
		req.Equal(EventPresenceOnline, conn.events()[0].Event)
	}
}

func TestRegistry_Concurrent_Connects_Fire_One_Online_Edge(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()

	// When many connects for the same identity race
	const n = 16
	edges := make(chan bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, _ := newTestSession(userID)
			edges <- registry.Register(session)
		}()
	}
	wg.Wait()
	close(edges)

	// Then exactly one of them observes the 0 -> 1 edge
	onlineEdges := 0
	for edge := range edges {
		if edge {
			onlineEdges++
		}
	}
	req.Equal(1, onlineEdges)
	req.Equal(n, registry.LiveSessions(userID))
}
