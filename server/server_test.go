package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/relay"
	"chat-relay/repositories"
	"chat-relay/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testConn captures frames written by a session's write pump.
type testConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *testConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data != nil {
		c.frames = append(c.frames, data)
	}
	return nil
}

func (c *testConn) SetWriteDeadline(_ time.Time) error { return nil }
func (c *testConn) Close() error                       { return nil }

func (c *testConn) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, frame := range c.frames {
		var envelope relay.Envelope
		if json.Unmarshal(frame, &envelope) == nil && envelope.Event == event {
			n++
		}
	}
	return n
}

func (c *testConn) payload(t *testing.T, event string, out any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, frame := range c.frames {
		var envelope relay.Envelope
		if json.Unmarshal(frame, &envelope) == nil && envelope.Event == event {
			require.NoError(t, json.Unmarshal(envelope.Data, out))
			return
		}
	}
	t.Fatalf("no %s event captured", event)
}

type fixture struct {
	server      *Server
	app         *fiber.App
	tokens      auth.Tokens
	chatService services.IChatService
	users       repositories.IUserRepository
	messages    repositories.IMessageRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := relay.NewRegistry()
	users := repositories.NewUserRepository(db)
	conversations := repositories.NewConversationRepository(db)
	messages := repositories.NewMessageRepository(db, slog.Default())
	chatService := services.NewChatService(slog.Default(), registry, users, conversations, messages)
	tokens := auth.NewTokens("test-secret", time.Hour)
	authService := services.NewAuthService(users, tokens)
	server := New(slog.Default(), tokens, authService, chatService, users, 16)
	return &fixture{
		server:      server,
		app:         server.App(),
		tokens:      tokens,
		chatService: chatService,
		users:       users,
		messages:    messages,
	}
}

// connect attaches a live session for the identity, as the socket handler does.
func (f *fixture) connect(userID string) (*relay.Session, *testConn) {
	conn := &testConn{}
	session := relay.NewSession(userID, conn, 16)
	session.Start()
	f.chatService.Connected(session)
	return session, conn
}

func TestWebsocketHandshake_Refuses_Bad_Credentials(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// A plain GET without an upgrade is refused outright
	request := httptest.NewRequest("GET", "/ws", nil)
	resp, err := f.app.Test(request)
	req.NoError(err)
	req.Equal(fiber.StatusUpgradeRequired, resp.StatusCode)

	// An upgrade attempt with a bad token never reaches the event loop
	request = httptest.NewRequest("GET", "/ws?token=not-a-jwt", nil)
	request.Header.Set("Connection", "Upgrade")
	request.Header.Set("Upgrade", "websocket")
	request.Header.Set("Sec-WebSocket-Version", "13")
	request.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	resp, err = f.app.Test(request)
	req.NoError(err)
	req.Equal(fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCatalogue_Requires_Bearer_Token(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Without a credential
	request := httptest.NewRequest("GET", "/api/v1/users", nil)
	resp, err := f.app.Test(request)
	req.NoError(err)
	req.Equal(fiber.StatusUnauthorized, resp.StatusCode)

	// With one issued by the gate
	user, err := f.users.CreateUser("Alice", "alice@example.com", "hash")
	req.NoError(err)
	token, err := f.tokens.Generate(user.ID, user.Email)
	req.NoError(err)

	request = httptest.NewRequest("GET", "/api/v1/users", nil)
	request.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err = f.app.Test(request)
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)
}

func TestDispatch_MessageSend_Acks_Origin_Connection_Only(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given a1 on two devices and b1 on one
	origin, originConn := f.connect("a1")
	_, otherConn := f.connect("a1")
	_, peerConn := f.connect("b1")

	// When the first device sends a message
	f.server.dispatch(origin, relay.Envelope{
		Event: relay.EventMessageSend,
		Data:  json.RawMessage(`{"to":"b1","text":"hi"}`),
	})

	// Then only the originating connection receives the ack
	req.Eventually(func() bool {
		return originConn.count(relay.EventMessageSent) == 1
	}, time.Second, 10*time.Millisecond)
	req.Zero(otherConn.count(relay.EventMessageSent))
	req.Zero(peerConn.count(relay.EventMessageSent))

	var ack relay.SentPayload
	originConn.payload(t, relay.EventMessageSent, &ack)
	req.NotEmpty(ack.ID)
	req.NotEmpty(ack.ConversationID)

	// And every device of both participants got the fan-out exactly once
	for _, conn := range []*testConn{originConn, otherConn, peerConn} {
		req.Eventually(func() bool {
			return conn.count(relay.EventMessageNew) == 1
		}, time.Second, 10*time.Millisecond)
	}
}

func TestDispatch_Reports_Failures_To_Origin(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	origin, conn := f.connect("a1")

	// Missing fields on message:send
	f.server.dispatch(origin, relay.Envelope{
		Event: relay.EventMessageSend,
		Data:  json.RawMessage(`{"to":""}`),
	})
	req.Eventually(func() bool {
		return conn.count(relay.EventError) == 1
	}, time.Second, 10*time.Millisecond)
	var failure relay.ErrorPayload
	conn.payload(t, relay.EventError, &failure)
	req.Equal(relay.EventMessageSend, failure.Event)

	// Unknown event name
	f.server.dispatch(origin, relay.Envelope{
		Event: "message:unknown",
		Data:  json.RawMessage(`{}`),
	})
	req.Eventually(func() bool {
		return conn.count(relay.EventError) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestListMessages_Limit_Zero_Falls_Back_To_Default(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice, err := f.users.CreateUser("Alice", "alice@example.com", "hash")
	req.NoError(err)
	bob, err := f.users.CreateUser("Bob", "bob@example.com", "hash")
	req.NoError(err)

	convo, err := f.chatService.ResolveConversation(alice.ID, bob.ID)
	req.NoError(err)

	// Given more stored messages than the cap allows per page
	base := time.Now().UTC()
	for i := 0; i < maxMessageLimit+20; i++ {
		req.NoError(f.messages.StoreMessage(domain.Message{
			ID:             uuid.New(),
			ConversationID: convo.ID,
			From:           alice.ID,
			To:             bob.ID,
			Text:           fmt.Sprintf("m%d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	token, err := f.tokens.Generate(alice.ID, alice.Email)
	req.NoError(err)

	page := func(query string) int {
		request := httptest.NewRequest("GET",
			"/api/v1/conversations/"+convo.ID.String()+"/messages"+query, nil)
		request.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		resp, err := f.app.Test(request, 5000)
		req.NoError(err)
		req.Equal(fiber.StatusOK, resp.StatusCode)
		var body struct {
			Messages []json.RawMessage `json:"messages"`
		}
		req.NoError(json.NewDecoder(resp.Body).Decode(&body))
		return len(body.Messages)
	}

	// Absent and zero limits fall back to the default page size
	req.Equal(defaultMessageLimit, page(""))
	req.Equal(defaultMessageLimit, page("?limit=0"))

	// Oversized limits are capped
	req.Equal(maxMessageLimit, page("?limit=10000"))
}

func TestParseQueryInt(t *testing.T) {
	req := require.New(t)
	tests := []struct {
		raw      string
		fallback int
		want     int
	}{
		{"", 50, 50},
		{"abc", 50, 50},
		{"0", 50, 50},
		{"-3", 50, 50},
		{"7", 50, 7},
	}
	for _, tc := range tests {
		req.Equal(tc.want, parseQueryInt(tc.raw, tc.fallback), "raw=%q", tc.raw)
	}
}
