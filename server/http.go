// Package server exposes the REST surface and the websocket relay endpoint.
package server

import (
	"log/slog"
	"strings"

	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

type Server struct {
	log            *slog.Logger
	tokens         auth.Tokens
	authService    services.IAuthService
	chatService    services.IChatService
	users          repositories.IUserRepository
	sendBufferSize int
}

func New(log *slog.Logger, tokens auth.Tokens,
	authService services.IAuthService, chatService services.IChatService,
	users repositories.IUserRepository, sendBufferSize int) *Server {
	return &Server{
		log:            log,
		tokens:         tokens,
		authService:    authService,
		chatService:    chatService,
		users:          users,
		sendBufferSize: sendBufferSize,
	}
}

// App builds the fiber application with all routes attached.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true, "message": "Server running"})
	})

	api := app.Group("/api/v1")
	api.Post("/auth/register", s.handleRegister)
	api.Post("/auth/login", s.handleLogin)

	authed := api.Use(s.requireAuth)
	authed.Get("/users", s.handleListUsers)
	authed.Get("/conversations", s.handleListConversations)
	authed.Get("/conversations/with/:userId", s.handleConversationWith)
	authed.Get("/conversations/:id/messages", s.handleListMessages)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		// The identity gate runs once, before any event handler is attached.
		// A bad credential refuses the connection attempt itself.
		claims, err := s.tokens.Verify(bearerToken(c))
		if err != nil {
			s.log.Warn("websocket handshake refused", "error", err)
			return fiber.NewError(fiber.StatusUnauthorized, errors.ErrUnauthenticated.Error())
		}
		c.Locals("user_id", claims.UserID)
		c.Locals("email", claims.Email)
		return c.Next()
	})
	app.Get("/ws", websocket.New(s.handleSocket))

	return app
}

// requireAuth is the HTTP counterpart of the websocket identity gate.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	claims, err := s.tokens.Verify(bearerToken(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": errors.ErrUnauthenticated.Error()})
	}
	c.Locals("user_id", claims.UserID)
	c.Locals("email", claims.Email)
	return c.Next()
}

// bearerToken extracts the credential from the Authorization header or the
// token query parameter, in that order.
func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}
