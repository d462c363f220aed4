package server

import (
	stderrors "errors"
	"strconv"

	"chat-relay/errors"

	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": errors.ErrInvalidInput.Error()})
	}

	token, user, err := s.authService.Register(req.Name, req.Email, req.Password)
	switch {
	case stderrors.Is(err, errors.ErrUserAlreadyExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case stderrors.Is(err, errors.ErrInvalidInput), stderrors.Is(err, errors.ErrInvalidPassword):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		s.log.Error("register failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token": string(token),
		"user":  toUserResponse(user),
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": errors.ErrInvalidInput.Error()})
	}

	token, user, err := s.authService.Login(req.Email, req.Password)
	switch {
	case stderrors.Is(err, errors.ErrStoreUnavailable):
		s.log.Error("login failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error"})
	case err != nil:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": errors.ErrInvalidCredentials.Error()})
	}

	return c.JSON(fiber.Map{
		"token": string(token),
		"user":  toUserResponse(user),
	})
}

// handleListUsers returns every user except the requester.
func (s *Server) handleListUsers(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	users, err := s.users.ListUsers(userID)
	if err != nil {
		s.log.Error("list users failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error"})
	}
	return c.JSON(fiber.Map{"users": toUserResponses(users)})
}

// handleListConversations returns the requester's conversations, most recent
// activity first.
func (s *Server) handleListConversations(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	convos, err := s.chatService.ListConversations(userID)
	if err != nil {
		s.log.Error("list conversations failed", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error"})
	}
	return c.JSON(fiber.Map{"conversations": toConversationResponses(convos)})
}

// handleConversationWith finds or creates the conversation between the
// requester and the target user.
func (s *Server) handleConversationWith(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	otherID := c.Params("userId")

	convo, err := s.chatService.ResolveConversation(userID, otherID)
	switch {
	case stderrors.Is(err, errors.ErrInvalidParticipant):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		s.log.Error("conversation resolve failed", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error"})
	}
	return c.JSON(fiber.Map{"conversation": toConversationResponse(convo)})
}

// handleListMessages pages through a conversation's messages in
// chronological order.
func (s *Server) handleListMessages(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	conversationID := c.Params("id")

	limit := parseQueryInt(c.Query("limit"), defaultMessageLimit)
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}
	skip := parseQueryInt(c.Query("skip"), 0)

	convo, messages, err := s.chatService.ListMessages(userID, conversationID, limit, skip)
	switch {
	case stderrors.Is(err, errors.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid conversation id"})
	case stderrors.Is(err, errors.ErrConversationNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	case stderrors.Is(err, errors.ErrNotParticipant):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		s.log.Error("list messages failed", "conversation_id", conversationID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error"})
	}

	return c.JSON(fiber.Map{
		"conversation": toConversationResponse(convo),
		"messages":     toMessageResponses(messages),
	})
}

// parseQueryInt parses a pagination parameter. Missing, malformed, zero and
// negative values all fall back, so a zero limit cannot disable the cap.
func parseQueryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
