package server

import (
	"encoding/json"
	stderrors "errors"

	"chat-relay/errors"
	"chat-relay/relay"

	"github.com/gofiber/contrib/websocket"
)

// handleSocket runs one authenticated connection. The identity gate already
// ran during the upgrade; the claims travel through the connection locals.
// Cleanup is deferred so unregistration and the possible offline transition
// run no matter how the handler loop ends.
func (s *Server) handleSocket(conn *websocket.Conn) {
	userID := conn.Locals("user_id").(string)

	session := relay.NewSession(userID, conn, s.sendBufferSize)
	session.Start()
	s.chatService.Connected(session)
	s.log.Info("socket connected", "session_id", session.ID, "user_id", userID)

	defer func() {
		s.chatService.Disconnected(session)
		session.Close()
		s.log.Info("socket disconnected", "session_id", session.ID, "user_id", userID)
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope relay.Envelope
		if err := json.Unmarshal(frame, &envelope); err != nil {
			session.Deliver(relay.EventError, relay.ErrorPayload{Event: "", Error: errors.ErrInvalidInput.Error()})
			continue
		}
		s.dispatch(session, envelope)
	}
}

// dispatch routes one inbound event. Handler failures are reported to the
// originating connection only and never affect other sessions.
func (s *Server) dispatch(session *relay.Session, envelope relay.Envelope) {
	switch envelope.Event {
	case relay.EventMessageSend:
		s.onMessageSend(session, envelope.Data)
	case relay.EventTypingStart:
		s.onTyping(session, envelope.Data, true)
	case relay.EventTypingStop:
		s.onTyping(session, envelope.Data, false)
	case relay.EventMessageRead:
		s.onMessageRead(session, envelope.Data)
	default:
		session.Deliver(relay.EventError, relay.ErrorPayload{
			Event: envelope.Event,
			Error: "Unknown event",
		})
	}
}

func (s *Server) onMessageSend(session *relay.Session, data json.RawMessage) {
	var payload relay.SendPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.To == "" || payload.Text == "" {
		session.Deliver(relay.EventError, relay.ErrorPayload{
			Event: relay.EventMessageSend,
			Error: "Missing fields",
		})
		return
	}

	message, err := s.chatService.SendMessage(session.UserID, payload.To, payload.Text)
	switch {
	case stderrors.Is(err, errors.ErrInvalidInput), stderrors.Is(err, errors.ErrInvalidParticipant):
		session.Deliver(relay.EventError, relay.ErrorPayload{
			Event: relay.EventMessageSend,
			Error: err.Error(),
		})
		return
	case err != nil:
		s.log.Error("message send failed", "user_id", session.UserID, "error", err)
		session.Deliver(relay.EventError, relay.ErrorPayload{
			Event: relay.EventMessageSend,
			Error: "Server error",
		})
		return
	}

	// Ack to the originating connection only; both participants receive the
	// message:new fan-out from the service.
	session.Deliver(relay.EventMessageSent, relay.SentPayload{
		ID:             message.ID.String(),
		ConversationID: message.ConversationID.String(),
	})
}

func (s *Server) onTyping(session *relay.Session, data json.RawMessage, start bool) {
	var payload relay.TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	s.chatService.Typing(session.UserID, payload.To, payload.ConversationID, start)
}

func (s *Server) onMessageRead(session *relay.Session, data json.RawMessage) {
	var payload relay.ReadPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	if _, err := s.chatService.MarkRead(session.UserID, payload.ConversationID); err != nil {
		s.log.Warn("mark read failed",
			"user_id", session.UserID,
			"conversation_id", payload.ConversationID,
			"error", err)
	}
}
