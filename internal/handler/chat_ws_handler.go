package handler

import (
	"context"
	"encoding/json"
	"time"

	"clinic-chat-be/internal/dto"
	"clinic-chat-be/internal/entity"
	"clinic-chat-be/internal/pkg/logger"
	"clinic-chat-be/internal/pkg/serverutils"
	"clinic-chat-be/internal/service"
	internalWS "clinic-chat-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	InboundSend  = "chat.send"
	InboundRead  = "chat.read"
	FrameError   = "chat.error"
	inboundLimit = 10 * time.Second
)

// InboundFrame is what a socket peer may send. Visitors omit SessionId; their
// active session is resolved from the connection's visitor id.
type InboundFrame struct {
	Type      string `json:"type"`
	SessionId string `json:"session_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type errorFrameData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// ChatWsHandler upgrades visitor and operator sockets and feeds their inbound
// frames to the chat service.
type ChatWsHandler struct {
	service service.IChatService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewChatWsHandler(service service.IChatService, hub *internalWS.Hub, log logger.ILogger) *ChatWsHandler {
	return &ChatWsHandler{
		service: service,
		hub:     hub,
		logger:  log,
	}
}

// RegisterRoutes must run before routes with a trailing /:param on the same
// prefixes, or "ws" is captured as the parameter.
func (h *ChatWsHandler) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	r.Get("/chat/v1/visitor/ws", h.ServeVisitor)
	r.Get("/chat/v1/operators/ws", auth, h.ServeOperator)
}

func (h *ChatWsHandler) ServeVisitor(c *fiber.Ctx) error {
	visitorId := c.Query("visitor_id")
	if visitorId == "" {
		return fiber.NewError(fiber.StatusBadRequest, "visitor_id is required")
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("CHAT_WS", "Visitor connected", map[string]interface{}{"visitor_id": visitorId})
		internalWS.ServeWs(h.hub, conn, internalWS.VisitorAudience(visitorId), func(client *internalWS.Client, payload []byte) {
			h.handleVisitorFrame(client, visitorId, payload)
		})
		h.logger.Info("CHAT_WS", "Visitor disconnected", map[string]interface{}{"visitor_id": visitorId})
	})(c)
}

func (h *ChatWsHandler) ServeOperator(c *fiber.Ctx) error {
	userId, err := serverutils.UserID(c)
	if err != nil {
		return err
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("CHAT_WS", "Operator connected", map[string]interface{}{"user_id": userId.String()})
		internalWS.ServeWs(h.hub, conn, internalWS.OperatorAudience(userId), func(client *internalWS.Client, payload []byte) {
			h.handleOperatorFrame(client, userId, payload)
		})
		h.logger.Info("CHAT_WS", "Operator disconnected", map[string]interface{}{"user_id": userId.String()})
	})(c)
}

func (h *ChatWsHandler) handleVisitorFrame(client *internalWS.Client, visitorId string, payload []byte) {
	var in InboundFrame
	if err := json.Unmarshal(payload, &in); err != nil {
		h.replyError(client, "", fiber.NewError(fiber.StatusBadRequest, "malformed frame"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), inboundLimit)
	defer cancel()

	switch in.Type {
	case InboundSend:
		if _, err := h.service.SendVisitorMessage(ctx, visitorId, in.Content); err != nil {
			h.replyError(client, in.Type, serverutils.SendFailure(err))
		}
	default:
		h.replyError(client, in.Type, fiber.NewError(fiber.StatusBadRequest, "unsupported frame type"))
	}
}

func (h *ChatWsHandler) handleOperatorFrame(client *internalWS.Client, userId uuid.UUID, payload []byte) {
	var in InboundFrame
	if err := json.Unmarshal(payload, &in); err != nil {
		h.replyError(client, "", fiber.NewError(fiber.StatusBadRequest, "malformed frame"))
		return
	}

	sessionId, err := uuid.Parse(in.SessionId)
	if err != nil {
		h.replyError(client, in.Type, fiber.NewError(fiber.StatusBadRequest, "invalid session_id"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), inboundLimit)
	defer cancel()

	switch in.Type {
	case InboundSend:
		_, err = h.service.SendMessage(ctx, &dto.SendChatMessageRequest{
			SessionId:  sessionId,
			SenderType: string(entity.SenderOperator),
			SenderId:   &userId,
			Content:    in.Content,
		})
		if err != nil {
			h.replyError(client, in.Type, serverutils.SendFailure(err))
		}
	case InboundRead:
		if _, err = h.service.MarkSessionRead(ctx, sessionId, true); err != nil {
			h.replyError(client, in.Type, err)
		}
	default:
		h.replyError(client, in.Type, fiber.NewError(fiber.StatusBadRequest, "unsupported frame type"))
	}
}

func (h *ChatWsHandler) replyError(client *internalWS.Client, frameType string, err error) {
	code, message := serverutils.StatusFor(err)
	if code >= fiber.StatusInternalServerError {
		h.logger.Error("CHAT_WS", "Inbound frame failed", map[string]interface{}{
			"audience": client.Audience,
			"type":     frameType,
			"error":    err.Error(),
		})
	}

	data, _ := json.Marshal(internalWS.Frame{
		Type: FrameError,
		Data: errorFrameData{Code: code, Message: message, Type: frameType},
	})
	client.Reply(data)
}
