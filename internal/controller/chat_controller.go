package controller

import (
	"fmt"

	"clinic-chat-be/internal/dto"
	"clinic-chat-be/internal/entity"
	"clinic-chat-be/internal/pkg/serverutils"
	"clinic-chat-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)

	// Visitor
	StartVisitorSession(ctx *fiber.Ctx) error
	SendVisitorMessage(ctx *fiber.Ctx) error
	ListVisitorMessages(ctx *fiber.Ctx) error

	// Operator
	ListSessions(ctx *fiber.Ctx) error
	ListArchivedSessions(ctx *fiber.Ctx) error
	GetSession(ctx *fiber.Ctx) error
	ListMessages(ctx *fiber.Ctx) error
	SendOperatorMessage(ctx *fiber.Ctx) error
	MarkSessionRead(ctx *fiber.Ctx) error
	MarkMessageRead(ctx *fiber.Ctx) error
	ArchiveSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	DeleteMessage(ctx *fiber.Ctx) error
	ExportTranscript(ctx *fiber.Ctx) error
	GetQueueStatus(ctx *fiber.Ctx) error

	// Presence
	SetAvailability(ctx *fiber.Ctx) error
	ListAvailableOperators(ctx *fiber.Ctx) error
	RegisterOperator(ctx *fiber.Ctx) error
	GetOperator(ctx *fiber.Ctx) error
	RemoveOperator(ctx *fiber.Ctx) error
}

type chatController struct {
	service     service.IChatService
	transcripts service.ITranscriptService
	auth        fiber.Handler
}

func NewChatController(service service.IChatService, transcripts service.ITranscriptService, auth fiber.Handler) IChatController {
	return &chatController{
		service:     service,
		transcripts: transcripts,
		auth:        auth,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	visitor := r.Group("/chat/v1/visitor")
	visitor.Post("/session", c.StartVisitorSession)
	visitor.Post("/messages", c.SendVisitorMessage)
	visitor.Get("/session/:visitorId/messages", c.ListVisitorMessages)

	sessions := r.Group("/chat/v1/sessions", c.auth)
	sessions.Get("", c.ListSessions)
	sessions.Get("/archived", c.ListArchivedSessions)
	sessions.Get("/:id", c.GetSession)
	sessions.Get("/:id/messages", c.ListMessages)
	sessions.Post("/:id/messages", c.SendOperatorMessage)
	sessions.Patch("/:id/read", c.MarkSessionRead)
	sessions.Patch("/:id/archive", c.ArchiveSession)
	sessions.Delete("/:id", c.DeleteSession)
	sessions.Get("/:id/transcript.xlsx", c.ExportTranscript)

	messages := r.Group("/chat/v1/messages", c.auth)
	messages.Patch("/:id/read", c.MarkMessageRead)
	messages.Delete("/:id", c.DeleteMessage)

	r.Get("/chat/v1/queue", c.auth, c.GetQueueStatus)

	operators := r.Group("/chat/v1/operators", c.auth)
	operators.Put("/me/availability", c.SetAvailability)
	operators.Get("/available", c.ListAvailableOperators)
	operators.Post("", c.RegisterOperator)
	operators.Get("/:userId", c.GetOperator)
	operators.Delete("/:userId", c.RemoveOperator)
}

func parseIdParam(ctx *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

func parseBody(ctx *fiber.Ctx, req interface{}) error {
	if err := ctx.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return serverutils.ValidateRequest(req)
}

func (c *chatController) StartVisitorSession(ctx *fiber.Ctx) error {
	var req dto.VisitorSessionRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.GetOrCreateSession(ctx.UserContext(), req.VisitorId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get chat session", res))
}

func (c *chatController) SendVisitorMessage(ctx *fiber.Ctx) error {
	var req dto.VisitorMessageRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.SendVisitorMessage(ctx.UserContext(), req.VisitorId, req.Content)
	if err != nil {
		return serverutils.SendFailure(err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success send message", res))
}

func (c *chatController) ListVisitorMessages(ctx *fiber.Ctx) error {
	res, err := c.service.ListVisitorMessages(ctx.UserContext(), ctx.Params("visitorId"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get messages", res))
}

func (c *chatController) ListSessions(ctx *fiber.Ctx) error {
	res, err := c.service.ListSessions(ctx.UserContext())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get active sessions", res))
}

func (c *chatController) ListArchivedSessions(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", service.DefaultArchivedPageSize)
	offset := ctx.QueryInt("offset", 0)

	res, err := c.service.ListArchivedSessions(ctx.UserContext(), limit, offset)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get archived sessions", res))
}

func (c *chatController) GetSession(ctx *fiber.Ctx) error {
	id, err := parseIdParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.GetSession(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get session", res))
}

func (c *chatController) ListMessages(ctx *fiber.Ctx) error {
	id, err := parseIdParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.ListMessages(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get messages", res))
}

func (c *chatController) SendOperatorMessage(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := parseIdParam(ctx, "id")
	if err != nil {
		return err
	}

	var req dto.OperatorMessageRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.SendMessage(ctx.UserContext(), &dto.SendChatMessageRequest{
		SessionId:  id,
		SenderType: string(entity.SenderOperator),
		SenderId:   &userId,
		Content:    req.Content,
	})
	if err != nil {
		return serverutils.SendFailure(err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success send message", res))
}

// MarkSessionRead clears the unread flag; ?messages=true also marks every message read.
func (c *chatController) MarkSessionRead(ctx *fiber.Ctx) error {
	id, err := parseIdParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.MarkSessionRead(ctx.UserContext(), id, ctx.QueryBool("messages", false))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success mark session read", res))
}

func (c *chatController) MarkMessageRead(ctx *fiber.Ctx) error {
	id, err := parseIdParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.MarkMessageRead(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success mark message read", res))
}

func (c *chatController) ArchiveSession(ctx *fiber.Ctx) error {
	id, err := parseIdParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.ArchiveSession(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success archive session", res))
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	id, err := parseIdParam(ctx, "id")
	if err != nil {
		return err
	}

	if err := c.service.DeleteSession(ctx.UserContext(), id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete session", nil))
}

func (c *chatController) DeleteMessage(ctx *fiber.Ctx) error {
	id, err := parseIdParam(ctx, "id")
	if err != nil {
		return err
	}

	if err := c.service.DeleteMessage(ctx.UserContext(), id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete message", nil))
}

func (c *chatController) ExportTranscript(ctx *fiber.Ctx) error {
	id, err := parseIdParam(ctx, "id")
	if err != nil {
		return err
	}

	data, filename, err := c.transcripts.Export(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Send(data)
}

func (c *chatController) GetQueueStatus(ctx *fiber.Ctx) error {
	res, err := c.service.GetQueueStatus(ctx.UserContext())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get queue status", res))
}

func (c *chatController) SetAvailability(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.SetAvailabilityRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.SetOperatorAvailability(ctx.UserContext(), userId, *req.IsAvailable)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update availability", res))
}

func (c *chatController) ListAvailableOperators(ctx *fiber.Ctx) error {
	res, err := c.service.ListAvailableOperators(ctx.UserContext())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get available operators", res))
}

func (c *chatController) RegisterOperator(ctx *fiber.Ctx) error {
	var req dto.RegisterOperatorRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.RegisterOperator(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success register operator", res))
}

func (c *chatController) GetOperator(ctx *fiber.Ctx) error {
	userId, err := parseIdParam(ctx, "userId")
	if err != nil {
		return err
	}

	res, err := c.service.GetOperator(ctx.UserContext(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get operator", res))
}

func (c *chatController) RemoveOperator(ctx *fiber.Ctx) error {
	userId, err := parseIdParam(ctx, "userId")
	if err != nil {
		return err
	}

	if err := c.service.RemoveOperator(ctx.UserContext(), userId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success remove operator", nil))
}
