package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"clinic-chat-be/internal/dto"
	"clinic-chat-be/internal/entity"
	chatEvents "clinic-chat-be/internal/events"
	"clinic-chat-be/internal/mapper"
	"clinic-chat-be/internal/pkg/logger"
	"clinic-chat-be/internal/repository/contract"
	"clinic-chat-be/internal/repository/unitofwork"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxMessageLength = 2000
	DefaultArchivedPageSize = 20
	MaxArchivedPageSize     = 100

	// createAttempts bounds the re-fetch loop after losing a creation race.
	createAttempts = 3
)

var tracer = otel.Tracer("clinic-chat-be/internal/service")

// IChatService is the session coordinator: the only entry point transports use,
// and the only writer of the session fields derived from message activity.
type IChatService interface {
	GetOrCreateSession(ctx context.Context, visitorId string) (*dto.ChatSessionResponse, error)
	SendMessage(ctx context.Context, req *dto.SendChatMessageRequest) (*dto.ChatMessageResponse, error)
	SendVisitorMessage(ctx context.Context, visitorId string, content string) (*dto.ChatMessageResponse, error)

	ListSessions(ctx context.Context) ([]*dto.ChatSessionResponse, error)
	ListArchivedSessions(ctx context.Context, limit, offset int) (*dto.ArchivedSessionsResponse, error)
	GetSession(ctx context.Context, sessionId uuid.UUID) (*dto.ChatSessionResponse, error)
	ListMessages(ctx context.Context, sessionId uuid.UUID) ([]*dto.ChatMessageResponse, error)
	ListVisitorMessages(ctx context.Context, visitorId string) ([]*dto.ChatMessageResponse, error)

	MarkSessionRead(ctx context.Context, sessionId uuid.UUID, includeMessages bool) (*dto.ChatSessionResponse, error)
	MarkMessageRead(ctx context.Context, messageId uuid.UUID) (*dto.ChatMessageResponse, error)
	ArchiveSession(ctx context.Context, sessionId uuid.UUID) (*dto.ChatSessionResponse, error)
	DeleteSession(ctx context.Context, sessionId uuid.UUID) error
	DeleteMessage(ctx context.Context, messageId uuid.UUID) error

	SetOperatorAvailability(ctx context.Context, userId uuid.UUID, isAvailable bool) (*dto.ChatOperatorResponse, error)
	ListAvailableOperators(ctx context.Context) ([]*dto.ChatOperatorResponse, error)
	RegisterOperator(ctx context.Context, req *dto.RegisterOperatorRequest) (*dto.ChatOperatorResponse, error)
	GetOperator(ctx context.Context, userId uuid.UUID) (*dto.ChatOperatorResponse, error)
	RemoveOperator(ctx context.Context, userId uuid.UUID) error
	GetQueueStatus(ctx context.Context) (*dto.QueueStatusResponse, error)
}

type ChatServiceConfig struct {
	MaxMessageLength int
}

type chatService struct {
	uowFactory unitofwork.RepositoryFactory
	delivery   ChatDelivery
	events     chatEvents.Publisher
	logger     logger.ILogger
	mapper     *mapper.ChatMapper
	config     ChatServiceConfig

	creating singleflight.Group
	now      func() time.Time
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	delivery ChatDelivery,
	events chatEvents.Publisher,
	logger logger.ILogger,
	config ChatServiceConfig,
) IChatService {
	if delivery == nil {
		delivery = noopDelivery{}
	}
	if events == nil {
		events = chatEvents.NoopPublisher{}
	}
	if config.MaxMessageLength <= 0 {
		config.MaxMessageLength = DefaultMaxMessageLength
	}
	return &chatService{
		uowFactory: uowFactory,
		delivery:   delivery,
		events:     events,
		logger:     logger,
		mapper:     mapper.NewChatMapper(),
		config:     config,
		now:        defaultClock,
	}
}

// defaultClock is truncated to the precision Postgres stores.
func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *chatService) GetOrCreateSession(ctx context.Context, visitorId string) (*dto.ChatSessionResponse, error) {
	session, err := s.getOrCreateSession(ctx, visitorId)
	if err != nil {
		return nil, err
	}
	return s.mapper.ChatSessionToResponse(session), nil
}

func (s *chatService) getOrCreateSession(ctx context.Context, visitorId string) (session *entity.ChatSession, err error) {
	ctx, span := tracer.Start(ctx, "ChatService.GetOrCreateSession")
	defer func() { endSpan(span, err) }()

	visitorId = strings.TrimSpace(visitorId)
	if visitorId == "" {
		return nil, invalidInput("visitor id is required")
	}

	// Concurrent callers for one visitor share a single lookup-or-create. The
	// shared call is detached from the first caller's cancellation; each caller
	// still stops waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := s.creating.DoChan(visitorId, func() (interface{}, error) {
		return s.findOrCreateSession(shared, visitorId)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		span.SetAttributes(attribute.Bool("chat.shared", res.Shared))
		if res.Err != nil {
			return nil, res.Err
		}
		found := *res.Val.(*entity.ChatSession)
		return &found, nil
	}
}

func (s *chatService) findOrCreateSession(ctx context.Context, visitorId string) (*entity.ChatSession, error) {
	for attempt := 0; attempt < createAttempts; attempt++ {
		uow := s.uowFactory.NewUnitOfWork(ctx)

		existing, err := uow.ChatSessionRepository().FindActiveByVisitor(ctx, visitorId)
		if err != nil {
			return nil, fmt.Errorf("find active session: %w", err)
		}
		if existing != nil {
			return existing, nil
		}

		now := s.now()
		session := &entity.ChatSession{
			Id:            uuid.New(),
			VisitorId:     visitorId,
			LastMessageAt: now,
			CreatedAt:     now,
		}

		err = uow.ChatSessionRepository().Create(ctx, session)
		if errors.Is(err, contract.ErrActiveSessionExists) {
			// Another instance won the race; its session is picked up on the next pass.
			s.logger.Debug("CHAT", "Lost session creation race", map[string]interface{}{"visitor_id": visitorId})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}

		s.logger.Info("CHAT", "Session created", map[string]interface{}{
			"session_id": session.Id.String(),
			"visitor_id": visitorId,
		})
		s.delivery.DeliverSessionUpdate(SessionUpdateCreated, session)
		s.events.PublishSessionCreated(ctx, session)
		return session, nil
	}
	return nil, fmt.Errorf("create session for visitor %s: %w", visitorId, contract.ErrActiveSessionExists)
}

func (s *chatService) validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", invalidInput("message content is required")
	}
	if utf8.RuneCountInString(content) > s.config.MaxMessageLength {
		return "", invalidInput(fmt.Sprintf("message content exceeds %d characters", s.config.MaxMessageLength))
	}
	return content, nil
}

func (s *chatService) SendMessage(ctx context.Context, req *dto.SendChatMessageRequest) (*dto.ChatMessageResponse, error) {
	senderType := entity.SenderType(req.SenderType)
	if !senderType.IsValid() {
		return nil, invalidInput(fmt.Sprintf("unknown sender type %q", req.SenderType))
	}
	content, err := s.validateContent(req.Content)
	if err != nil {
		return nil, err
	}

	senderId := req.SenderId
	if senderType != entity.SenderOperator {
		senderId = nil
	}

	message, err := s.send(ctx, req.SessionId, senderType, senderId, content)
	if err != nil {
		return nil, err
	}
	return s.mapper.ChatMessageToResponse(message), nil
}

func (s *chatService) SendVisitorMessage(ctx context.Context, visitorId string, content string) (*dto.ChatMessageResponse, error) {
	content, err := s.validateContent(content)
	if err != nil {
		return nil, err
	}

	session, err := s.getOrCreateSession(ctx, visitorId)
	if err != nil {
		return nil, err
	}

	message, err := s.send(ctx, session.Id, entity.SenderVisitor, nil, content)
	if err != nil {
		return nil, err
	}
	return s.mapper.ChatMessageToResponse(message), nil
}

// send appends the message and touches the session in one unit of work, then
// notifies connected parties.
func (s *chatService) send(ctx context.Context, sessionId uuid.UUID, senderType entity.SenderType, senderId *uuid.UUID, content string) (message *entity.ChatMessage, err error) {
	ctx, span := tracer.Start(ctx, "ChatService.SendMessage", trace.WithAttributes(
		attribute.String("chat.session_id", sessionId.String()),
		attribute.String("chat.sender_type", string(senderType)),
	))
	defer func() { endSpan(span, err) }()

	session, message, err := s.appendMessage(ctx, sessionId, senderType, senderId, content)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidState) {
			s.logger.Error("CHAT", "Failed to append message", map[string]interface{}{
				"session_id": sessionId.String(),
				"error":      err.Error(),
			})
		}
		return nil, err
	}

	s.delivery.DeliverMessage(session, message)
	s.events.PublishMessageSent(ctx, message)
	return message, nil
}

func (s *chatService) appendMessage(ctx context.Context, sessionId uuid.UUID, senderType entity.SenderType, senderId *uuid.UUID, content string) (*entity.ChatSession, *entity.ChatMessage, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer uow.Rollback()

	sessions := uow.ChatSessionRepository()
	messages := uow.ChatMessageRepository()

	// The row lock serializes appends to one session for the rest of the transaction.
	session, err := sessions.FindByIdForUpdate(ctx, sessionId)
	if err != nil {
		return nil, nil, fmt.Errorf("lock session: %w", err)
	}
	if session == nil {
		return nil, nil, ErrSessionNotFound
	}
	if session.IsArchived {
		return nil, nil, ErrSessionClosed
	}

	last, err := messages.FindLastBySession(ctx, sessionId)
	if err != nil {
		return nil, nil, fmt.Errorf("find last message: %w", err)
	}

	at := s.now()
	if last != nil && !at.After(last.Timestamp) {
		at = last.Timestamp.Add(time.Microsecond)
	}

	message := &entity.ChatMessage{
		Id:         uuid.New(),
		SessionId:  sessionId,
		SenderType: senderType,
		SenderId:   senderId,
		Content:    content,
		Timestamp:  at,
	}
	if err := messages.Create(ctx, message); err != nil {
		return nil, nil, fmt.Errorf("append message: %w", err)
	}

	fromVisitor := senderType == entity.SenderVisitor
	if err := sessions.Touch(ctx, sessionId, at, fromVisitor); err != nil {
		return nil, nil, fmt.Errorf("touch session: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit message: %w", err)
	}

	if at.After(session.LastMessageAt) {
		session.LastMessageAt = at
	}
	if fromVisitor {
		session.HasUnreadMessages = true
	}
	return session, message, nil
}

func (s *chatService) ListSessions(ctx context.Context) ([]*dto.ChatSessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	sessions, err := uow.ChatSessionRepository().FindAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}

	result := make([]*dto.ChatSessionResponse, 0, len(sessions))
	for _, session := range sessions {
		result = append(result, s.mapper.ChatSessionToResponse(session))
	}
	return result, nil
}

func (s *chatService) ListArchivedSessions(ctx context.Context, limit, offset int) (*dto.ArchivedSessionsResponse, error) {
	if limit <= 0 {
		limit = DefaultArchivedPageSize
	}
	if limit > MaxArchivedPageSize {
		limit = MaxArchivedPageSize
	}
	if offset < 0 {
		offset = 0
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	sessions, total, err := uow.ChatSessionRepository().FindAllArchived(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list archived sessions: %w", err)
	}

	result := &dto.ArchivedSessionsResponse{
		Sessions: make([]*dto.ChatSessionResponse, 0, len(sessions)),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}
	for _, session := range sessions {
		result.Sessions = append(result.Sessions, s.mapper.ChatSessionToResponse(session))
	}
	return result, nil
}

func (s *chatService) findSession(ctx context.Context, uow unitofwork.UnitOfWork, sessionId uuid.UUID) (*entity.ChatSession, error) {
	session, err := uow.ChatSessionRepository().FindById(ctx, sessionId)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *chatService) GetSession(ctx context.Context, sessionId uuid.UUID) (*dto.ChatSessionResponse, error) {
	session, err := s.findSession(ctx, s.uowFactory.NewUnitOfWork(ctx), sessionId)
	if err != nil {
		return nil, err
	}
	return s.mapper.ChatSessionToResponse(session), nil
}

func (s *chatService) ListMessages(ctx context.Context, sessionId uuid.UUID) ([]*dto.ChatMessageResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := s.findSession(ctx, uow, sessionId); err != nil {
		return nil, err
	}
	return s.listMessages(ctx, uow, sessionId)
}

func (s *chatService) listMessages(ctx context.Context, uow unitofwork.UnitOfWork, sessionId uuid.UUID) ([]*dto.ChatMessageResponse, error) {
	messages, err := uow.ChatMessageRepository().FindAllBySession(ctx, sessionId)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	result := make([]*dto.ChatMessageResponse, 0, len(messages))
	for _, message := range messages {
		result = append(result, s.mapper.ChatMessageToResponse(message))
	}
	return result, nil
}

// ListVisitorMessages returns the history of the visitor's active session, or
// nothing when the visitor has none.
func (s *chatService) ListVisitorMessages(ctx context.Context, visitorId string) ([]*dto.ChatMessageResponse, error) {
	visitorId = strings.TrimSpace(visitorId)
	if visitorId == "" {
		return nil, invalidInput("visitor id is required")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := uow.ChatSessionRepository().FindActiveByVisitor(ctx, visitorId)
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	if session == nil {
		return []*dto.ChatMessageResponse{}, nil
	}
	return s.listMessages(ctx, uow, session.Id)
}

func (s *chatService) MarkSessionRead(ctx context.Context, sessionId uuid.UUID, includeMessages bool) (*dto.ChatSessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer uow.Rollback()

	err := uow.ChatSessionRepository().MarkRead(ctx, sessionId)
	if errors.Is(err, contract.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mark session read: %w", err)
	}

	if includeMessages {
		if _, err := uow.ChatMessageRepository().MarkAllReadBySession(ctx, sessionId, s.now()); err != nil {
			return nil, fmt.Errorf("mark messages read: %w", err)
		}
	}

	session, err := s.findSession(ctx, uow, sessionId)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("commit read: %w", err)
	}

	s.delivery.DeliverSessionUpdate(SessionUpdateRead, session)
	s.events.PublishSessionRead(ctx, session)
	return s.mapper.ChatSessionToResponse(session), nil
}

func (s *chatService) MarkMessageRead(ctx context.Context, messageId uuid.UUID) (*dto.ChatMessageResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	err := uow.ChatMessageRepository().MarkRead(ctx, messageId, s.now())
	if errors.Is(err, contract.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mark message read: %w", err)
	}

	message, err := uow.ChatMessageRepository().FindById(ctx, messageId)
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	if message == nil {
		// Deleted between the update and the read.
		return nil, ErrMessageNotFound
	}
	return s.mapper.ChatMessageToResponse(message), nil
}

func (s *chatService) ArchiveSession(ctx context.Context, sessionId uuid.UUID) (*dto.ChatSessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	session, err := s.findSession(ctx, uow, sessionId)
	if err != nil {
		return nil, err
	}
	if session.IsArchived {
		return s.mapper.ChatSessionToResponse(session), nil
	}

	err = uow.ChatSessionRepository().Archive(ctx, sessionId, s.now())
	if errors.Is(err, contract.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive session: %w", err)
	}

	session, err = s.findSession(ctx, uow, sessionId)
	if err != nil {
		return nil, err
	}

	s.logger.Info("CHAT", "Session archived", map[string]interface{}{"session_id": sessionId.String()})
	s.delivery.DeliverSessionUpdate(SessionUpdateArchived, session)
	s.events.PublishSessionArchived(ctx, session)
	return s.mapper.ChatSessionToResponse(session), nil
}

// DeleteSession purges a session and its messages.
func (s *chatService) DeleteSession(ctx context.Context, sessionId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer uow.Rollback()

	session, err := s.findSession(ctx, uow, sessionId)
	if err != nil {
		return err
	}

	if err := uow.ChatMessageRepository().DeleteBySessionId(ctx, sessionId); err != nil {
		return fmt.Errorf("purge messages: %w", err)
	}
	if err := uow.ChatSessionRepository().Delete(ctx, sessionId); err != nil {
		if errors.Is(err, contract.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("purge session: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("commit purge: %w", err)
	}

	s.logger.Info("CHAT", "Session purged", map[string]interface{}{"session_id": sessionId.String()})
	s.delivery.DeliverSessionUpdate(SessionUpdateDeleted, session)
	s.events.PublishSessionDeleted(ctx, sessionId)
	return nil
}

func (s *chatService) DeleteMessage(ctx context.Context, messageId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	err := uow.ChatMessageRepository().Delete(ctx, messageId)
	if errors.Is(err, contract.ErrRecordNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
