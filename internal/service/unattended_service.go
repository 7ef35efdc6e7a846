package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic-chat-be/internal/dto"
	"clinic-chat-be/internal/entity"
	"clinic-chat-be/internal/pkg/logger"
	"clinic-chat-be/internal/pkg/mailer"
	pkgEvents "clinic-chat-be/pkg/events"

	"github.com/google/uuid"
)

const UnattendedConsumerGroup = "chat-unattended"

// IUnattendedService greets visitors who open a session while no operator is
// available, and alerts the clinic inbox.
type IUnattendedService interface {
	Start(subscriber pkgEvents.Subscriber) error
	HandleSessionCreated(ctx context.Context, event pkgEvents.Event) error
}

type UnattendedConfig struct {
	Greeting   string
	AlertEmail string
}

type unattendedService struct {
	chatService IChatService
	mailer      mailer.IEmailService // nil when SMTP is not configured
	logger      logger.ILogger
	config      UnattendedConfig
}

func NewUnattendedService(chatService IChatService, mailer mailer.IEmailService, logger logger.ILogger, config UnattendedConfig) IUnattendedService {
	return &unattendedService{
		chatService: chatService,
		mailer:      mailer,
		logger:      logger,
		config:      config,
	}
}

func (s *unattendedService) Start(subscriber pkgEvents.Subscriber) error {
	return subscriber.Subscribe(pkgEvents.ChatSessionCreated, UnattendedConsumerGroup, s.HandleSessionCreated)
}

func (s *unattendedService) HandleSessionCreated(ctx context.Context, event pkgEvents.Event) error {
	payload := event.Payload()

	rawId, _ := payload["session_id"].(string)
	sessionId, err := uuid.Parse(rawId)
	if err != nil {
		s.logger.Warn("UNATTENDED", "Ignoring event without a valid session id", map[string]interface{}{"session_id": rawId})
		return nil
	}
	visitorId, _ := payload["visitor_id"].(string)

	operators, err := s.chatService.ListAvailableOperators(ctx)
	if err != nil {
		return fmt.Errorf("check operator availability: %w", err)
	}
	if len(operators) > 0 {
		return nil
	}

	if s.config.Greeting != "" {
		_, err = s.chatService.SendMessage(ctx, &dto.SendChatMessageRequest{
			SessionId:  sessionId,
			SenderType: string(entity.SenderSystem),
			Content:    s.config.Greeting,
		})
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) {
			// Purged or archived before the event arrived.
			s.logger.Info("UNATTENDED", "Session gone before greeting", map[string]interface{}{"session_id": rawId})
			return nil
		}
		if err != nil {
			return fmt.Errorf("send greeting: %w", err)
		}
	}

	s.alert(rawId, visitorId, event.Timestamp())
	return nil
}

// alert failures are logged only; a redelivery would repeat the greeting.
func (s *unattendedService) alert(sessionId, visitorId string, at time.Time) {
	if s.mailer == nil || s.config.AlertEmail == "" {
		return
	}

	err := s.mailer.SendUnattendedSessionAlert(s.config.AlertEmail, mailer.UnattendedSessionAlert{
		SessionId: sessionId,
		VisitorId: visitorId,
		CreatedAt: at,
	})
	if err != nil {
		s.logger.Error("UNATTENDED", "Failed to send alert email", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
		return
	}
	s.logger.Info("UNATTENDED", "Alert email sent", map[string]interface{}{"session_id": sessionId})
}
