package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clinic-chat-be/internal/dto"
	"clinic-chat-be/internal/entity"
	"clinic-chat-be/internal/repository/contract"

	"github.com/google/uuid"
)

func (s *chatService) SetOperatorAvailability(ctx context.Context, userId uuid.UUID, isAvailable bool) (*dto.ChatOperatorResponse, error) {
	if userId == uuid.Nil {
		return nil, invalidInput("operator user id is required")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	operator, err := uow.ChatOperatorRepository().UpdateAvailability(ctx, userId, isAvailable, s.now())
	if err != nil {
		return nil, fmt.Errorf("update availability: %w", err)
	}

	s.logger.Info("CHAT", "Operator availability changed", map[string]interface{}{
		"user_id":      userId.String(),
		"is_available": isAvailable,
	})
	s.events.PublishOperatorAvailabilityChanged(ctx, operator)
	return s.mapper.ChatOperatorToResponse(operator), nil
}

func (s *chatService) ListAvailableOperators(ctx context.Context) ([]*dto.ChatOperatorResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	operators, err := uow.ChatOperatorRepository().FindAllAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available operators: %w", err)
	}

	result := make([]*dto.ChatOperatorResponse, 0, len(operators))
	for _, operator := range operators {
		result = append(result, s.mapper.ChatOperatorToResponse(operator))
	}
	return result, nil
}

// RegisterOperator provisions an operator record, initially unavailable.
func (s *chatService) RegisterOperator(ctx context.Context, req *dto.RegisterOperatorRequest) (*dto.ChatOperatorResponse, error) {
	if req.UserId == uuid.Nil {
		return nil, invalidInput("operator user id is required")
	}

	now := s.now()
	operator := &entity.ChatOperator{
		UserId:       req.UserId,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		IsAvailable:  false,
		LastActiveAt: now,
		CreatedAt:    now,
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	err := uow.ChatOperatorRepository().Create(ctx, operator)
	if errors.Is(err, contract.ErrDuplicateRecord) {
		return nil, ErrOperatorExists
	}
	if err != nil {
		return nil, fmt.Errorf("register operator: %w", err)
	}
	return s.mapper.ChatOperatorToResponse(operator), nil
}

func (s *chatService) GetOperator(ctx context.Context, userId uuid.UUID) (*dto.ChatOperatorResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	operator, err := uow.ChatOperatorRepository().FindByUserId(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("find operator: %w", err)
	}
	if operator == nil {
		return nil, ErrOperatorNotFound
	}
	return s.mapper.ChatOperatorToResponse(operator), nil
}

func (s *chatService) RemoveOperator(ctx context.Context, userId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	err := uow.ChatOperatorRepository().Delete(ctx, userId)
	if errors.Is(err, contract.ErrRecordNotFound) {
		return ErrOperatorNotFound
	}
	if err != nil {
		return fmt.Errorf("remove operator: %w", err)
	}
	return nil
}

// GetQueueStatus summarizes the triage queue for the operator dashboard.
func (s *chatService) GetQueueStatus(ctx context.Context) (*dto.QueueStatusResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	active, err := uow.ChatSessionRepository().CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("count active sessions: %w", err)
	}
	unread, err := uow.ChatSessionRepository().CountUnread(ctx)
	if err != nil {
		return nil, fmt.Errorf("count unread sessions: %w", err)
	}
	available, err := uow.ChatOperatorRepository().CountAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("count available operators: %w", err)
	}

	return &dto.QueueStatusResponse{
		ActiveSessions:     active,
		UnreadSessions:     unread,
		AvailableOperators: available,
		NeedsAttention:     unread > 0 && available == 0,
	}, nil
}
