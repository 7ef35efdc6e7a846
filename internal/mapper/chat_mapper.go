package mapper

import (
	"clinic-chat-be/internal/dto"
	"clinic-chat-be/internal/entity"
	"clinic-chat-be/internal/model"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Session Mappers

func (m *ChatMapper) ChatSessionToEntity(s *model.ChatSession) *entity.ChatSession {
	if s == nil {
		return nil
	}

	return &entity.ChatSession{
		Id:                s.Id,
		VisitorId:         s.VisitorId,
		IsArchived:        s.IsArchived,
		HasUnreadMessages: s.HasUnreadMessages,
		LastMessageAt:     s.LastMessageAt,
		ArchivedAt:        s.ArchivedAt,
		CreatedAt:         s.CreatedAt,
	}
}

func (m *ChatMapper) ChatSessionToModel(s *entity.ChatSession) *model.ChatSession {
	if s == nil {
		return nil
	}

	return &model.ChatSession{
		Id:                s.Id,
		VisitorId:         s.VisitorId,
		IsArchived:        s.IsArchived,
		HasUnreadMessages: s.HasUnreadMessages,
		LastMessageAt:     s.LastMessageAt,
		ArchivedAt:        s.ArchivedAt,
		CreatedAt:         s.CreatedAt,
	}
}

func (m *ChatMapper) ChatSessionsToEntities(models []*model.ChatSession) []*entity.ChatSession {
	entities := make([]*entity.ChatSession, len(models))
	for i, s := range models {
		entities[i] = m.ChatSessionToEntity(s)
	}
	return entities
}

// Message Mappers

func (m *ChatMapper) ChatMessageToEntity(msg *model.ChatMessage) *entity.ChatMessage {
	if msg == nil {
		return nil
	}

	return &entity.ChatMessage{
		Id:         msg.Id,
		SessionId:  msg.SessionId,
		SenderType: entity.SenderType(msg.SenderType),
		SenderId:   msg.SenderId,
		Content:    msg.Content,
		Timestamp:  msg.SentAt,
		IsRead:     msg.IsRead,
		ReadAt:     msg.ReadAt,
	}
}

func (m *ChatMapper) ChatMessageToModel(msg *entity.ChatMessage) *model.ChatMessage {
	if msg == nil {
		return nil
	}

	return &model.ChatMessage{
		Id:         msg.Id,
		SessionId:  msg.SessionId,
		SenderType: string(msg.SenderType),
		SenderId:   msg.SenderId,
		Content:    msg.Content,
		SentAt:     msg.Timestamp,
		IsRead:     msg.IsRead,
		ReadAt:     msg.ReadAt,
	}
}

func (m *ChatMapper) ChatMessagesToEntities(models []*model.ChatMessage) []*entity.ChatMessage {
	entities := make([]*entity.ChatMessage, len(models))
	for i, msg := range models {
		entities[i] = m.ChatMessageToEntity(msg)
	}
	return entities
}

// Operator Mappers

func (m *ChatMapper) ChatOperatorToEntity(o *model.ChatOperator) *entity.ChatOperator {
	if o == nil {
		return nil
	}

	return &entity.ChatOperator{
		UserId:       o.UserId,
		DisplayName:  o.DisplayName,
		IsAvailable:  o.IsAvailable,
		LastActiveAt: o.LastActiveAt,
		CreatedAt:    o.CreatedAt,
	}
}

func (m *ChatMapper) ChatOperatorToModel(o *entity.ChatOperator) *model.ChatOperator {
	if o == nil {
		return nil
	}

	return &model.ChatOperator{
		UserId:       o.UserId,
		DisplayName:  o.DisplayName,
		IsAvailable:  o.IsAvailable,
		LastActiveAt: o.LastActiveAt,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.LastActiveAt,
	}
}

// Response Mappers (entity -> dto)

func (m *ChatMapper) ChatSessionToResponse(s *entity.ChatSession) *dto.ChatSessionResponse {
	if s == nil {
		return nil
	}

	return &dto.ChatSessionResponse{
		Id:                s.Id,
		VisitorId:         s.VisitorId,
		IsArchived:        s.IsArchived,
		HasUnreadMessages: s.HasUnreadMessages,
		LastMessageAt:     s.LastMessageAt,
		ArchivedAt:        s.ArchivedAt,
		CreatedAt:         s.CreatedAt,
	}
}

func (m *ChatMapper) ChatMessageToResponse(msg *entity.ChatMessage) *dto.ChatMessageResponse {
	if msg == nil {
		return nil
	}

	return &dto.ChatMessageResponse{
		Id:         msg.Id,
		SessionId:  msg.SessionId,
		SenderType: string(msg.SenderType),
		SenderId:   msg.SenderId,
		Content:    msg.Content,
		Timestamp:  msg.Timestamp,
		IsRead:     msg.IsRead,
		ReadAt:     msg.ReadAt,
	}
}

func (m *ChatMapper) ChatOperatorToResponse(o *entity.ChatOperator) *dto.ChatOperatorResponse {
	if o == nil {
		return nil
	}

	return &dto.ChatOperatorResponse{
		UserId:       o.UserId,
		DisplayName:  o.DisplayName,
		IsAvailable:  o.IsAvailable,
		LastActiveAt: o.LastActiveAt,
		CreatedAt:    o.CreatedAt,
	}
}
