package service

import (
	"context"
	"fmt"

	"clinic-chat-be/internal/dto"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const transcriptSheet = "Transcript"

var transcriptHeaders = []string{"Timestamp (UTC)", "Sender", "Content", "Read"}

type ITranscriptService interface {
	// Export renders the session's messages as an xlsx workbook and suggests a file name.
	Export(ctx context.Context, sessionId uuid.UUID) ([]byte, string, error)
}

type transcriptService struct {
	chatService IChatService
}

func NewTranscriptService(chatService IChatService) ITranscriptService {
	return &transcriptService{chatService: chatService}
}

func (s *transcriptService) Export(ctx context.Context, sessionId uuid.UUID) ([]byte, string, error) {
	session, err := s.chatService.GetSession(ctx, sessionId)
	if err != nil {
		return nil, "", err
	}
	messages, err := s.chatService.ListMessages(ctx, sessionId)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", transcriptSheet); err != nil {
		return nil, "", fmt.Errorf("prepare sheet: %w", err)
	}

	for i, header := range transcriptHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(transcriptSheet, cell, header)
	}
	for i, message := range messages {
		if err := writeTranscriptRow(f, i+2, message); err != nil {
			return nil, "", err
		}
	}
	f.SetColWidth(transcriptSheet, "A", "A", 28)
	f.SetColWidth(transcriptSheet, "C", "C", 80)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("render transcript: %w", err)
	}

	name := fmt.Sprintf("chat-%s-%s.xlsx", session.CreatedAt.Format("20060102"), session.Id.String()[:8])
	return buf.Bytes(), name, nil
}

func writeTranscriptRow(f *excelize.File, row int, message *dto.ChatMessageResponse) error {
	read := "no"
	if message.IsRead {
		read = "yes"
	}

	values := []interface{}{
		message.Timestamp.UTC().Format("2006-01-02 15:04:05.000000"),
		message.SenderType,
		message.Content,
		read,
	}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(transcriptSheet, cell, &values); err != nil {
		return fmt.Errorf("write transcript row %d: %w", row, err)
	}
	return nil
}
