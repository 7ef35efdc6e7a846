package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"clinic-chat-be/internal/dto"
	"clinic-chat-be/internal/entity"
	chatEvents "clinic-chat-be/internal/events"
	"clinic-chat-be/internal/pkg/logger"
	"clinic-chat-be/internal/repository/contract"
	"clinic-chat-be/internal/repository/repositorytest"
	"clinic-chat-be/internal/repository/unitofwork"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedUpdate struct {
	kind      string
	sessionId uuid.UUID
}

// recordingDelivery captures what would be pushed to sockets.
type recordingDelivery struct {
	mu       sync.Mutex
	messages []*entity.ChatMessage
	updates  []recordedUpdate
}

func (d *recordingDelivery) DeliverMessage(session *entity.ChatSession, message *entity.ChatMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, message)
}

func (d *recordingDelivery) DeliverSessionUpdate(kind string, session *entity.ChatSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, recordedUpdate{kind: kind, sessionId: session.Id})
}

func (d *recordingDelivery) kinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	kinds := make([]string, 0, len(d.updates))
	for _, u := range d.updates {
		kinds = append(kinds, u.kind)
	}
	return kinds
}

type recordingEvents struct {
	chatEvents.NoopPublisher

	mu      sync.Mutex
	created int
	sent    int
	deleted []uuid.UUID
}

func (e *recordingEvents) PublishSessionCreated(context.Context, *entity.ChatSession) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created++
}

func (e *recordingEvents) PublishMessageSent(context.Context, *entity.ChatMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent++
}

func (e *recordingEvents) PublishSessionDeleted(_ context.Context, sessionId uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = append(e.deleted, sessionId)
}

type testService struct {
	*chatService
	delivery *recordingDelivery
	events   *recordingEvents
}

func newTestService(factory unitofwork.RepositoryFactory) *testService {
	delivery := &recordingDelivery{}
	events := &recordingEvents{}
	svc := NewChatService(factory, delivery, events, logger.NewNopLogger(), ChatServiceConfig{MaxMessageLength: 20})
	return &testService{chatService: svc.(*chatService), delivery: delivery, events: events}
}

// fixedClock makes every call observe the same instant, so ordering relies on
// the per-session timestamp bump alone.
func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func visitorSays(t *testing.T, svc IChatService, visitorId, content string) *dto.ChatMessageResponse {
	t.Helper()
	msg, err := svc.SendVisitorMessage(context.Background(), visitorId, content)
	require.NoError(t, err)
	return msg
}

func TestGetOrCreateSession_OneActiveSessionUnderConcurrency(t *testing.T) {
	repositorytest.ForEachBackend(t, func(t *testing.T, factory unitofwork.RepositoryFactory) {
		// Two coordinators over one store stand in for two server instances.
		nodes := []*testService{newTestService(factory), newTestService(factory)}

		const callers = 10
		ids := make(chan uuid.UUID, callers*len(nodes))
		errs := make(chan error, callers*len(nodes))

		var wg sync.WaitGroup
		for _, node := range nodes {
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(svc IChatService) {
					defer wg.Done()
					session, err := svc.GetOrCreateSession(context.Background(), "racer")
					if err != nil {
						errs <- err
						return
					}
					ids <- session.Id
				}(node)
			}
		}
		wg.Wait()
		close(ids)
		close(errs)

		for err := range errs {
			t.Fatalf("unexpected error: %v", err)
		}

		var first uuid.UUID
		for id := range ids {
			if first == uuid.Nil {
				first = id
			}
			assert.Equal(t, first, id)
		}

		active, err := nodes[0].ListSessions(context.Background())
		require.NoError(t, err)
		assert.Len(t, active, 1)
		assert.Equal(t, 1, nodes[0].events.created+nodes[1].events.created)
	})
}

// gatedFactory holds every active-session lookup until release is closed and
// then fails it with the caller's context error, like a database driver would.
type gatedFactory struct {
	unitofwork.RepositoryFactory
	entered chan struct{}
	release chan struct{}
}

type gatedUnitOfWork struct {
	unitofwork.UnitOfWork
	gate *gatedFactory
}

type gatedSessions struct {
	contract.ChatSessionRepository
	gate *gatedFactory
}

func (f *gatedFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &gatedUnitOfWork{UnitOfWork: f.RepositoryFactory.NewUnitOfWork(ctx), gate: f}
}

func (u *gatedUnitOfWork) ChatSessionRepository() contract.ChatSessionRepository {
	return &gatedSessions{ChatSessionRepository: u.UnitOfWork.ChatSessionRepository(), gate: u.gate}
}

func (r *gatedSessions) FindActiveByVisitor(ctx context.Context, visitorId string) (*entity.ChatSession, error) {
	select {
	case r.gate.entered <- struct{}{}:
	default:
	}
	<-r.gate.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.ChatSessionRepository.FindActiveByVisitor(ctx, visitorId)
}

func TestGetOrCreateSession_CancelledCallerDoesNotFailOthers(t *testing.T) {
	gate := &gatedFactory{
		RepositoryFactory: repositorytest.NewMemoryFactory(t),
		entered:           make(chan struct{}, 1),
		release:           make(chan struct{}),
	}
	svc := newTestService(gate)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetOrCreateSession(firstCtx, "shared-visitor")
		firstErr <- err
	}()
	<-gate.entered

	secondDone := make(chan error, 1)
	var second *dto.ChatSessionResponse
	go func() {
		var err error
		second, err = svc.GetOrCreateSession(context.Background(), "shared-visitor")
		secondDone <- err
	}()

	// Give the second caller time to join the in-flight creation.
	time.Sleep(50 * time.Millisecond)
	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(gate.release)

	require.NoError(t, <-secondDone)
	require.NotNil(t, second)
	assert.Equal(t, "shared-visitor", second.VisitorId)

	active, err := svc.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSendMessage_StrictOrderUnderConcurrency(t *testing.T) {
	repositorytest.ForEachBackend(t, func(t *testing.T, factory unitofwork.RepositoryFactory) {
		svc := newTestService(factory)
		svc.now = fixedClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
		ctx := context.Background()

		session, err := svc.GetOrCreateSession(ctx, "busy-visitor")
		require.NoError(t, err)
		operatorId := uuid.New()

		const senders, perSender = 4, 15
		var wg sync.WaitGroup
		for s := 0; s < senders; s++ {
			wg.Add(1)
			go func(s int) {
				defer wg.Done()
				for i := 0; i < perSender; i++ {
					req := &dto.SendChatMessageRequest{
						SessionId:  session.Id,
						SenderType: string(entity.SenderVisitor),
						Content:    fmt.Sprintf("s%d-%d", s, i),
					}
					if s%2 == 1 {
						req.SenderType = string(entity.SenderOperator)
						req.SenderId = &operatorId
					}
					_, err := svc.SendMessage(ctx, req)
					assert.NoError(t, err)
				}
			}(s)
		}
		wg.Wait()

		messages, err := svc.ListMessages(ctx, session.Id)
		require.NoError(t, err)
		require.Len(t, messages, senders*perSender)

		for i := 1; i < len(messages); i++ {
			assert.True(t, messages[i].Timestamp.After(messages[i-1].Timestamp),
				"message %d (%s) not after %d (%s)", i, messages[i].Timestamp, i-1, messages[i-1].Timestamp)
		}

		// Each sender's own messages keep their send order.
		next := make(map[string]int)
		for _, m := range messages {
			parts := strings.SplitN(m.Content, "-", 2)
			assert.Equal(t, fmt.Sprintf("%s-%d", parts[0], next[parts[0]]), m.Content)
			next[parts[0]]++
		}

		got, err := svc.GetSession(ctx, session.Id)
		require.NoError(t, err)
		assert.True(t, got.LastMessageAt.Equal(messages[len(messages)-1].Timestamp))
		assert.Len(t, svc.delivery.messages, senders*perSender)
	})
}

func TestSendMessage_UnreadFlag(t *testing.T) {
	repositorytest.ForEachBackend(t, func(t *testing.T, factory unitofwork.RepositoryFactory) {
		svc := newTestService(factory)
		ctx := context.Background()

		session, err := svc.GetOrCreateSession(ctx, "v")
		require.NoError(t, err)
		assert.False(t, session.HasUnreadMessages)

		operatorId := uuid.New()
		_, err = svc.SendMessage(ctx, &dto.SendChatMessageRequest{SessionId: session.Id, SenderType: "operator", SenderId: &operatorId, Content: "hello"})
		require.NoError(t, err)
		_, err = svc.SendMessage(ctx, &dto.SendChatMessageRequest{SessionId: session.Id, SenderType: "system", Content: "notice"})
		require.NoError(t, err)

		got, err := svc.GetSession(ctx, session.Id)
		require.NoError(t, err)
		assert.False(t, got.HasUnreadMessages)

		visitorSays(t, svc, "v", "help")
		got, err = svc.GetSession(ctx, session.Id)
		require.NoError(t, err)
		assert.True(t, got.HasUnreadMessages)

		read, err := svc.MarkSessionRead(ctx, session.Id, false)
		require.NoError(t, err)
		assert.False(t, read.HasUnreadMessages)

		// Without includeMessages the messages themselves stay unread.
		messages, err := svc.ListMessages(ctx, session.Id)
		require.NoError(t, err)
		for _, m := range messages {
			assert.False(t, m.IsRead)
		}

		_, err = svc.MarkSessionRead(ctx, session.Id, true)
		require.NoError(t, err)
		messages, err = svc.ListMessages(ctx, session.Id)
		require.NoError(t, err)
		for _, m := range messages {
			assert.True(t, m.IsRead)
		}

		assert.Equal(t, []string{SessionUpdateCreated, SessionUpdateRead, SessionUpdateRead}, svc.delivery.kinds())
	})
}

func TestSendMessage_Validation(t *testing.T) {
	svc := newTestService(repositorytest.NewMemoryFactory(t))
	ctx := context.Background()

	session, err := svc.GetOrCreateSession(ctx, "v")
	require.NoError(t, err)

	cases := []struct {
		name string
		req  dto.SendChatMessageRequest
	}{
		{"unknown sender", dto.SendChatMessageRequest{SessionId: session.Id, SenderType: "robot", Content: "hi"}},
		{"empty content", dto.SendChatMessageRequest{SessionId: session.Id, SenderType: "visitor", Content: ""}},
		{"whitespace content", dto.SendChatMessageRequest{SessionId: session.Id, SenderType: "visitor", Content: " \n\t "}},
		{"too long", dto.SendChatMessageRequest{SessionId: session.Id, SenderType: "visitor", Content: strings.Repeat("x", 21)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			_, err := svc.SendMessage(ctx, &req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	// Length counts characters, not bytes.
	_, err = svc.SendMessage(ctx, &dto.SendChatMessageRequest{SessionId: session.Id, SenderType: "visitor", Content: strings.Repeat("é", 20)})
	assert.NoError(t, err)

	_, err = svc.GetOrCreateSession(ctx, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.SendMessage(ctx, &dto.SendChatMessageRequest{SessionId: uuid.New(), SenderType: "visitor", Content: "hi"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendMessage_SenderIdOnlyForOperators(t *testing.T) {
	svc := newTestService(repositorytest.NewMemoryFactory(t))
	ctx := context.Background()

	session, err := svc.GetOrCreateSession(ctx, "v")
	require.NoError(t, err)

	someone := uuid.New()
	msg, err := svc.SendMessage(ctx, &dto.SendChatMessageRequest{SessionId: session.Id, SenderType: "visitor", SenderId: &someone, Content: "hi"})
	require.NoError(t, err)
	assert.Nil(t, msg.SenderId)

	msg, err = svc.SendMessage(ctx, &dto.SendChatMessageRequest{SessionId: session.Id, SenderType: "operator", SenderId: &someone, Content: "hello"})
	require.NoError(t, err)
	require.NotNil(t, msg.SenderId)
	assert.Equal(t, someone, *msg.SenderId)
}

func TestArchiveSession(t *testing.T) {
	repositorytest.ForEachBackend(t, func(t *testing.T, factory unitofwork.RepositoryFactory) {
		svc := newTestService(factory)
		ctx := context.Background()

		first := visitorSays(t, svc, "returning", "first visit")

		archived, err := svc.ArchiveSession(ctx, first.SessionId)
		require.NoError(t, err)
		assert.True(t, archived.IsArchived)
		require.NotNil(t, archived.ArchivedAt)

		again, err := svc.ArchiveSession(ctx, first.SessionId)
		require.NoError(t, err)
		assert.True(t, archived.ArchivedAt.Equal(*again.ArchivedAt))

		_, err = svc.SendMessage(ctx, &dto.SendChatMessageRequest{SessionId: first.SessionId, SenderType: "system", Content: "late"})
		assert.ErrorIs(t, err, ErrSessionClosed)
		assert.ErrorIs(t, err, ErrInvalidState)

		// The archived history stays readable and the visitor starts over.
		history, err := svc.ListMessages(ctx, first.SessionId)
		require.NoError(t, err)
		assert.Len(t, history, 1)

		second := visitorSays(t, svc, "returning", "second visit")
		assert.NotEqual(t, first.SessionId, second.SessionId)

		visible, err := svc.ListVisitorMessages(ctx, "returning")
		require.NoError(t, err)
		require.Len(t, visible, 1)
		assert.Equal(t, "second visit", visible[0].Content)

		_, err = svc.ArchiveSession(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrSessionNotFound)

		assert.Equal(t, []string{SessionUpdateCreated, SessionUpdateArchived, SessionUpdateCreated}, svc.delivery.kinds())
	})
}

func TestListArchivedSessions_Paging(t *testing.T) {
	svc := newTestService(repositorytest.NewMemoryFactory(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg := visitorSays(t, svc, fmt.Sprintf("v%d", i), "hi")
		_, err := svc.ArchiveSession(ctx, msg.SessionId)
		require.NoError(t, err)
	}

	page, err := svc.ListArchivedSessions(ctx, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, DefaultArchivedPageSize, page.Limit)
	assert.Equal(t, 0, page.Offset)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Sessions, 3)

	page, err = svc.ListArchivedSessions(ctx, 1000, 2)
	require.NoError(t, err)
	assert.Equal(t, MaxArchivedPageSize, page.Limit)
	assert.Len(t, page.Sessions, 1)
}

func TestMarkMessageRead_Idempotent(t *testing.T) {
	repositorytest.ForEachBackend(t, func(t *testing.T, factory unitofwork.RepositoryFactory) {
		svc := newTestService(factory)
		ctx := context.Background()

		msg := visitorSays(t, svc, "v", "hi")

		first, err := svc.MarkMessageRead(ctx, msg.Id)
		require.NoError(t, err)
		assert.True(t, first.IsRead)
		require.NotNil(t, first.ReadAt)

		second, err := svc.MarkMessageRead(ctx, msg.Id)
		require.NoError(t, err)
		assert.True(t, first.ReadAt.Equal(*second.ReadAt))

		_, err = svc.MarkMessageRead(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})
}

func TestDeleteSession(t *testing.T) {
	repositorytest.ForEachBackend(t, func(t *testing.T, factory unitofwork.RepositoryFactory) {
		svc := newTestService(factory)
		ctx := context.Background()

		msg := visitorSays(t, svc, "forget-me", "hi")
		visitorSays(t, svc, "forget-me", "there")

		require.NoError(t, svc.DeleteSession(ctx, msg.SessionId))

		_, err := svc.GetSession(ctx, msg.SessionId)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = svc.ListMessages(ctx, msg.SessionId)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = svc.MarkMessageRead(ctx, msg.Id)
		assert.ErrorIs(t, err, ErrMessageNotFound)

		assert.ErrorIs(t, svc.DeleteSession(ctx, msg.SessionId), ErrSessionNotFound)
		assert.Equal(t, []uuid.UUID{msg.SessionId}, svc.events.deleted)

		// The visitor can start again.
		next := visitorSays(t, svc, "forget-me", "new")
		assert.NotEqual(t, msg.SessionId, next.SessionId)
	})
}

func TestDeleteMessage(t *testing.T) {
	svc := newTestService(repositorytest.NewMemoryFactory(t))
	ctx := context.Background()

	msg := visitorSays(t, svc, "v", "oops")
	require.NoError(t, svc.DeleteMessage(ctx, msg.Id))
	assert.ErrorIs(t, svc.DeleteMessage(ctx, msg.Id), ErrMessageNotFound)

	history, err := svc.ListVisitorMessages(ctx, "v")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestListVisitorMessages_NoSession(t *testing.T) {
	svc := newTestService(repositorytest.NewMemoryFactory(t))

	messages, err := svc.ListVisitorMessages(context.Background(), "stranger")
	require.NoError(t, err)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)

	_, err = svc.ListVisitorMessages(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOperatorPresence(t *testing.T) {
	repositorytest.ForEachBackend(t, func(t *testing.T, factory unitofwork.RepositoryFactory) {
		svc := newTestService(factory)
		ctx := context.Background()
		operatorId := uuid.New()

		op, err := svc.RegisterOperator(ctx, &dto.RegisterOperatorRequest{UserId: operatorId, DisplayName: "  Dr. Lee "})
		require.NoError(t, err)
		assert.Equal(t, "Dr. Lee", op.DisplayName)
		assert.False(t, op.IsAvailable)

		_, err = svc.RegisterOperator(ctx, &dto.RegisterOperatorRequest{UserId: operatorId})
		assert.ErrorIs(t, err, ErrOperatorExists)

		_, err = svc.RegisterOperator(ctx, &dto.RegisterOperatorRequest{})
		assert.ErrorIs(t, err, ErrInvalidInput)

		visitorSays(t, svc, "waiting", "anyone there?")

		queue, err := svc.GetQueueStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, &dto.QueueStatusResponse{ActiveSessions: 1, UnreadSessions: 1, AvailableOperators: 0, NeedsAttention: true}, queue)

		_, err = svc.SetOperatorAvailability(ctx, operatorId, true)
		require.NoError(t, err)

		available, err := svc.ListAvailableOperators(ctx)
		require.NoError(t, err)
		require.Len(t, available, 1)
		assert.Equal(t, "Dr. Lee", available[0].DisplayName)

		queue, err = svc.GetQueueStatus(ctx)
		require.NoError(t, err)
		assert.False(t, queue.NeedsAttention)

		_, err = svc.SetOperatorAvailability(ctx, operatorId, false)
		require.NoError(t, err)
		available, err = svc.ListAvailableOperators(ctx)
		require.NoError(t, err)
		assert.Empty(t, available)

		require.NoError(t, svc.RemoveOperator(ctx, operatorId))
		assert.ErrorIs(t, svc.RemoveOperator(ctx, operatorId), ErrOperatorNotFound)
		_, err = svc.GetOperator(ctx, operatorId)
		assert.ErrorIs(t, err, ErrOperatorNotFound)

		_, err = svc.SetOperatorAvailability(ctx, uuid.Nil, true)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestErrorFamilies(t *testing.T) {
	for _, err := range []error{ErrSessionNotFound, ErrMessageNotFound, ErrOperatorNotFound} {
		assert.True(t, errors.Is(err, ErrNotFound), err.Error())
		assert.False(t, errors.Is(err, ErrInvalidState), err.Error())
	}
	for _, err := range []error{ErrSessionClosed, ErrOperatorExists} {
		assert.True(t, errors.Is(err, ErrInvalidState), err.Error())
	}
	assert.True(t, errors.Is(invalidInput("x"), ErrInvalidInput))
}
