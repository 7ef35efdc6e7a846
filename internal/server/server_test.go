package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clinic-chat-be/internal/bootstrap"
	"clinic-chat-be/internal/config"
	"clinic-chat-be/internal/dto"
	"clinic-chat-be/internal/pkg/serverutils"
	"clinic-chat-be/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testSecret = "test-secret"

type testEnv struct {
	app       *fiber.App
	container *bootstrap.Container
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		App: config.AppConfig{
			Port:               "0",
			Environment:        "test",
			LogFilePath:        filepath.Join(dir, "app.log"),
			DeliveryLogPath:    filepath.Join(dir, "delivery.log"),
			CorsAllowedOrigins: "http://localhost:5173",
			JwtSecret:          testSecret,
		},
		Chat: config.ChatConfig{
			StoreDriver:        config.StoreMemory,
			MaxMessageLength:   50,
			UnattendedGreeting: "We will be right with you",
		},
	}

	container, err := bootstrap.NewContainer(cfg)
	require.NoError(t, err)
	t.Cleanup(container.Close)

	return &testEnv{app: server.New(cfg, container).GetApp(), container: container}
}

func operatorToken(t *testing.T, userId uuid.UUID) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userId.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) serverutils.BaseResponse[T] {
	t.Helper()
	defer resp.Body.Close()

	var body serverutils.BaseResponse[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestChatFlow_VisitorAndOperator(t *testing.T) {
	env := newTestEnv(t)
	operatorId := uuid.New()
	token := operatorToken(t, operatorId)

	// Visitor opens a session; a second call returns the same one.
	resp := env.do(t, "POST", "/api/chat/v1/visitor/session", dto.VisitorSessionRequest{VisitorId: "visitor-1"}, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	session := decode[dto.ChatSessionResponse](t, resp).Data
	assert.Equal(t, "visitor-1", session.VisitorId)
	assert.False(t, session.IsArchived)

	resp = env.do(t, "POST", "/api/chat/v1/visitor/session", dto.VisitorSessionRequest{VisitorId: "visitor-1"}, "")
	assert.Equal(t, session.Id, decode[dto.ChatSessionResponse](t, resp).Data.Id)

	// Visitor writes; the session shows up unread for operators.
	resp = env.do(t, "POST", "/api/chat/v1/visitor/messages", dto.VisitorMessageRequest{VisitorId: "visitor-1", Content: "  my tooth hurts  "}, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	visitorMsg := decode[dto.ChatMessageResponse](t, resp).Data
	assert.Equal(t, "my tooth hurts", visitorMsg.Content)
	assert.Equal(t, "visitor", visitorMsg.SenderType)
	assert.Nil(t, visitorMsg.SenderId)

	resp = env.do(t, "GET", "/api/chat/v1/sessions", nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	active := decode[[]dto.ChatSessionResponse](t, resp).Data
	require.Len(t, active, 1)
	assert.True(t, active[0].HasUnreadMessages)
	assert.Equal(t, visitorMsg.Timestamp, active[0].LastMessageAt)

	// Operator replies; the sender id comes from the token.
	resp = env.do(t, "POST", "/api/chat/v1/sessions/"+session.Id.String()+"/messages", dto.OperatorMessageRequest{Content: "Can you come in at 3pm?"}, token)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	reply := decode[dto.ChatMessageResponse](t, resp).Data
	assert.Equal(t, "operator", reply.SenderType)
	require.NotNil(t, reply.SenderId)
	assert.Equal(t, operatorId, *reply.SenderId)
	assert.True(t, reply.Timestamp.After(visitorMsg.Timestamp))

	// Operator replies do not clear the unread flag; reading does.
	resp = env.do(t, "GET", "/api/chat/v1/sessions/"+session.Id.String(), nil, token)
	assert.True(t, decode[dto.ChatSessionResponse](t, resp).Data.HasUnreadMessages)

	resp = env.do(t, "PATCH", "/api/chat/v1/sessions/"+session.Id.String()+"/read?messages=true", nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.False(t, decode[dto.ChatSessionResponse](t, resp).Data.HasUnreadMessages)

	resp = env.do(t, "GET", "/api/chat/v1/sessions/"+session.Id.String()+"/messages", nil, token)
	messages := decode[[]dto.ChatMessageResponse](t, resp).Data
	require.Len(t, messages, 2)
	assert.Equal(t, visitorMsg.Id, messages[0].Id)
	assert.Equal(t, reply.Id, messages[1].Id)
	for _, m := range messages {
		assert.True(t, m.IsRead)
		assert.NotNil(t, m.ReadAt)
	}

	// The visitor sees the same history without a token.
	resp = env.do(t, "GET", "/api/chat/v1/visitor/session/visitor-1/messages", nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]dto.ChatMessageResponse](t, resp).Data, 2)

	// Archive, then the next visitor message opens a fresh session.
	resp = env.do(t, "PATCH", "/api/chat/v1/sessions/"+session.Id.String()+"/archive", nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	archived := decode[dto.ChatSessionResponse](t, resp).Data
	assert.True(t, archived.IsArchived)
	assert.NotNil(t, archived.ArchivedAt)

	resp = env.do(t, "POST", "/api/chat/v1/sessions/"+session.Id.String()+"/messages", dto.OperatorMessageRequest{Content: "hello?"}, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = env.do(t, "POST", "/api/chat/v1/visitor/messages", dto.VisitorMessageRequest{VisitorId: "visitor-1", Content: "I'm back"}, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.NotEqual(t, session.Id, decode[dto.ChatMessageResponse](t, resp).Data.SessionId)

	resp = env.do(t, "GET", "/api/chat/v1/sessions/archived?limit=10", nil, token)
	page := decode[dto.ArchivedSessionsResponse](t, resp).Data
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 10, page.Limit)
	require.Len(t, page.Sessions, 1)
	assert.Equal(t, session.Id, page.Sessions[0].Id)
}

func TestChatErrors(t *testing.T) {
	env := newTestEnv(t)
	token := operatorToken(t, uuid.New())

	t.Run("operator routes require a token", func(t *testing.T) {
		for _, path := range []string{"/api/chat/v1/sessions", "/api/chat/v1/queue", "/api/chat/v1/operators/available"} {
			resp := env.do(t, "GET", path, nil, "")
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		resp := env.do(t, "GET", "/api/chat/v1/sessions/not-a-uuid", nil, token)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown session", func(t *testing.T) {
		resp := env.do(t, "GET", "/api/chat/v1/sessions/"+uuid.NewString(), nil, token)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "chat session not found", decode[any](t, resp).Message)

		resp = env.do(t, "POST", "/api/chat/v1/sessions/"+uuid.NewString()+"/messages", dto.OperatorMessageRequest{Content: "hi"}, token)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown message", func(t *testing.T) {
		resp := env.do(t, "PATCH", "/api/chat/v1/messages/"+uuid.NewString()+"/read", nil, token)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		resp = env.do(t, "DELETE", "/api/chat/v1/messages/"+uuid.NewString(), nil, token)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing visitor id", func(t *testing.T) {
		resp := env.do(t, "POST", "/api/chat/v1/visitor/session", dto.VisitorSessionRequest{}, "")
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("blank content", func(t *testing.T) {
		resp := env.do(t, "POST", "/api/chat/v1/visitor/messages", dto.VisitorMessageRequest{VisitorId: "v", Content: "   "}, "")
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("content over the limit", func(t *testing.T) {
		resp := env.do(t, "POST", "/api/chat/v1/visitor/messages", dto.VisitorMessageRequest{VisitorId: "v", Content: strings.Repeat("a", 51)}, "")
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/chat/v1/visitor/session", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := env.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestMessageAndSessionDeletion(t *testing.T) {
	env := newTestEnv(t)
	token := operatorToken(t, uuid.New())

	resp := env.do(t, "POST", "/api/chat/v1/visitor/messages", dto.VisitorMessageRequest{VisitorId: "visitor-2", Content: "first"}, "")
	first := decode[dto.ChatMessageResponse](t, resp).Data
	resp = env.do(t, "POST", "/api/chat/v1/visitor/messages", dto.VisitorMessageRequest{VisitorId: "visitor-2", Content: "second"}, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = env.do(t, "PATCH", "/api/chat/v1/messages/"+first.Id.String()+"/read", nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, decode[dto.ChatMessageResponse](t, resp).Data.IsRead)

	resp = env.do(t, "DELETE", "/api/chat/v1/messages/"+first.Id.String(), nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/api/chat/v1/sessions/"+first.SessionId.String()+"/messages", nil, token)
	remaining := decode[[]dto.ChatMessageResponse](t, resp).Data
	require.Len(t, remaining, 1)
	assert.Equal(t, "second", remaining[0].Content)

	resp = env.do(t, "DELETE", "/api/chat/v1/sessions/"+first.SessionId.String(), nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/api/chat/v1/sessions/"+first.SessionId.String()+"/messages", nil, token)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp = env.do(t, "DELETE", "/api/chat/v1/sessions/"+first.SessionId.String(), nil, token)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestOperatorPresenceAndQueue(t *testing.T) {
	env := newTestEnv(t)
	operatorId := uuid.New()
	token := operatorToken(t, operatorId)

	resp := env.do(t, "POST", "/api/chat/v1/operators", dto.RegisterOperatorRequest{UserId: operatorId, DisplayName: "Dr. Ana"}, token)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.False(t, decode[dto.ChatOperatorResponse](t, resp).Data.IsAvailable)

	resp = env.do(t, "POST", "/api/chat/v1/operators", dto.RegisterOperatorRequest{UserId: operatorId}, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	// A visitor waiting with nobody available needs attention.
	env.do(t, "POST", "/api/chat/v1/visitor/messages", dto.VisitorMessageRequest{VisitorId: "visitor-3", Content: "anyone?"}, "")

	resp = env.do(t, "GET", "/api/chat/v1/queue", nil, token)
	queue := decode[dto.QueueStatusResponse](t, resp).Data
	assert.Equal(t, int64(1), queue.ActiveSessions)
	assert.Equal(t, int64(1), queue.UnreadSessions)
	assert.Equal(t, int64(0), queue.AvailableOperators)
	assert.True(t, queue.NeedsAttention)

	available := true
	resp = env.do(t, "PUT", "/api/chat/v1/operators/me/availability", dto.SetAvailabilityRequest{IsAvailable: &available}, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, decode[dto.ChatOperatorResponse](t, resp).Data.IsAvailable)

	resp = env.do(t, "GET", "/api/chat/v1/operators/available", nil, token)
	operators := decode[[]dto.ChatOperatorResponse](t, resp).Data
	require.Len(t, operators, 1)
	assert.Equal(t, operatorId, operators[0].UserId)
	assert.Equal(t, "Dr. Ana", operators[0].DisplayName)

	resp = env.do(t, "GET", "/api/chat/v1/queue", nil, token)
	assert.False(t, decode[dto.QueueStatusResponse](t, resp).Data.NeedsAttention)

	resp = env.do(t, "PUT", "/api/chat/v1/operators/me/availability", map[string]interface{}{}, token)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "GET", "/api/chat/v1/operators/"+operatorId.String(), nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = env.do(t, "DELETE", "/api/chat/v1/operators/"+operatorId.String(), nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp = env.do(t, "GET", "/api/chat/v1/operators/"+operatorId.String(), nil, token)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestTranscriptExport(t *testing.T) {
	env := newTestEnv(t)
	token := operatorToken(t, uuid.New())

	resp := env.do(t, "POST", "/api/chat/v1/visitor/messages", dto.VisitorMessageRequest{VisitorId: "visitor-4", Content: "need a refill"}, "")
	msg := decode[dto.ChatMessageResponse](t, resp).Data
	env.do(t, "POST", "/api/chat/v1/sessions/"+msg.SessionId.String()+"/messages", dto.OperatorMessageRequest{Content: "sure"}, token)

	resp = env.do(t, "GET", "/api/chat/v1/sessions/"+msg.SessionId.String()+"/transcript.xlsx", nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), msg.SessionId.String()[:8])

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Transcript")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "need a refill", rows[1][2])
	assert.Equal(t, "sure", rows[2][2])
}

func TestSocketRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := operatorToken(t, uuid.New())

	// Plain GETs reach the socket handlers (not /operators/:userId) and ask for an upgrade.
	resp := env.do(t, "GET", "/api/chat/v1/operators/ws", nil, token)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	resp = env.do(t, "GET", "/api/chat/v1/operators/ws", nil, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "GET", "/api/chat/v1/visitor/ws?visitor_id=v-1", nil, "")
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	resp = env.do(t, "GET", "/api/chat/v1/visitor/ws", nil, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUnattendedGreeting(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.container.UnattendedService.Start(env.container.Subscriber))

	resp := env.do(t, "POST", "/api/chat/v1/visitor/session", dto.VisitorSessionRequest{VisitorId: "night-owl"}, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Eventually(t, func() bool {
		resp := env.do(t, "GET", "/api/chat/v1/visitor/session/night-owl/messages", nil, "")
		messages := decode[[]dto.ChatMessageResponse](t, resp).Data
		return len(messages) == 1 &&
			messages[0].SenderType == "system" &&
			messages[0].Content == "We will be right with you"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, "GET", "/healthz", nil, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
