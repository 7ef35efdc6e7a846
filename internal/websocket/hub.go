package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"clinic-chat-be/internal/entity"
	"clinic-chat-be/internal/mapper"
	"clinic-chat-be/internal/pkg/logger"
	"clinic-chat-be/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClusterChannel carries frames between instances.
const ClusterChannel = "chat_cluster_events"

const (
	FrameMessage = "chat.message"
	FrameSession = "chat.session"

	visitorPrefix  = "visitor:"
	operatorPrefix = "operator:"
)

func VisitorAudience(visitorId string) string {
	return visitorPrefix + visitorId
}

func OperatorAudience(userId uuid.UUID) string {
	return operatorPrefix + userId.String()
}

type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type MessageFrameData struct {
	Session interface{} `json:"session"`
	Message interface{} `json:"message"`
}

type SessionFrameData struct {
	Event   string      `json:"event"`
	Session interface{} `json:"session"`
}

// clusterEnvelope wraps a frame published to Redis. Origin lets the publishing
// instance skip its own frames, which it already delivered locally.
type clusterEnvelope struct {
	Origin    string          `json:"origin"`
	VisitorId string          `json:"visitor_id,omitempty"`
	Operators bool            `json:"operators"`
	Frame     json.RawMessage `json:"frame"`
}

// Hub fans chat frames out to connected visitors and operators. It implements
// service.ChatDelivery.
type Hub struct {
	id string

	// audience key -> connections (one per tab/device)
	clients map[string][]*Client
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// nil disables cross-instance delivery
	rdb *redis.Client

	logger logger.ILogger
	mapper *mapper.ChatMapper
}

var _ service.ChatDelivery = (*Hub)(nil)

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		id:         uuid.NewString(),
		clients:    make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rdb:        rdb,
		logger:     log,
		mapper:     mapper.NewChatMapper(),
	}
}

// Run serves registrations until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.detachAll()
			return
		case client := <-h.register:
			h.attach(client)
		case client := <-h.unregister:
			h.detach(client)
		}
	}
}

func (h *Hub) attach(client *Client) {
	h.mu.Lock()
	h.clients[client.Audience] = append(h.clients[client.Audience], client)
	h.mu.Unlock()
	h.logger.Info("Hub", "Client registered", map[string]interface{}{"audience": client.Audience})
}

// detach removes the client and closes its send channel. Repeated calls are no-ops.
func (h *Hub) detach(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.Audience]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.Audience] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.Audience]) == 0 {
		delete(h.clients, client.Audience)
		h.logger.Info("Hub", "Audience disconnected", map[string]interface{}{"audience": client.Audience})
	}
}

func (h *Hub) detachAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for audience, clients := range h.clients {
		for _, c := range clients {
			close(c.Send)
		}
		delete(h.clients, audience)
	}
}

// Register hands a new connection to Run. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) DeliverMessage(session *entity.ChatSession, message *entity.ChatMessage) {
	h.deliver(session.VisitorId, true, Frame{
		Type: FrameMessage,
		Data: MessageFrameData{
			Session: h.mapper.ChatSessionToResponse(session),
			Message: h.mapper.ChatMessageToResponse(message),
		},
	})
}

// DeliverSessionUpdate notifies operators. The visitor is told only when the
// session stops accepting messages.
func (h *Hub) DeliverSessionUpdate(kind string, session *entity.ChatSession) {
	visitorId := ""
	if kind == service.SessionUpdateArchived || kind == service.SessionUpdateDeleted {
		visitorId = session.VisitorId
	}
	h.deliver(visitorId, true, Frame{
		Type: FrameSession,
		Data: SessionFrameData{
			Event:   kind,
			Session: h.mapper.ChatSessionToResponse(session),
		},
	})
}

func (h *Hub) deliver(visitorId string, toOperators bool, frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("Hub", "Failed to encode frame", map[string]interface{}{"type": frame.Type, "error": err.Error()})
		return
	}

	h.deliverLocal(visitorId, toOperators, data)

	if h.rdb != nil {
		envelope, _ := json.Marshal(clusterEnvelope{
			Origin:    h.id,
			VisitorId: visitorId,
			Operators: toOperators,
			Frame:     data,
		})
		if err := h.rdb.Publish(context.Background(), ClusterChannel, envelope).Err(); err != nil {
			h.logger.Warn("Hub", "Failed to publish frame to cluster", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (h *Hub) deliverLocal(visitorId string, toOperators bool, data []byte) {
	var slow []*Client

	h.mu.RLock()
	for audience, clients := range h.clients {
		target := (visitorId != "" && audience == VisitorAudience(visitorId)) ||
			(toOperators && strings.HasPrefix(audience, operatorPrefix))
		if !target {
			continue
		}
		for _, client := range clients {
			select {
			case client.Send <- data:
			default:
				slow = append(slow, client)
			}
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Hub", "Client send buffer full, dropping connection", map[string]interface{}{"audience": client.Audience})
		h.detach(client)
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var envelope clusterEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				h.logger.Warn("Hub", "Dropping malformed cluster frame", map[string]interface{}{"error": err.Error()})
				continue
			}
			if envelope.Origin == h.id {
				continue
			}
			h.deliverLocal(envelope.VisitorId, envelope.Operators, envelope.Frame)
		}
	}
}

// ConnectionCount reports the number of live connections for an audience key.
func (h *Hub) ConnectionCount(audience string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[audience])
}
