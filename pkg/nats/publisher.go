package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clinic-chat-be/internal/pkg/logger"
	"clinic-chat-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const StreamName = "EVENTS"

func connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}

// Publisher handles sending events to the NATS bus.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.ILogger
}

func NewPublisher(url string, log logger.ILogger) (*Publisher, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Limits retention so several durable consumers can filter overlapping subjects.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{events.SubjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		log.Warn("NATS", "Failed to ensure stream", map[string]interface{}{"stream": StreamName, "error": err.Error()})
	}

	return &Publisher{nc: nc, js: js, logger: log}, nil
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	msg := nats.NewMsg(events.Subject(event.EventType()))
	msg.Data = data
	msg.Header.Set(events.OccurredAtHeader, event.Timestamp().UTC().Format(time.RFC3339Nano))

	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", msg.Subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
