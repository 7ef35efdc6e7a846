package bootstrap

import (
	"context"
	"fmt"
	"log"

	"clinic-chat-be/internal/config"
	"clinic-chat-be/internal/controller"
	chatEvents "clinic-chat-be/internal/events"
	"clinic-chat-be/internal/handler"
	"clinic-chat-be/internal/model"
	"clinic-chat-be/internal/pkg/logger"
	"clinic-chat-be/internal/pkg/mailer"
	"clinic-chat-be/internal/pkg/serverutils"
	"clinic-chat-be/internal/repository/memory"
	"clinic-chat-be/internal/repository/unitofwork"
	"clinic-chat-be/internal/service"
	"clinic-chat-be/internal/websocket"
	"clinic-chat-be/pkg/bus"
	"clinic-chat-be/pkg/database"
	pkgEvents "clinic-chat-be/pkg/events"
	pktNats "clinic-chat-be/pkg/nats"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Config *config.Config
	Logger *logger.ZapLogger

	// Controllers
	ChatController controller.IChatController
	ChatWsHandler  *handler.ChatWsHandler
	Auth           fiber.Handler

	// Services
	ChatService       service.IChatService
	UnattendedService service.IUnattendedService

	// Background (run by main)
	WebSocketHub *websocket.Hub
	Subscriber   pkgEvents.Subscriber

	closers []func()
}

// NewContainer wires the chat subsystem for the configured store driver and
// event transport.
func NewContainer(cfg *config.Config) (*Container, error) {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.IsProduction())
	c := &Container{Config: cfg, Logger: sysLogger}

	// 1. Store
	uowFactory, err := newRepositoryFactory(cfg, sysLogger)
	if err != nil {
		return nil, err
	}

	// 2. Event transport
	publisher, subscriber := c.newEventBus(cfg, sysLogger)
	c.Subscriber = subscriber

	// 3. Redis (optional, cross-instance websocket fan-out)
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// 4. WebSocket hub, logged to its own file
	wsLogger := logger.NewIsolatedLogger(cfg.App.DeliveryLogPath)
	c.WebSocketHub = websocket.NewHub(rdb, wsLogger)

	// 5. Services
	c.ChatService = service.NewChatService(
		uowFactory,
		c.WebSocketHub,
		chatEvents.NewChatEventPublisher(publisher, sysLogger),
		sysLogger,
		service.ChatServiceConfig{MaxMessageLength: cfg.Chat.MaxMessageLength},
	)

	var emailService mailer.IEmailService
	if cfg.SMTP.Enabled() {
		emailService = mailer.NewEmailService(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Email,
			cfg.SMTP.Password,
			cfg.SMTP.Email,
			cfg.SMTP.SenderName,
		)
	}
	c.UnattendedService = service.NewUnattendedService(c.ChatService, emailService, sysLogger, service.UnattendedConfig{
		Greeting:   cfg.Chat.UnattendedGreeting,
		AlertEmail: cfg.Chat.AlertEmail,
	})
	transcriptService := service.NewTranscriptService(c.ChatService)

	// 6. Transport
	c.Auth = serverutils.JwtMiddleware(cfg.App.JwtSecret)
	c.ChatController = controller.NewChatController(c.ChatService, transcriptService, c.Auth)
	c.ChatWsHandler = handler.NewChatWsHandler(c.ChatService, c.WebSocketHub, wsLogger)

	c.closers = append(c.closers, func() {
		_ = wsLogger.Sync()
		_ = sysLogger.Sync()
	})
	return c, nil
}

func newRepositoryFactory(cfg *config.Config, log logger.ILogger) (unitofwork.RepositoryFactory, error) {
	switch cfg.Chat.StoreDriver {
	case config.StoreMemory:
		log.Info("BOOTSTRAP", "Using in-memory chat store", nil)
		return unitofwork.NewMemoryRepositoryFactory(memory.NewStore()), nil

	case config.StoreSQLite:
		db, err := database.NewSQLiteDB(cfg.Database.SQLitePath, cfg.Database.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := model.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		log.Info("BOOTSTRAP", "Using sqlite chat store", map[string]interface{}{"path": cfg.Database.SQLitePath})
		return unitofwork.NewRepositoryFactory(db), nil

	case config.StorePostgres:
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.Database.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		log.Info("BOOTSTRAP", "Using postgres chat store", nil)
		return unitofwork.NewRepositoryFactory(db), nil

	default:
		return nil, fmt.Errorf("unknown chat store driver %q", cfg.Chat.StoreDriver)
	}
}

// newEventBus prefers JetStream and falls back to the in-process bus when NATS
// is not configured or unreachable.
func (c *Container) newEventBus(cfg *config.Config, log logger.ILogger) (pkgEvents.Publisher, pkgEvents.Subscriber) {
	if cfg.App.NatsURL != "" {
		pub, sub, err := connectNats(cfg.App.NatsURL, log)
		if err == nil {
			c.closers = append(c.closers, pub.Close, sub.Close)
			return pub, sub
		}
		log.Warn("BOOTSTRAP", "NATS unavailable, using in-process event bus", map[string]interface{}{"error": err.Error()})
	}

	channelBus := bus.NewChannelBus(log)
	c.closers = append(c.closers, channelBus.Close)
	return channelBus, channelBus
}

func connectNats(url string, log logger.ILogger) (*pktNats.Publisher, *pktNats.Subscriber, error) {
	pub, err := pktNats.NewPublisher(url, log)
	if err != nil {
		return nil, nil, err
	}
	sub, err := pktNats.NewSubscriber(url, log)
	if err != nil {
		pub.Close()
		return nil, nil, err
	}
	return pub, sub, nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// OpenDatabase connects to the relational store selected by the config.
func OpenDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Chat.StoreDriver == config.StoreSQLite {
		return database.NewSQLiteDB(cfg.Database.SQLitePath, cfg.Database.LogLevel)
	}
	return database.NewGormDBFromDSN(cfg.Database.Connection, cfg.Database.LogLevel)
}
