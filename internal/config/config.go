package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Chat     ChatConfig
	SMTP     SMTPConfig
	Tracing  TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	DeliveryLogPath    string
	CorsAllowedOrigins string
	NatsURL            string // empty selects the in-process event bus
	RedisURL           string // empty disables cross-instance delivery
	JwtSecret          string
}

func (c AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

type DatabaseConfig struct {
	Connection string
	SQLitePath string
	LogLevel   string
}

type ChatConfig struct {
	StoreDriver        string // memory, postgres or sqlite
	MaxMessageLength   int
	UnattendedGreeting string
	AlertEmail         string
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.Email != ""
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			DeliveryLogPath:    getEnv("DELIVERY_LOG_FILE_PATH", "logs/delivery.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
			SQLitePath: getEnv("SQLITE_PATH", "clinic-chat.db"),
			LogLevel:   getEnv("DB_LOG_LEVEL", "warn"),
		},
		Chat: ChatConfig{
			StoreDriver:        strings.ToLower(getEnv("CHAT_STORE_DRIVER", StorePostgres)),
			MaxMessageLength:   getEnvAsInt("CHAT_MAX_MESSAGE_LENGTH", 2000),
			UnattendedGreeting: getEnv("CHAT_UNATTENDED_GREETING", "Thanks for reaching out! Our team is currently away, we will reply as soon as an operator is available."),
			AlertEmail:         getEnv("CHAT_ALERT_EMAIL", ""),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Email:      getEnv("SMTP_EMAIL", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "Clinic Support"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "clinic-chat-backend"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
