package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration for the session manager.
type Server struct {
	Addr          string
	AdminToken    string
	JWTSigningKey string
	SealingKey    string

	// GatewayURL is the websocket endpoint of the messaging gateway.
	GatewayURL string

	Linking  Linking
	Redis    Redis
	Database Database
	Kafka    Kafka
}

// Linking holds pairing and reconnection tuning for session supervisors.
type Linking struct {
	QRRotationInterval time.Duration
	PairingWindow      time.Duration
	ReconnectInitial   time.Duration
	ReconnectMax       time.Duration
	ReconnectGiveUp    int
	SupervisorIdleTTL  time.Duration
	ReaperInterval     time.Duration
}

// Redis holds connection settings for the Redis credential store backend.
type Redis struct {
	URL string
}

// Database holds connection settings for the Postgres credential store backend.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Kafka holds broker settings for the message pipeline topics.
type Kafka struct {
	Brokers       string
	InboundTopic  string
	OutboundTopic string
	ConsumerGroup string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:          envOr("LINKHUB_ADDR", ":8080"),
		AdminToken:    os.Getenv("LINKHUB_ADMIN_TOKEN"),
		JWTSigningKey: envOr("LINKHUB_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		SealingKey:    os.Getenv("LINKHUB_SEALING_KEY"),
		GatewayURL:    envOr("LINKHUB_GATEWAY_URL", "wss://gateway.linkhub.internal/link"),
		Linking: Linking{
			QRRotationInterval: envDuration("LINKHUB_QR_ROTATION_INTERVAL", 20*time.Second),
			PairingWindow:      envDuration("LINKHUB_PAIRING_WINDOW", 60*time.Second),
			ReconnectInitial:   envDuration("LINKHUB_RECONNECT_INITIAL", 2*time.Second),
			ReconnectMax:       envDuration("LINKHUB_RECONNECT_MAX", 2*time.Minute),
			ReconnectGiveUp:    envInt("LINKHUB_RECONNECT_GIVE_UP", 10),
			SupervisorIdleTTL:  envDuration("LINKHUB_SUPERVISOR_IDLE_TTL", 30*time.Minute),
			ReaperInterval:     envDuration("LINKHUB_REAPER_INTERVAL", 5*time.Minute),
		},
		Redis: Redis{
			URL: os.Getenv("LINKHUB_REDIS_URL"),
		},
		Database: Database{
			URL:             os.Getenv("LINKHUB_DATABASE_URL"),
			MaxOpenConns:    envInt("LINKHUB_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("LINKHUB_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("LINKHUB_DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Kafka: Kafka{
			Brokers:       os.Getenv("LINKHUB_KAFKA_BROKERS"),
			InboundTopic:  envOr("LINKHUB_KAFKA_INBOUND_TOPIC", "linkhub.messages.inbound"),
			OutboundTopic: envOr("LINKHUB_KAFKA_OUTBOUND_TOPIC", "linkhub.messages.outbound"),
			ConsumerGroup: envOr("LINKHUB_KAFKA_CONSUMER_GROUP", "linkhub-outbound"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
