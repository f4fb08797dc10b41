package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	strutil "realhub/pkg/platform/strings"
)

// Server captures process-level configuration. Values come from the
// environment so main stays lean; a local .env file is honored when present.
type Server struct {
	Addr          string
	DatabaseURL   string
	JWTSigningKey string

	// AccessTokenTTL bounds how long issued bearer tokens stay valid.
	AccessTokenTTL time.Duration

	// BootstrapAdminEmail and BootstrapAdminPassword, when both set, seed an
	// admin account at startup if one with that email does not already exist.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	Redis RedisConfig

	KafkaBrokers []string
	EventTopic   string

	// LockWait bounds how long a transition waits on a contended entity.
	LockWait time.Duration
}

// RedisConfig holds connection settings for the transition lock backend.
type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	// Best effort; absence of a .env file is the normal production case.
	_ = godotenv.Load()

	addr := os.Getenv("REALHUB_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("REALHUB_EVENT_TOPIC")
	if topic == "" {
		topic = "realhub.domain-events"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strutil.DedupeAndTrim(strings.Split(raw, ","))
	}

	lockWait := 2 * time.Second
	if raw := os.Getenv("REALHUB_LOCK_WAIT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			lockWait = d
		}
	}

	tokenTTL := 24 * time.Hour
	if raw := os.Getenv("REALHUB_TOKEN_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			tokenTTL = d
		}
	}

	return Server{
		Addr:                   addr,
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		JWTSigningKey:          jwtSigningKey,
		AccessTokenTTL:         tokenTTL,
		BootstrapAdminEmail:    os.Getenv("REALHUB_BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword: os.Getenv("REALHUB_BOOTSTRAP_ADMIN_PASSWORD"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		KafkaBrokers: brokers,
		EventTopic:   topic,
		LockWait:     lockWait,
	}
}
