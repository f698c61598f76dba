package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr           string
	DevMode        bool
	LogLevel       string
	RequestTimeout time.Duration
	TxTimeout      time.Duration

	Auth        AuthConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Attachments AttachmentConfig
}

type AuthConfig struct {
	SigningKey string
	Issuer     string
	TokenTTL   time.Duration
	BcryptCost int

	// Failed logins allowed per username and address within LoginWindow
	// before a LoginLockout.
	LoginAttempts int
	LoginWindow   time.Duration
	LoginLockout  time.Duration
}

// DatabaseConfig selects the entity store. An empty URL runs on in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig backs token revocation and login lockouts. An empty URL keeps
// both in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the audit stream. No brokers means audit events are only logged.
type KafkaConfig struct {
	Brokers     []string
	ClientID    string
	TopicPrefix string
	Partitions  int32
	Replication int16
}

const (
	AttachmentBackendLocal = "local"
	AttachmentBackendS3    = "s3"
)

type AttachmentConfig struct {
	Backend  string
	Dir      string
	MaxBytes int64
	S3       S3Config
}

type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:           envString("CORRESPONDENCE_ADDR", ":8080"),
		DevMode:        envBool("DEV_MODE", true),
		LogLevel:       envString("LOG_LEVEL", "info"),
		RequestTimeout: envDuration("REQUEST_TIMEOUT", 30*time.Second),
		TxTimeout:      envDuration("TX_TIMEOUT", 5*time.Second),
		Auth: AuthConfig{
			// Use a default for development - should be overridden in production
			SigningKey: envString("JWT_SIGNING_KEY", devSigningKey),
			Issuer:     envString("JWT_ISSUER", "correspondence"),
			TokenTTL:   envDuration("TOKEN_TTL", 24*time.Hour),
			BcryptCost: envInt("BCRYPT_COST", 10),

			LoginAttempts: envInt("LOGIN_MAX_ATTEMPTS", 5),
			LoginWindow:   envDuration("LOGIN_WINDOW", 15*time.Minute),
			LoginLockout:  envDuration("LOGIN_LOCKOUT", 15*time.Minute),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     envList("KAFKA_BROKERS"),
			ClientID:    envString("KAFKA_CLIENT_ID", "correspondence"),
			TopicPrefix: envString("KAFKA_AUDIT_TOPIC_PREFIX", "correspondence.audit"),
			Partitions:  int32(envInt("KAFKA_AUDIT_PARTITIONS", 3)),
			Replication: int16(envInt("KAFKA_AUDIT_REPLICATION", 1)),
		},
		Attachments: AttachmentConfig{
			Backend:  envString("ATTACHMENT_BACKEND", AttachmentBackendLocal),
			Dir:      envString("ATTACHMENT_DIR", "uploads"),
			MaxBytes: int64(envInt("ATTACHMENT_MAX_BYTES", 16<<20)),
			S3: S3Config{
				Bucket:       os.Getenv("S3_BUCKET"),
				Region:       envString("S3_REGION", "us-east-1"),
				Endpoint:     os.Getenv("S3_ENDPOINT"),
				AccessKey:    os.Getenv("S3_ACCESS_KEY"),
				SecretKey:    os.Getenv("S3_SECRET_KEY"),
				UsePathStyle: envBool("S3_USE_PATH_STYLE", false),
			},
		},
	}
}

// Validate rejects configurations that must not reach production.
func (s Server) Validate() error {
	var errs []error
	if s.Auth.SigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY is required"))
	}
	if !s.DevMode && s.Auth.SigningKey == devSigningKey {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must be set outside dev mode"))
	}
	if s.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	switch s.Attachments.Backend {
	case AttachmentBackendLocal:
		if s.Attachments.Dir == "" {
			errs = append(errs, errors.New("ATTACHMENT_DIR is required for the local backend"))
		}
	case AttachmentBackendS3:
		if s.Attachments.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ATTACHMENT_BACKEND %q", s.Attachments.Backend))
	}
	if s.Attachments.MaxBytes <= 0 {
		errs = append(errs, errors.New("ATTACHMENT_MAX_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
