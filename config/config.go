package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Control ControlConfig
	Session SessionConfig
	AWS     AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// RedisConfig holds Redis connection settings. Redis is optional; when Addr
// is empty the relay runs single-instance and the archive queue is disabled.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ControlConfig holds signing settings for narrator capability tokens.
type ControlConfig struct {
	TokenSecret      string
	TokenExpireHours int
}

// SessionConfig tunes the timeline reconciler and review-mode trend grid.
// All intervals are milliseconds.
type SessionConfig struct {
	IdleThresholdMs  int // silence before heartbeat synthesis kicks in
	HeartbeatEveryMs int // minimum gap between synthesized samples per listener
	TickMs           int // reconciler ticker interval
	TrendStepMs      int // review-mode average trend grid step
}

// AWSConfig holds credentials and the S3 bucket for archived session snapshots.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ArchiveBucket        string
	PresignExpireMinutes int
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Control: ControlConfig{
			TokenSecret:      getEnv("CONTROL_TOKEN_SECRET", "change-me-in-production"),
			TokenExpireHours: getEnvInt("CONTROL_TOKEN_EXPIRE_HOURS", 12),
		},
		Session: SessionConfig{
			IdleThresholdMs:  getEnvInt("FEEDBACK_IDLE_THRESHOLD_MS", 150),
			HeartbeatEveryMs: getEnvInt("FEEDBACK_HEARTBEAT_EVERY_MS", 100),
			TickMs:           getEnvInt("FEEDBACK_TICK_MS", 50),
			TrendStepMs:      getEnvInt("TREND_STEP_MS", 200),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:        getEnv("AWS_S3_ARCHIVE_BUCKET", "narration-archive-bucket"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
