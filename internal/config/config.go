package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              int
	NatsURL           string
	NatsToken         string
	DatabaseURL       string
	LogLevel          string
	DataDir           string
	FlowsDir          string
	CallerNumber      string
	ConfidenceMin     float64
	ToolTimeout       time.Duration
	SessionTTL        time.Duration
	LedgerMaxAttempts int
	OpsChatToken      string
	OpsChatChannel    string
}

func Load() Config {
	// Local development keeps secrets in .env.local; missing file is fine.
	_ = godotenv.Load(".env.local")

	return Config{
		Port:              envInt("SAHAYAK_PORT", 8650),
		NatsURL:           envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:         envStr("NATS_TOKEN", ""),
		DatabaseURL:       envStr("DATABASE_URL", ""),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		DataDir:           envStr("SAHAYAK_DATA_DIR", "data"),
		FlowsDir:          envStr("SAHAYAK_FLOWS_DIR", "flows"),
		CallerNumber:      envStr("SAHAYAK_CALLER_NUMBER", ""),
		ConfidenceMin:     envFloat("SAHAYAK_CONFIDENCE_MIN", 0.5),
		ToolTimeout:       envDuration("SAHAYAK_TOOL_TIMEOUT", 5*time.Second),
		SessionTTL:        envDuration("SAHAYAK_SESSION_TTL", 30*time.Minute),
		LedgerMaxAttempts: envInt("SAHAYAK_LEDGER_MAX_ATTEMPTS", 4),
		OpsChatToken:      envStr("OPS_CHAT_TOKEN", ""),
		OpsChatChannel:    envStr("OPS_CHAT_CHANNEL", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
