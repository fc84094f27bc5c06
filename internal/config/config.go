package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBDSN     string
	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// rabbitMQ (persist replay queue)
	RabbitURL   string
	RabbitQueue string

	// stream admission control
	RateLimit  int
	RateWindow time.Duration

	// SSE keepalive cadence
	KeepaliveInterval time.Duration

	// durable-write retry budget
	PersistAttempts   int
	PersistRetryDelay time.Duration

	// upstream provider
	DefaultBaseURL    string
	OpenRouterBaseURL string

	// outbound request transforms
	ForceReasoningEnabled       bool
	ForceReasoningEffort        string
	ForceReasoningModelPatterns []string
	ForceReasoningOverride      bool
	InjectionTagEnabled         bool
	InjectionTagName            string

	CORSOrigins []string

	// client-side placeholder ids for not-yet-persisted messages
	TempMessageIDPrefix string

	BotCacheTTL time.Duration
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func Load() Config {
	// DSN demo:
	// app:apppass@tcp(127.0.0.1:3306)/relay?charset=utf8mb4&parseTime=true&loc=Local
	dsn := envStr("DB_DSN", "file:relay.db?cache=shared")

	return Config{
		DBDSN:     dsn,
		JWTSecret: envStr("JWT_SECRET", "dev-secret-change-me"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: envStr("RABBIT_QUEUE", "persist_replay"),

		RateLimit:  envInt("STREAM_RATE_LIMIT", 5),
		RateWindow: envDur("STREAM_RATE_WINDOW", 60*time.Second),

		KeepaliveInterval: envDur("STREAM_KEEPALIVE", 15*time.Second),

		PersistAttempts:   envInt("PERSIST_ATTEMPTS", 3),
		PersistRetryDelay: envDur("PERSIST_RETRY_DELAY", 500*time.Millisecond),

		DefaultBaseURL:    envStr("UPSTREAM_BASE_URL", "https://api.deepseek.com/v1"),
		OpenRouterBaseURL: envStr("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),

		ForceReasoningEnabled:       envBool("FORCE_REASONING_ENABLED", false),
		ForceReasoningEffort:        envStr("FORCE_REASONING_EFFORT", "high"),
		ForceReasoningModelPatterns: envList("FORCE_REASONING_MODEL_PATTERNS", []string{"z-ai/glm-4.6:nitro"}),
		ForceReasoningOverride:      envBool("FORCE_REASONING_OVERRIDE", false),
		InjectionTagEnabled:         envBool("INJECTION_TAG_ENABLED", false),
		InjectionTagName:            envStr("INJECTION_TAG_NAME", "injection"),

		CORSOrigins: envList("CORS_ORIGINS", []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
			"http://localhost:5174",
			"http://127.0.0.1:5174",
			"https://storytellr.me",
		}),

		TempMessageIDPrefix: envStr("TEMP_MESSAGE_ID_PREFIX", "temp-"),

		BotCacheTTL: envDur("BOT_CACHE_TTL", 30*time.Second),
	}
}
