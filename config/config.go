package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Mode selects which strategy variant the daemon runs.
const (
	ModeOpenLong  = "OPEN_LONG"
	ModeOpenShort = "OPEN_SHORT"
	ModeClose     = "CLOSE"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Broker credentials
	BrokerBaseURL    string
	BrokerWSURL      string
	BrokerAPIKey     string
	BrokerClientCode string
	BrokerPassword   string
	BrokerTOTPSecret string

	// Strategy
	Account    string
	Instrument string
	Mode       string // OPEN_LONG | OPEN_SHORT | CLOSE

	TotalCapital float64
	Positions    int
	SizePercent  float64

	BarsRequired      int
	AtrPeriod         int
	FastEmaPeriod     int
	SlowEmaPeriod     int
	StochKPeriod      int
	StochDPeriod      int
	StochSmoothPeriod int

	MinSlippageAllowed float64 // ATR fractions
	MaxSlippageAllowed float64

	ExecTFMinutes     int
	TimeSliceMinutes  int
	MinRetryIntervalM int
	ValidityTrigger   time.Time // zero means no gate

	// Session
	SessionTimezone  string
	SessionOpenHour  int
	SessionOpenMin   int
	SessionCloseHour int
	SessionCloseMin  int

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Notifications
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		BrokerBaseURL:    mustEnv("BROKER_BASE_URL"),
		BrokerWSURL:      mustEnv("BROKER_WS_URL"),
		BrokerAPIKey:     mustEnv("BROKER_API_KEY"),
		BrokerClientCode: mustEnv("BROKER_CLIENT_CODE"),
		BrokerPassword:   mustEnv("BROKER_PASSWORD"),
		BrokerTOTPSecret: mustEnv("BROKER_TOTP_SECRET"),

		Account:    mustEnv("ACCOUNT"),
		Instrument: mustEnv("INSTRUMENT"),
		Mode:       getEnv("MODE", ModeOpenLong),

		TotalCapital: floatEnv("TOTAL_CAPITAL", 100000),
		Positions:    intEnv("POSITIONS", 10),
		SizePercent:  floatEnv("SIZE_PERCENT", 20),

		BarsRequired:      intEnv("BARS_REQUIRED", 12),
		AtrPeriod:         intEnv("ATR_PERIOD", 10),
		FastEmaPeriod:     intEnv("FAST_EMA_PERIOD", 5),
		SlowEmaPeriod:     intEnv("SLOW_EMA_PERIOD", 15),
		StochKPeriod:      intEnv("STOCH_K_PERIOD", 14),
		StochDPeriod:      intEnv("STOCH_D_PERIOD", 3),
		StochSmoothPeriod: intEnv("STOCH_SMOOTH_PERIOD", 3),

		MinSlippageAllowed: floatEnv("MIN_SLIPPAGE_ALLOWED", -0.05),
		MaxSlippageAllowed: floatEnv("MAX_SLIPPAGE_ALLOWED", 0.01),

		ExecTFMinutes:     intEnv("EXEC_TF_MINUTES", 5),
		TimeSliceMinutes:  intEnv("TIME_SLICE_MINUTES", 30),
		MinRetryIntervalM: intEnv("MIN_RETRY_INTERVAL_MINUTES", 5),
		ValidityTrigger:   timeEnv("VALIDITY_TRIGGER"),

		SessionTimezone:  getEnv("SESSION_TZ", "America/New_York"),
		SessionOpenHour:  intEnv("SESSION_OPEN_HOUR", 9),
		SessionOpenMin:   intEnv("SESSION_OPEN_MIN", 30),
		SessionCloseHour: intEnv("SESSION_CLOSE_HOUR", 16),
		SessionCloseMin:  intEnv("SESSION_CLOSE_MIN", 0),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/journal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("[config] %s: invalid integer %q", key, v)
	}
	return n
}

func floatEnv(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("[config] %s: invalid float %q", key, v)
	}
	return f
}

// timeEnv parses an RFC3339 timestamp; empty means the zero time.
func timeEnv(key string) time.Time {
	v := os.Getenv(key)
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		log.Fatalf("[config] %s: invalid RFC3339 time %q", key, v)
	}
	return t
}
