package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr          string
	LogMode       string
	PublicBaseURL string

	DB       DBConfig
	Redis    RedisConfig
	Monitor  MonitorConfig
	Barriers BarrierConfig
	Notify   NotifyConfig
	Assist   AssistConfig

	OpenAI   OpenAIConfig
	SendGrid SendGridConfig
	Twilio   TwilioConfig
	Telegram TelegramConfig

	DefaultCountryCode string
}

type DBConfig struct {
	// DatabaseURL selects postgres when set; otherwise the sqlite file at Path is used.
	DatabaseURL string
	Path        string
	// Silent turns gorm's query logger off; tests set it.
	Silent bool
}

type MonitorConfig struct {
	Enabled         bool
	Tick            time.Duration
	UserAgent       string
	Render          bool
	FetchRatePerSec float64
	FetchTimeout    time.Duration
}

type BarrierConfig struct {
	ProfilesPath string
	CacheTTL     time.Duration
	AIEnabled    bool
}

type NotifyConfig struct {
	DefaultEscalationDelay time.Duration
}

type AssistConfig struct {
	TokenTTL time.Duration
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type SendGridConfig struct {
	APIKey    string
	BaseURL   string
	FromEmail string
	FromName  string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
}

type TelegramConfig struct {
	BotToken      string
	WebhookSecret string
}

func Load() (*Config, error) {
	redisCfg, err := LoadRedisConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Addr:          getEnv("ADDR", ":8080"),
		LogMode:       getEnv("LOG_MODE", "dev"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		DB: DBConfig{
			DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
			Path:        getEnv("DB_PATH", "camprush.db"),
		},
		Redis: *redisCfg,
		Monitor: MonitorConfig{
			Enabled:         getBool("MONITOR_ENABLED", true),
			Tick:            getDuration("MONITOR_TICK", time.Minute),
			UserAgent:       getEnv("MONITOR_USER_AGENT", "CampRush/1.0 (+registration-open monitor)"),
			Render:          getBool("MONITOR_RENDER", false),
			FetchRatePerSec: getFloat("FETCH_RATE_PER_HOST", 0.2),
			FetchTimeout:    getDuration("FETCH_TIMEOUT", 20*time.Second),
		},
		Barriers: BarrierConfig{
			ProfilesPath: strings.TrimSpace(os.Getenv("BARRIER_PROFILES_PATH")),
			CacheTTL:     getDuration("BARRIER_CACHE_TTL", 24*time.Hour),
			AIEnabled:    getBool("BARRIER_AI_ENABLED", false),
		},
		Notify: NotifyConfig{
			DefaultEscalationDelay: getDuration("ESCALATION_DELAY", 5*time.Minute),
		},
		Assist: AssistConfig{
			TokenTTL: getDuration("APPROVAL_TOKEN_TTL", 15*time.Minute),
		},
		OpenAI: OpenAIConfig{
			APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout: getDuration("OPENAI_TIMEOUT", 90*time.Second),
		},
		SendGrid: SendGridConfig{
			APIKey:    strings.TrimSpace(os.Getenv("SENDGRID_API_KEY")),
			BaseURL:   getEnv("SENDGRID_BASE_URL", "https://api.sendgrid.com"),
			FromEmail: strings.TrimSpace(os.Getenv("SENDGRID_FROM_EMAIL")),
			FromName:  getEnv("SENDGRID_FROM_NAME", "CampRush"),
		},
		Twilio: TwilioConfig{
			AccountSID: strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
			AuthToken:  strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
			From:       strings.TrimSpace(os.Getenv("TWILIO_FROM")),
			BaseURL:    getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
		},
		Telegram: TelegramConfig{
			BotToken:      strings.TrimSpace(os.Getenv("TG_BOT_TOKEN")),
			WebhookSecret: os.Getenv("TG_WEBHOOK_SECRET"),
		},
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "1"),
	}, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// getDuration accepts Go durations ("90s", "24h") or plain seconds.
func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}
