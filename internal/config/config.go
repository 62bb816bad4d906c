package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini     = "gemini"
	ProviderCustomHTTP = "custom_http"

	DefaultModel = "gemini-2.5-flash"
)

var (
	ErrMissingAPIKey         = errors.New("GEMINI_API_KEY is required")
	ErrMissingProviderURL    = errors.New("CUSTOM_PROVIDER_URL is required for the custom_http provider")
	ErrMissingDatabaseDSN    = errors.New("DB_DSN is required when CONTACT_ENABLED is set")
	ErrMissingMasterKey      = errors.New("at least one master key is required")
	ErrInvalidTelegramChatID = errors.New("TELEGRAM_ADMIN_CHAT_ID is required and must be non-zero when TELEGRAM_BOT_TOKEN is set")
)

type Config struct {
	Provider ProviderConfig
	Chat     ChatConfig
	HTTP     HTTPConfig
	CORS     CORSConfig
	Redis    RedisConfig
	Rate     RateConfig
	Contact  ContactConfig
	DB       DBConfig
	Worker   WorkerConfig
	Crypto   CryptoConfig
	SendGrid SendGridConfig
	Telegram TelegramConfig
	Log      LogConfig
}

type ProviderConfig struct {
	Kind         string
	APIKey       string
	Model        string
	BaseURL      string
	Headers      map[string]string
	BodyTemplate string
	Timeout      time.Duration
}

type ChatConfig struct {
	SystemPromptFile string
	DebugTraces      bool
}

type HTTPConfig struct {
	ListenAddr  string
	HealthPath  string
	MetricsPath string
	StaticDir   string
	ReadTimeout time.Duration
}

type CORSConfig struct {
	FrontendURL     string
	ExtraOrigins    []string
	AllowAllOrigins bool
}

// RedisConfig is optional: with an empty Addr the service runs without rate
// limiting, dedupe and the notification stream.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	NotifyStream string
	NotifyGroup  string
	QueueBlock   time.Duration
	DedupeTTL    time.Duration
}

type RateConfig struct {
	PerHour int64
}

type ContactConfig struct {
	Enabled   bool
	OwnerName string
}

type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type WorkerConfig struct {
	Concurrency   int
	ConsumerName  string
	MaxRetries    int
	MaxAttempts   int
	SweepInterval time.Duration
}

type CryptoConfig struct {
	CurrentKeyID string
	Keys         map[string][]byte
}

type SendGridConfig struct {
	APIKey     string
	Host       string
	FromEmail  string
	FromName   string
	AdminEmail string
}

type TelegramConfig struct {
	BotToken    string
	AdminChatID int64
}

type LogConfig struct {
	Level string
}

// Load reads a .env file when one exists, then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		Provider: ProviderConfig{
			Kind:         strings.ToLower(mustEnv("PROVIDER_KIND", ProviderGemini)),
			APIKey:       mustEnv("GEMINI_API_KEY", ""),
			Model:        mustEnv("GEMINI_MODEL", DefaultModel),
			BaseURL:      mustEnv("GEMINI_BASE_URL", ""),
			BodyTemplate: mustEnv("CUSTOM_PROVIDER_BODY_TEMPLATE", ""),
			Timeout:      mustDuration("HTTP_TIMEOUT", 120*time.Second),
		},
		Chat: ChatConfig{
			SystemPromptFile: mustEnv("SYSTEM_PROMPT_FILE", ""),
			DebugTraces:      mustBool("DEBUG_TRACES", false),
		},
		HTTP: HTTPConfig{
			ListenAddr:  listenAddr(),
			HealthPath:  mustEnv("HEALTH_PATH", "/healthz"),
			MetricsPath: mustEnv("METRICS_PATH", "/metrics"),
			StaticDir:   mustEnv("STATIC_DIR", "static"),
			ReadTimeout: mustDuration("HTTP_READ_TIMEOUT", 30*time.Second),
		},
		CORS: CORSConfig{
			FrontendURL:     strings.TrimSuffix(mustEnv("FRONTEND_URL", ""), "/"),
			ExtraOrigins:    splitList(mustEnv("CORS_ORIGINS", "")),
			AllowAllOrigins: mustBool("ALLOW_ALL_ORIGINS", false),
		},
		Redis: RedisConfig{
			Addr:         mustEnv("REDIS_ADDR", ""),
			Password:     mustEnv("REDIS_PASSWORD", ""),
			DB:           mustInt("REDIS_DB", 0),
			NotifyStream: mustEnv("NOTIFY_STREAM", "mindweave:notify"),
			NotifyGroup:  mustEnv("NOTIFY_GROUP", "mindweave-notifiers"),
			QueueBlock:   mustDuration("QUEUE_BLOCK", 5*time.Second),
			DedupeTTL:    mustDuration("CONTACT_DEDUPE_TTL", 10*time.Minute),
		},
		Rate: RateConfig{
			PerHour: int64(mustInt("RATE_LIMIT_PER_HOUR", 0)),
		},
		Contact: ContactConfig{
			Enabled:   mustBool("CONTACT_ENABLED", false),
			OwnerName: mustEnv("OWNER_NAME", "Rohit Mukati"),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(mustEnv("DB_DRIVER", "sqlite")),
			DSN:         mustEnv("DB_DSN", "file:mindweave.db"),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		Worker: WorkerConfig{
			Concurrency:   mustInt("WORKER_CONCURRENCY", 2),
			ConsumerName:  mustEnv("WORKER_CONSUMER_NAME", hostnameOr("worker")),
			MaxRetries:    mustInt("WORKER_MAX_RETRIES", 3),
			MaxAttempts:   mustInt("WORKER_MAX_ATTEMPTS", 5),
			SweepInterval: mustDuration("WORKER_SWEEP_INTERVAL", 5*time.Minute),
		},
		SendGrid: SendGridConfig{
			APIKey:     mustEnv("SENDGRID_API_KEY", ""),
			Host:       mustEnv("SENDGRID_HOST", ""),
			FromEmail:  mustEnv("SENDGRID_FROM_EMAIL", ""),
			FromName:   mustEnv("SENDGRID_FROM_NAME", "MindWeave"),
			AdminEmail: mustEnv("ADMIN_EMAIL", ""),
		},
		Telegram: TelegramConfig{
			BotToken:    mustEnv("TELEGRAM_BOT_TOKEN", ""),
			AdminChatID: mustInt64("TELEGRAM_ADMIN_CHAT_ID", 0),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	switch cfg.Provider.Kind {
	case ProviderGemini, "google":
		cfg.Provider.Kind = ProviderGemini
		if cfg.Provider.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
	case ProviderCustomHTTP, "custom-http":
		cfg.Provider.Kind = ProviderCustomHTTP
		cfg.Provider.BaseURL = mustEnv("CUSTOM_PROVIDER_URL", "")
		if cfg.Provider.BaseURL == "" {
			return nil, ErrMissingProviderURL
		}
		if raw := mustEnv("CUSTOM_PROVIDER_HEADERS_JSON", ""); raw != "" {
			if err := json.Unmarshal([]byte(raw), &cfg.Provider.Headers); err != nil {
				return nil, fmt.Errorf("parse CUSTOM_PROVIDER_HEADERS_JSON: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported PROVIDER_KIND %q", cfg.Provider.Kind)
	}

	if cfg.Telegram.BotToken != "" && cfg.Telegram.AdminChatID == 0 {
		return nil, ErrInvalidTelegramChatID
	}

	if cfg.Contact.Enabled {
		if cfg.DB.DSN == "" {
			return nil, ErrMissingDatabaseDSN
		}
		cc, err := loadCryptoConfig()
		if err != nil {
			return nil, err
		}
		cfg.Crypto = cc
	}

	return cfg, nil
}

// AllowedOrigins lists the browser origins permitted by CORS. It is nil when
// every origin is allowed.
func (c CORSConfig) AllowedOrigins() []string {
	if c.AllowAllOrigins {
		return nil
	}
	origins := []string{
		"http://localhost:5173",
		"http://127.0.0.1:5173",
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	}
	if c.FrontendURL != "" {
		origins = append(origins, c.FrontendURL)
	}
	return append(origins, c.ExtraOrigins...)
}

func listenAddr() string {
	if addr := mustEnv("LISTEN_ADDR", ""); addr != "" {
		return addr
	}
	return ":" + mustEnv("PORT", "8000")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSuffix(strings.TrimSpace(part), "/")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadCryptoConfig() (CryptoConfig, error) {
	keysB64 := map[string]string{}

	if raw := mustEnv("MASTER_KEYS_JSON", ""); raw != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return CryptoConfig{}, fmt.Errorf("parse MASTER_KEYS_JSON: %w", err)
		}
		for id, val := range parsed {
			if strings.TrimSpace(id) == "" || strings.TrimSpace(val) == "" {
				continue
			}
			keysB64[id] = val
		}
	}

	for _, e := range os.Environ() {
		k, v, ok := strings.Cut(e, "=")
		if !ok || k == "MASTER_KEY_B64" {
			continue
		}
		if !strings.HasPrefix(k, "MASTER_KEY_") || !strings.HasSuffix(k, "_B64") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(k, "MASTER_KEY_"), "_B64")
		if id == "" || v == "" {
			continue
		}
		keysB64[id] = v
	}

	current := mustEnv("MASTER_KEY_CURRENT_ID", "")
	if singleton := mustEnv("MASTER_KEY_B64", ""); singleton != "" {
		if current == "" {
			current = "default"
		}
		keysB64[current] = singleton
	}

	if len(keysB64) == 0 {
		return CryptoConfig{}, ErrMissingMasterKey
	}

	keys := make(map[string][]byte, len(keysB64))
	for id, b64 := range keysB64 {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return CryptoConfig{}, fmt.Errorf("decode master key %q: %w", id, err)
		}
		if len(raw) != 32 {
			return CryptoConfig{}, fmt.Errorf("master key %q must be 32 bytes after base64 decode", id)
		}
		keys[id] = raw
	}

	if current == "" {
		for id := range keys {
			current = id
			break
		}
	}
	if _, ok := keys[current]; !ok {
		return CryptoConfig{}, fmt.Errorf("MASTER_KEY_CURRENT_ID=%q does not exist in provided keys", current)
	}

	return CryptoConfig{
		CurrentKeyID: current,
		Keys:         keys,
	}, nil
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustInt64(key string, def int64) int64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// mustBool also accepts "yes" and "on", which the DEBUG_TRACES and
// ALLOW_ALL_ORIGINS switches are commonly set to.
func mustBool(key string, def bool) bool {
	v := strings.ToLower(mustEnv(key, ""))
	switch v {
	case "":
		return def
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func hostnameOr(def string) string {
	h, err := os.Hostname()
	if err != nil || strings.TrimSpace(h) == "" {
		return def
	}
	return h
}
