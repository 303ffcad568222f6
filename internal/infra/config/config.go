package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	LLM      LLMConfig      `yaml:"llm"`
	Payments PaymentsConfig `yaml:"payments"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Stylist  StylistConfig  `yaml:"stylist"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Guard    GuardConfig    `yaml:"guard"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address      string          `yaml:"address"`
	ReadTimeout  time.Duration   `yaml:"readTimeout"`
	WriteTimeout time.Duration   `yaml:"writeTimeout"`
	CORSOrigins  []string        `yaml:"corsOrigins"`
	RateLimit    RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// LLMConfig contains OpenAI settings, including the per-call retry budgets.
// The image budget is smaller because image payloads make retries expensive.
type LLMConfig struct {
	APIKey        string        `yaml:"apiKey"`
	BaseURL       string        `yaml:"baseUrl"`
	TextModel     string        `yaml:"textModel"`
	ImageModel    string        `yaml:"imageModel"`
	Temperature   float32       `yaml:"temperature"`
	TextAttempts  int           `yaml:"textAttempts"`
	ImageAttempts int           `yaml:"imageAttempts"`
	RetryBackoff  time.Duration `yaml:"retryBackoff"`
}

// PaymentsConfig contains Polar checkout/refund settings. TerminalStatuses
// is the set of checkout states accepted as a completed payment.
type PaymentsConfig struct {
	AccessToken      string   `yaml:"accessToken"`
	BaseURL          string   `yaml:"baseUrl"`
	ProductID        string   `yaml:"productId"`
	TerminalStatuses []string `yaml:"terminalStatuses"`
	RefundReason     string   `yaml:"refundReason"`
}

// AlertsConfig contains Resend settings for operator paging and report mail.
type AlertsConfig struct {
	APIKey         string   `yaml:"apiKey"`
	BaseURL        string   `yaml:"baseUrl"`
	From           string   `yaml:"from"`
	OperatorEmails []string `yaml:"operatorEmails"`
}

// StylistConfig controls the analysis pipeline itself.
type StylistConfig struct {
	Timeout            time.Duration `yaml:"timeout"`
	OutfitImageSize    string        `yaml:"outfitImageSize"`
	HairstyleImageSize string        `yaml:"hairstyleImageSize"`
}

// LedgerConfig contains DSN and pooling settings for the analysis journal.
type LedgerConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// GuardConfig controls the one-shot checkout consumption guard.
type GuardConfig struct {
	ValkeyAddr string        `yaml:"valkeyAddr"`
	TTL        time.Duration `yaml:"ttl"`
}

// ArchiveConfig controls the S3-compatible image archive.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("HTTP_CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.Burst = parsed
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("OPENAI_TEXT_MODEL"); v != "" {
		cfg.LLM.TextModel = v
	}
	if v := os.Getenv("OPENAI_IMAGE_MODEL"); v != "" {
		cfg.LLM.ImageModel = v
	}
	if v := os.Getenv("OPENAI_TEMPERATURE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.LLM.Temperature = float32(parsed)
		}
	}
	if v := os.Getenv("OPENAI_TEXT_ATTEMPTS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.LLM.TextAttempts = parsed
		}
	}
	if v := os.Getenv("OPENAI_IMAGE_ATTEMPTS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.LLM.ImageAttempts = parsed
		}
	}
	if v := os.Getenv("OPENAI_RETRY_BACKOFF"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.LLM.RetryBackoff = parsed
		}
	}
	if v := os.Getenv("POLAR_ACCESS_TOKEN"); v != "" {
		cfg.Payments.AccessToken = v
	}
	if v := os.Getenv("POLAR_BASE_URL"); v != "" {
		cfg.Payments.BaseURL = v
	}
	if v := os.Getenv("POLAR_PRODUCT_ID"); v != "" {
		cfg.Payments.ProductID = v
	}
	if v := os.Getenv("POLAR_TERMINAL_STATUSES"); v != "" {
		cfg.Payments.TerminalStatuses = splitList(v)
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.Alerts.APIKey = v
	}
	if v := os.Getenv("RESEND_BASE_URL"); v != "" {
		cfg.Alerts.BaseURL = v
	}
	if v := os.Getenv("ALERT_FROM"); v != "" {
		cfg.Alerts.From = v
	}
	if v := os.Getenv("ALERT_OPERATOR_EMAILS"); v != "" {
		cfg.Alerts.OperatorEmails = splitList(v)
	}
	if v := os.Getenv("STYLIST_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Stylist.Timeout = parsed
		}
	}
	if v := os.Getenv("LEDGER_POSTGRES_DSN"); v != "" {
		cfg.Ledger.Postgres.DSN = v
	}
	if v := os.Getenv("LEDGER_POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Ledger.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("LEDGER_POSTGRES_MIN_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Ledger.Postgres.MinConns = int32(parsed)
		}
	}
	if v := os.Getenv("GUARD_VALKEY_ADDR"); v != "" {
		cfg.Guard.ValkeyAddr = v
	}
	if v := os.Getenv("GUARD_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Guard.TTL = parsed
		}
	}
	if v := os.Getenv("ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = parseBool(v)
	}
	if v := os.Getenv("ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("ARCHIVE_REGION"); v != "" {
		cfg.Archive.Region = v
	}
}

func parseBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if clean := strings.TrimSpace(p); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address: ":8080",
			// Read timeout is generous because requests carry a base64 photo.
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 150 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
				Burst:             10,
			},
		},
		LLM: LLMConfig{
			BaseURL:       "https://api.openai.com/v1",
			TextModel:     "gpt-4.1-mini",
			ImageModel:    "gpt-image-1",
			Temperature:   0.7,
			TextAttempts:  3,
			ImageAttempts: 2,
			RetryBackoff:  2 * time.Second,
		},
		Payments: PaymentsConfig{
			BaseURL:          "https://api.polar.sh/v1",
			TerminalStatuses: []string{"succeeded", "confirmed"},
			RefundReason:     "service_not_rendered",
		},
		Alerts: AlertsConfig{
			BaseURL: "https://api.resend.com",
			From:    "Stylist Alert <noreply@kculturecat.cc>",
		},
		Stylist: StylistConfig{
			Timeout:            120 * time.Second,
			OutfitImageSize:    "1024x1536",
			HairstyleImageSize: "1024x1024",
		},
		Ledger: LedgerConfig{
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
		},
		Guard: GuardConfig{
			TTL: 24 * time.Hour,
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.LLM.TextModel == "" {
		return errors.New("llm.textModel cannot be empty")
	}
	if c.LLM.ImageModel == "" {
		return errors.New("llm.imageModel cannot be empty")
	}
	if c.LLM.TextAttempts <= 0 {
		return errors.New("llm.textAttempts must be positive")
	}
	if c.LLM.ImageAttempts <= 0 {
		return errors.New("llm.imageAttempts must be positive")
	}
	if c.LLM.RetryBackoff < 0 {
		return errors.New("llm.retryBackoff cannot be negative")
	}
	if c.Payments.BaseURL == "" {
		return errors.New("payments.baseUrl cannot be empty")
	}
	if len(c.Payments.TerminalStatuses) == 0 {
		return errors.New("payments.terminalStatuses cannot be empty")
	}
	if c.Payments.RefundReason == "" {
		return errors.New("payments.refundReason cannot be empty")
	}
	if c.Alerts.BaseURL == "" {
		return errors.New("alerts.baseUrl cannot be empty")
	}
	if c.Stylist.Timeout <= 0 {
		return errors.New("stylist.timeout must be positive")
	}
	if c.Stylist.OutfitImageSize == "" || c.Stylist.HairstyleImageSize == "" {
		return errors.New("stylist image sizes cannot be empty")
	}
	if c.Guard.TTL <= 0 {
		return errors.New("guard.ttl must be positive")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	return nil
}
