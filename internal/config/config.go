package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds application configuration.
type Config struct {
	// BotToken is the messaging platform API token. Required for serve.
	BotToken string `json:"bot_token,omitempty"`

	// BotUsername is the bot's handle without the leading "@". Used in watermarks and
	// permission remediation messages.
	BotUsername string `json:"bot_username,omitempty" validate:"omitempty,excludes=@"`

	// BotAPIURL points the client at a self-hosted Bot API server.
	BotAPIURL string `json:"bot_api_url,omitempty" validate:"omitempty,url"`

	// MediaDir is where downloaded and watermarked product images are kept.
	MediaDir string `json:"media_dir,omitempty"`

	// DraftBackend selects where in-progress drafts live: sqlite, memory or redis.
	DraftBackend string `json:"draft_backend,omitempty" validate:"omitempty,oneof=sqlite memory redis"`

	// RedisAddr is host:port of the Redis server when DraftBackend is redis.
	RedisAddr string `json:"redis_addr,omitempty" validate:"required_if=DraftBackend redis"`

	// DraftTTLMinutes expires drafts idle for longer than this. 0 disables expiry.
	DraftTTLMinutes int `json:"draft_ttl_minutes,omitempty" validate:"gte=0"`

	// AlbumWindowMS is the quiet period before an album batch is merged.
	AlbumWindowMS int `json:"album_window_ms,omitempty" validate:"gte=50,lte=5000"`

	// MaxPhotos caps the photos collected per draft. A media group holds at most 10.
	MaxPhotos int `json:"max_photos,omitempty" validate:"gte=1,lte=10"`

	// MaxFreeProducts and MaxFreeSchedules are the non-premium seller limits.
	MaxFreeProducts  int `json:"max_free_products,omitempty" validate:"gte=0"`
	MaxFreeSchedules int `json:"max_free_schedules,omitempty" validate:"gte=0"`

	// SweepIntervalSeconds is the publish scheduler period.
	SweepIntervalSeconds int `json:"sweep_interval_seconds,omitempty" validate:"gte=10"`

	// DispatchTimeoutSeconds bounds every single channel dispatch.
	DispatchTimeoutSeconds int `json:"dispatch_timeout_seconds,omitempty" validate:"gte=1"`

	// WatermarkMinFontPx is the smallest rendered label height; WatermarkOpacity the
	// label's alpha (0-255).
	WatermarkMinFontPx int `json:"watermark_min_font_px,omitempty" validate:"gte=8"`
	WatermarkOpacity   int `json:"watermark_opacity,omitempty" validate:"gte=0,lte=255"`

	// KafkaBrokers enables domain event publishing when non-empty.
	KafkaBrokers []string `json:"kafka_brokers,omitempty"`
	KafkaTopic   string   `json:"kafka_topic,omitempty"`

	// WebhookURL switches serve from long polling to webhook mode.
	WebhookURL    string `json:"webhook_url,omitempty" validate:"omitempty,url"`
	WebhookAddr   string `json:"webhook_addr,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty" validate:"omitempty,alphanum"`

	LogLevel  string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `json:"log_format,omitempty" validate:"omitempty,oneof=text json"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" validate:"gte=0"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" validate:"gte=0"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes disables every MCP tool of a type. Known types: "product", "schedule", "seller".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MediaDir:               filepath.Join("media", "products"),
		DraftBackend:           "sqlite",
		DraftTTLMinutes:        24 * 60,
		AlbumWindowMS:          400,
		MaxPhotos:              8,
		MaxFreeProducts:        30,
		MaxFreeSchedules:       4,
		SweepIntervalSeconds:   300,
		DispatchTimeoutSeconds: 30,
		WatermarkMinFontPx:     24,
		WatermarkOpacity:       180,
		KafkaTopic:             "storebot.events",
		WebhookAddr:            ":8080",
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// LoadWithEnv loads baseDir/config.json and then applies environment overrides.
func LoadWithEnv(baseDir string) (*Config, error) {
	cfg, err := Load(baseDir)
	if err != nil {
		return nil, err
	}
	env, err := FromEnv(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	return Merge(cfg, env), nil
}

// FromEnv builds an overlay config from environment variables. Unset variables
// leave the zero value so Merge keeps the base.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var firstErr error
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	str("BOT_TOKEN", &cfg.BotToken)
	str("BOT_USERNAME", &cfg.BotUsername)
	cfg.BotUsername = strings.TrimPrefix(cfg.BotUsername, "@")
	str("BOT_API_URL", &cfg.BotAPIURL)
	str("MEDIA_DIR", &cfg.MediaDir)
	str("DRAFT_BACKEND", &cfg.DraftBackend)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("KAFKA_TOPIC", &cfg.KafkaTopic)
	str("WEBHOOK_URL", &cfg.WebhookURL)
	str("WEBHOOK_ADDR", &cfg.WebhookAddr)
	str("WEBHOOK_SECRET", &cfg.WebhookSecret)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	num("WATERMARK_FONT_SIZE", &cfg.WatermarkMinFontPx)
	num("WATERMARK_OPACITY", &cfg.WatermarkOpacity)
	num("MAX_FREE_PRODUCTS", &cfg.MaxFreeProducts)
	num("SWEEP_INTERVAL_SECONDS", &cfg.SweepIntervalSeconds)

	if v, ok := lookup("KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v, ok := lookup("DEBUG"); ok && strings.EqualFold(strings.TrimSpace(v), "true") {
		cfg.LogLevel = "debug"
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidateForServe additionally requires the bot token.
func (c *Config) ValidateForServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.BotToken == "" {
		return errors.New("invalid config: bot_token (BOT_TOKEN) is required to serve")
	}
	return nil
}

// AlbumWindow returns the album debounce interval.
func (c *Config) AlbumWindow() time.Duration {
	return time.Duration(c.AlbumWindowMS) * time.Millisecond
}

// SweepInterval returns the scheduler period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// DispatchTimeout returns the per-dispatch deadline.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutSeconds) * time.Second
}

// DraftTTL returns the draft idle expiry; 0 means never.
func (c *Config) DraftTTL() time.Duration {
	return time.Duration(c.DraftTTLMinutes) * time.Minute
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; tool lists are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		BotToken:               pickString(base.BotToken, overlay.BotToken),
		BotUsername:            pickString(base.BotUsername, overlay.BotUsername),
		BotAPIURL:              pickString(base.BotAPIURL, overlay.BotAPIURL),
		MediaDir:               pickString(base.MediaDir, overlay.MediaDir),
		DraftBackend:           pickString(base.DraftBackend, overlay.DraftBackend),
		RedisAddr:              pickString(base.RedisAddr, overlay.RedisAddr),
		DraftTTLMinutes:        pickInt(base.DraftTTLMinutes, overlay.DraftTTLMinutes),
		AlbumWindowMS:          pickInt(base.AlbumWindowMS, overlay.AlbumWindowMS),
		MaxPhotos:              pickInt(base.MaxPhotos, overlay.MaxPhotos),
		MaxFreeProducts:        pickInt(base.MaxFreeProducts, overlay.MaxFreeProducts),
		MaxFreeSchedules:       pickInt(base.MaxFreeSchedules, overlay.MaxFreeSchedules),
		SweepIntervalSeconds:   pickInt(base.SweepIntervalSeconds, overlay.SweepIntervalSeconds),
		DispatchTimeoutSeconds: pickInt(base.DispatchTimeoutSeconds, overlay.DispatchTimeoutSeconds),
		WatermarkMinFontPx:     pickInt(base.WatermarkMinFontPx, overlay.WatermarkMinFontPx),
		WatermarkOpacity:       pickInt(base.WatermarkOpacity, overlay.WatermarkOpacity),
		KafkaTopic:             pickString(base.KafkaTopic, overlay.KafkaTopic),
		WebhookURL:             pickString(base.WebhookURL, overlay.WebhookURL),
		WebhookAddr:            pickString(base.WebhookAddr, overlay.WebhookAddr),
		WebhookSecret:          pickString(base.WebhookSecret, overlay.WebhookSecret),
		LogLevel:               pickString(base.LogLevel, overlay.LogLevel),
		LogFormat:              pickString(base.LogFormat, overlay.LogFormat),
		DBMaxOpenConns:         pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns),
		DBMaxIdleConns:         pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns),
	}

	// Brokers are a connection target, not a list to accumulate.
	result.KafkaBrokers = mergeStringSlice(nil, base.KafkaBrokers)
	if overlay.KafkaBrokers != nil {
		result.KafkaBrokers = mergeStringSlice(nil, overlay.KafkaBrokers)
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
