package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for mediarelay.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Fetch    FetchConfig    `yaml:"fetch"`
	AI       AIConfig       `yaml:"ai"`
	Compose  ComposeConfig  `yaml:"compose"`
	Chatwoot ChatwootConfig `yaml:"chatwoot"`
	Channels ChannelsConfig `yaml:"channels"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"MEDIARELAY_ADDR,overwrite"`
	BodyLimit       string        `yaml:"bodyLimit"` // echo size notation, e.g. "60M"
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"MEDIARELAY_LOG_LEVEL,overwrite"`
	Format string `yaml:"format"` // "text" | "json"
}

type FetchConfig struct {
	Timeout   time.Duration   `yaml:"timeout"`
	MaxBytes  int64           `yaml:"maxBytes"`
	BasicAuth BasicAuthConfig `yaml:"basicAuth"`
}

// BasicAuthConfig holds the credentials sent with media downloads.
// Twilio media URLs accept the account SID and auth token. They are only
// sent to Hosts and their subdomains.
type BasicAuthConfig struct {
	Username string   `yaml:"username" env:"TWILIO_ACCOUNT_SID,overwrite"`
	Password string   `yaml:"password" env:"TWILIO_AUTH_TOKEN,overwrite"`
	Hosts    []string `yaml:"hosts"`
}

type AIConfig struct {
	APIKey             string        `yaml:"apiKey" env:"OPENAI_API_KEY,overwrite"`
	APIBase            string        `yaml:"apiBase"`
	ChatModel          string        `yaml:"chatModel"`
	TranscriptionModel string        `yaml:"transcriptionModel"`
	Language           string        `yaml:"language,omitempty"` // optional ISO-639-1 hint for transcription
	Timeout            time.Duration `yaml:"timeout"`
	MaxRetries         int           `yaml:"maxRetries"`
	MaxTokens          int           `yaml:"maxTokens"`
	VisionPrompt       string        `yaml:"visionPrompt"`
	SummaryChars       int           `yaml:"summaryChars"`
}

type ComposeConfig struct {
	TemplatesFile string `yaml:"templatesFile,omitempty"`
}

type ChatwootConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	AttachMedia bool          `yaml:"attachMedia"` // default for requests that omit attach_media
}

type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Token     string        `yaml:"token" env:"TELEGRAM_BOT_TOKEN,overwrite"`
	AllowFrom []string      `yaml:"allowFrom,omitempty"`
	Debug     bool          `yaml:"debug,omitempty"`
	Chatwoot  ChatwootInbox `yaml:"chatwoot"` // destination inbox for Telegram traffic
}

// ChatwootInbox is a fixed delivery destination without a conversation id.
type ChatwootInbox struct {
	APIURL    string `yaml:"apiUrl"`
	APIToken  string `yaml:"apiToken"`
	AccountID string `yaml:"accountId"`
	InboxID   string `yaml:"inboxId"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// DefaultConfigPath is used when --config is not given.
func DefaultConfigPath() string {
	return "mediarelay.yaml"
}

// Load reads path on top of Defaults, then applies .env and environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	default:
		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("cannot apply environment: %w", err)
	}

	cfg.Compose.TemplatesFile = ExpandPath(cfg.Compose.TemplatesFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg as YAML, creating the parent directory.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		errs = append(errs, "server.addr is required")
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdownTimeout must be >= 0")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, "log.format must be one of: text, json")
	}

	if cfg.Fetch.Timeout <= 0 {
		errs = append(errs, "fetch.timeout must be > 0")
	}
	if cfg.Fetch.MaxBytes <= 0 {
		errs = append(errs, "fetch.maxBytes must be > 0")
	}
	if (cfg.Fetch.BasicAuth.Username == "") != (cfg.Fetch.BasicAuth.Password == "") {
		errs = append(errs, "fetch.basicAuth needs both username and password")
	}
	if cfg.Fetch.BasicAuth.Username != "" && len(cfg.Fetch.BasicAuth.Hosts) == 0 {
		errs = append(errs, "fetch.basicAuth.hosts must list at least one host")
	}

	if cfg.AI.APIBase == "" {
		errs = append(errs, "ai.apiBase is required")
	}
	if cfg.AI.Timeout <= 0 {
		errs = append(errs, "ai.timeout must be > 0")
	}
	if cfg.AI.MaxRetries < 0 || cfg.AI.MaxRetries > 5 {
		errs = append(errs, "ai.maxRetries must be between 0 and 5")
	}
	if cfg.AI.MaxTokens < 1 {
		errs = append(errs, "ai.maxTokens must be >= 1")
	}
	if cfg.AI.SummaryChars < 1 {
		errs = append(errs, "ai.summaryChars must be >= 1")
	}

	if cfg.Chatwoot.Timeout <= 0 {
		errs = append(errs, "chatwoot.timeout must be > 0")
	}

	if tg := cfg.Channels.Telegram; tg.Enabled {
		if tg.Token == "" {
			errs = append(errs, "channels.telegram.token is required when telegram is enabled")
		}
		if tg.Chatwoot.APIURL == "" || tg.Chatwoot.APIToken == "" {
			errs = append(errs, "channels.telegram.chatwoot needs apiUrl and apiToken")
		}
		if tg.Chatwoot.AccountID == "" || tg.Chatwoot.InboxID == "" {
			errs = append(errs, "channels.telegram.chatwoot needs accountId and inboxId")
		}
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Addr == "" {
			errs = append(errs, "metrics.addr is required when metrics are enabled")
		}
		if cfg.Metrics.Addr == cfg.Server.Addr {
			errs = append(errs, "metrics.addr must differ from server.addr")
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, "metrics.path must start with /")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
