// Package config loads curator settings from the environment, an optional .env file
// and an optional YAML feed list.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultFilterPrompt is used when OPENAI_FILTER_PROMPT is not set.
const DefaultFilterPrompt = `Decide whether the following article is about technology and is worth publishing in a technology news channel.
Reply with a single word: "Yes" or "No".

Article:
{article_text}`

// DefaultSummaryPrompt is used when OPENAI_SUMMARY_PROMPT is not set.
const DefaultSummaryPrompt = `Write a short Telegram post (up to 900 characters) summarizing the article below.
Use Telegram HTML formatting only (<b>, <i>, <a href="...">). End the post with a link to the source: {article_link}

Article:
{article_text}`

type Config struct {
	// Feeds
	Feeds           []string
	FeedsConfigPath string

	// Judgment service
	LLMProvider          string
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIBaseURL        string
	GeminiAPIKey         string
	GeminiModel          string
	FilterPrompt         string
	SummaryPrompt        string
	LLMTimeout           time.Duration
	MaxLLMRequests       int // per day, 0 = unlimited
	LLMRequestsPerMinute int // 0 = unpaced

	// Telegram
	TelegramToken     string
	TelegramChannelID string
	PublishTimeout    time.Duration

	// History store
	DBDriver    string
	DBFile      string
	DatabaseURL string

	// App settings
	LogLevel        string
	Debug           bool
	RequestTimeout  time.Duration
	FeedConcurrency int
	RunOnStart      bool

	// Monitoring
	MonitoringEnabled bool
	MonitoringPort    string
}

// FeedsConfig is the YAML feed list structure
// feeds:
//   - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// Load reads .env (when present) and the environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, so tests can pass a map.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		OpenAIModel:     "gpt-4o-mini",
		GeminiModel:     "gemini-1.5-flash",
		FilterPrompt:    DefaultFilterPrompt,
		SummaryPrompt:   DefaultSummaryPrompt,
		LLMTimeout:      60 * time.Second,
		PublishTimeout:  10 * time.Second,
		DBDriver:        DriverSQLite,
		DBFile:          "articles.db",
		LogLevel:        "info",
		RequestTimeout:  10 * time.Second,
		FeedConcurrency: 1,
		MonitoringPort:  "8080",
	}

	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg.Feeds = splitList(env("RSS_FEEDS"))
	cfg.FeedsConfigPath = env("FEEDS_CONFIG_PATH")
	if cfg.FeedsConfigPath != "" {
		fromFile, err := LoadFeeds(cfg.FeedsConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load feeds from %s: %w", cfg.FeedsConfigPath, err)
		}
		cfg.Feeds = mergeFeeds(cfg.Feeds, fromFile)
	}

	cfg.OpenAIAPIKey = env("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = env("OPENAI_BASE_URL")
	cfg.GeminiAPIKey = env("GEMINI_API_KEY")
	if v := env("OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	if v := env("GEMINI_MODEL"); v != "" {
		cfg.GeminiModel = v
	}
	cfg.LLMProvider = strings.ToLower(env("LLM_PROVIDER"))
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderGemini
		if cfg.OpenAIAPIKey != "" {
			cfg.LLMProvider = ProviderOpenAI
		}
	}

	// Prompt templates keep their own whitespace, so read them untrimmed.
	if v := getenv("OPENAI_FILTER_PROMPT"); strings.TrimSpace(v) != "" {
		cfg.FilterPrompt = v
	}
	if v := getenv("OPENAI_SUMMARY_PROMPT"); strings.TrimSpace(v) != "" {
		cfg.SummaryPrompt = v
	}

	cfg.TelegramToken = firstNonEmpty(env("TELEGRAM_BOT_API_KEY"), env("TELEGRAM_TOKEN"))
	cfg.TelegramChannelID = firstNonEmpty(env("TELEGRAM_CHANNEL_ID"), env("TELEGRAM_CHAT_ID"))

	cfg.DatabaseURL = env("DATABASE_URL")
	if cfg.DatabaseURL != "" {
		cfg.DBDriver = DriverPostgres
	}
	if v := strings.ToLower(env("DB_DRIVER")); v != "" {
		cfg.DBDriver = v
	}
	if v := env("DB_FILE"); v != "" {
		cfg.DBFile = v
	}

	if v := env("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.Debug = env("DEBUG") == "true"
	cfg.RunOnStart = env("RUN_ON_START") == "true"
	cfg.MonitoringEnabled = env("ENABLE_HTTP_MONITORING") == "true"
	if v := env("MONITORING_PORT"); v != "" {
		cfg.MonitoringPort = v
	}

	var err error
	if cfg.RequestTimeout, err = durationOrDefault(env("REQUEST_TIMEOUT"), cfg.RequestTimeout); err != nil {
		return nil, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}
	if cfg.PublishTimeout, err = durationOrDefault(env("PUBLISH_TIMEOUT"), cfg.PublishTimeout); err != nil {
		return nil, fmt.Errorf("PUBLISH_TIMEOUT: %w", err)
	}
	if cfg.LLMTimeout, err = durationOrDefault(env("LLM_TIMEOUT"), cfg.LLMTimeout); err != nil {
		return nil, fmt.Errorf("LLM_TIMEOUT: %w", err)
	}

	if cfg.MaxLLMRequests, err = intOrDefault(env("MAX_LLM_REQUESTS"), 0); err != nil {
		return nil, fmt.Errorf("MAX_LLM_REQUESTS: %w", err)
	}
	if cfg.LLMRequestsPerMinute, err = intOrDefault(env("LLM_REQUESTS_PER_MINUTE"), 0); err != nil {
		return nil, fmt.Errorf("LLM_REQUESTS_PER_MINUTE: %w", err)
	}
	concurrency, err := intOrDefault(env("FEED_CONCURRENCY"), 0)
	if err != nil {
		return nil, fmt.Errorf("FEED_CONCURRENCY: %w", err)
	}
	if concurrency > 0 {
		cfg.FeedConcurrency = concurrency
	}

	return cfg, cfg.Validate()
}

// LoadFeeds reads the feed list from a YAML file.
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var fc FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&fc); err != nil {
		return nil, err
	}
	return mergeFeeds(nil, fc.Feeds), nil
}

func (c *Config) Validate() error {
	if len(c.Feeds) == 0 {
		return fmt.Errorf("RSS_FEEDS or FEEDS_CONFIG_PATH is required")
	}
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_API_KEY is required")
	}
	if c.TelegramChannelID == "" {
		return fmt.Errorf("TELEGRAM_CHANNEL_ID is required")
	}
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.LLMProvider)
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for provider %q", c.LLMProvider)
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be %q or %q", ProviderOpenAI, ProviderGemini)
	}
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if !strings.Contains(c.FilterPrompt, "{article_text}") {
		return fmt.Errorf("OPENAI_FILTER_PROMPT must contain {article_text}")
	}
	if !strings.Contains(c.SummaryPrompt, "{article_text}") {
		return fmt.Errorf("OPENAI_SUMMARY_PROMPT must contain {article_text}")
	}
	return nil
}

// ValidateStore checks only the history store settings, for commands that
// never publish.
func (c *Config) ValidateStore() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBFile == "" {
			return fmt.Errorf("DB_FILE is required for sqlite")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q", DriverSQLite, DriverPostgres)
	}
	return nil
}

// DSN returns the data source for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == DriverPostgres {
		return c.DatabaseURL
	}
	return c.DBFile
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return mergeFeeds(nil, strings.Split(v, ","))
}

// mergeFeeds appends extra to base, dropping blanks and repeats while keeping order.
func mergeFeeds(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, f := range list {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// intOrDefault accepts a non-negative integer; anything else is an error.
func intOrDefault(value string, defaultValue int) (int, error) {
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", value)
	}
	if v < 0 {
		return 0, fmt.Errorf("must not be negative, got %q", value)
	}
	return v, nil
}

// durationOrDefault accepts Go durations ("15s") and bare seconds ("15").
func durationOrDefault(value string, defaultValue time.Duration) (time.Duration, error) {
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("must be positive, got %q", value)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %q", value)
	}
	return d, nil
}
