package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port   string
	AppEnv string

	LLMDefault     string
	LLMTemperature float64
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIModel    string

	OCRLanguage    string
	TessdataPrefix string
	ContrastFactor float64

	StoreBackend string
	ResultPath   string
	DatabaseURL  string
	RedisURL     string

	HTTPErrorStatus bool
	RequestTimeout  time.Duration

	TelegramBotToken string
}

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

func defaults(v *viper.Viper) {
	v.SetDefault("port", "8000")
	v.SetDefault("app_env", "production")
	v.SetDefault("llm_temperature", 0.2)
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("ocr_language", "por")
	v.SetDefault("contrast_factor", 2.0)
	v.SetDefault("store_backend", BackendFile)
	v.SetDefault("result_path", "ultimo_resultado.json")
	v.SetDefault("http_error_status", false)
	v.SetDefault("request_timeout", "180")
}

// Load reads .env (if present), an optional CONFIG_FILE, then the process
// environment, which wins over both.
func Load() (*Config, error) { return load(true) }

// LoadWithoutLLM is Load for callers that never reach a model (OCR only), so
// no API key is required.
func LoadWithoutLLM() (*Config, error) { return load(false) }

func load(needLLM bool) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	if f := strings.TrimSpace(os.Getenv("CONFIG_FILE")); f != "" {
		v.SetConfigFile(f)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
	}

	cfg := &Config{
		Port:   v.GetString("port"),
		AppEnv: v.GetString("app_env"),

		LLMDefault:     strings.ToLower(strings.TrimSpace(v.GetString("llm_default"))),
		LLMTemperature: v.GetFloat64("llm_temperature"),
		GeminiAPIKey:   strings.TrimSpace(v.GetString("gemini_api_key")),
		GeminiModel:    v.GetString("gemini_model"),
		OpenAIAPIKey:   strings.TrimSpace(v.GetString("openai_api_key")),
		OpenAIModel:    v.GetString("openai_model"),

		OCRLanguage:    v.GetString("ocr_language"),
		TessdataPrefix: v.GetString("tessdata_prefix"),
		ContrastFactor: v.GetFloat64("contrast_factor"),

		StoreBackend: strings.ToLower(strings.TrimSpace(v.GetString("store_backend"))),
		ResultPath:   v.GetString("result_path"),
		DatabaseURL:  v.GetString("database_url"),
		RedisURL:     v.GetString("redis_url"),

		HTTPErrorStatus: v.GetBool("http_error_status"),
		RequestTimeout:  parseTimeout(v.GetString("request_timeout")),

		TelegramBotToken: v.GetString("telegram_bot_token"),
	}

	if cfg.LLMDefault == "" {
		if cfg.OpenAIAPIKey != "" {
			cfg.LLMDefault = "gpt"
		} else {
			cfg.LLMDefault = "gemini"
		}
	}

	validate := cfg.Validate
	if !needLLM {
		validate = cfg.validateRuntime
	}
	if err := validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	return c.validateRuntime()
}

func (c *Config) validateLLM() error {
	if c.OpenAIAPIKey == "" && c.GeminiAPIKey == "" {
		return errors.New("OPENAI_API_KEY or GEMINI_API_KEY is required")
	}
	switch c.LLMDefault {
	case "gpt", "openai":
		if c.OpenAIAPIKey == "" {
			return errors.New("LLM_DEFAULT=gpt needs OPENAI_API_KEY")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return errors.New("LLM_DEFAULT=gemini needs GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("LLM_DEFAULT must be gpt or gemini, got %q", c.LLMDefault)
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2, got %v", c.LLMTemperature)
	}
	return nil
}

// validateRuntime checks everything but the model settings.
func (c *Config) validateRuntime() error {
	if c.ContrastFactor <= 0 {
		return fmt.Errorf("CONTRAST_FACTOR must be positive, got %v", c.ContrastFactor)
	}
	switch c.StoreBackend {
	case BackendFile:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("STORE_BACKEND=postgres needs DATABASE_URL")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("STORE_BACKEND=redis needs REDIS_URL")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be file, postgres or redis, got %q", c.StoreBackend)
	}
	if c.RequestTimeout < time.Second {
		return fmt.Errorf("REQUEST_TIMEOUT must be at least 1s, got %v", c.RequestTimeout)
	}
	return nil
}

// parseTimeout reads a bare number as seconds, like the timeoutSec request
// parameter, and anything else as a Go duration ("90s", "2m").
// Unparseable input gives 0, which Validate rejects.
func parseTimeout(s string) time.Duration {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
