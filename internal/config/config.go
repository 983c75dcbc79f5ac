package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported model providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	AIProvider   string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string

	ConsensusModels      int
	ConsensusGradeStep   float64
	ConsensusCallTimeout time.Duration
	GradingConcurrency   int
	ReviewLockTTL        time.Duration
	ReportsSubject       string

	RateLimitMax    int
	RateLimitWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	v.SetDefault("app.name", "Grading API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("ai.provider", ProviderGemini)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("consensus.models", 3)
	v.SetDefault("consensus.grade_step", 0.5)
	v.SetDefault("consensus.call_timeout", "90s")
	v.SetDefault("grading.concurrency", 4)
	v.SetDefault("review.lock_ttl", "15s")
	v.SetDefault("reports.subject", "grader.reports.stale")
	v.SetDefault("rate_limit.max", 60)
	v.SetDefault("rate_limit.window", "1m")

	callTimeout, err := parseDuration(v, "consensus.call_timeout")
	if err != nil {
		return Config{}, err
	}
	lockTTL, err := parseDuration(v, "review.lock_ttl")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "rate_limit.window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:     v.GetString("app.name"),
		AppEnv:      v.GetString("app.env"),
		AppPort:     v.GetString("app.port"),
		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),
		JWTSecret:   v.GetString("jwt.secret"),

		AIProvider:   strings.ToLower(strings.TrimSpace(v.GetString("ai.provider"))),
		GeminiAPIKey: v.GetString("gemini_api_key"),
		GeminiModel:  v.GetString("gemini.model"),
		OpenAIAPIKey: v.GetString("openai_api_key"),
		OpenAIModel:  v.GetString("openai.model"),

		ConsensusModels:      v.GetInt("consensus.models"),
		ConsensusGradeStep:   v.GetFloat64("consensus.grade_step"),
		ConsensusCallTimeout: callTimeout,
		GradingConcurrency:   v.GetInt("grading.concurrency"),
		ReviewLockTTL:        lockTTL,
		ReportsSubject:       v.GetString("reports.subject"),

		RateLimitMax:    v.GetInt("rate_limit.max"),
		RateLimitWindow: rateWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	if cfg.ConsensusModels <= 0 {
		return Config{}, fmt.Errorf("consensus.models must be positive, got %d", cfg.ConsensusModels)
	}
	if cfg.ConsensusGradeStep <= 0 {
		return Config{}, fmt.Errorf("consensus.grade_step must be positive, got %v", cfg.ConsensusGradeStep)
	}
	switch cfg.AIProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return Config{}, fmt.Errorf("unsupported ai provider %q", cfg.AIProvider)
	}
	if cfg.GradingConcurrency <= 0 {
		cfg.GradingConcurrency = 4
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
