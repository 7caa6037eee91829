package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseURL string
	RedisURL    string
	NATSURL     string
	NATSSubject string

	JobStore       string
	JobTTL         time.Duration
	SweepSchedule  string
	MaxUploadMB    int
	GradeRateLimit int

	RubricAPIURL   string
	RubricAPIKey   string
	RubricTimeout  time.Duration
	RubricCacheTTL time.Duration

	AIProvider           string
	AIModel              string
	AIBaseURL            string
	OpenAIAPIKey         string
	AITemperature        float32
	AIMaxTokens          int
	AITimeout            time.Duration
	MaxConcurrentAICalls int
	PassScoreThreshold   int
	PlagiarismThreshold  float64

	WebhookTimeout     time.Duration
	WebhookMaxAttempts int
	WebhookSecret      string

	SandboxEnabled   bool
	DockerHost       string
	SandboxImage     string
	ExecutionTimeout time.Duration
	SandboxMemoryMB  int
	SandboxCPUShares int
	SandboxWorkspace string

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// ArchiveEnabled reports whether raw uploads should be archived to Cloudinary.
func (c Config) ArchiveEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("DSA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "DSA AutoGrader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8000")
	v.SetDefault("database.url", "sqlite:dsa_autograder.db")
	v.SetDefault("nats.subject", "grading.jobs")
	v.SetDefault("job.store", "memory")
	v.SetDefault("job.ttl", "1h")
	v.SetDefault("job.sweep_schedule", "@every 1h")
	v.SetDefault("upload.max_mb", 20)
	v.SetDefault("grade.rate_limit", 30)
	v.SetDefault("rubric.api_url", "https://api-dsa-python.onrender.com/api/rubrics")
	v.SetDefault("rubric.timeout", "10s")
	v.SetDefault("rubric.cache_ttl", "10m")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.temperature", 0.1)
	v.SetDefault("ai.max_tokens", 4096)
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.max_concurrent_calls", 50)
	v.SetDefault("grading.pass_threshold", 50)
	v.SetDefault("grading.plagiarism_threshold", 0.85)
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("webhook.max_attempts", 1)
	v.SetDefault("sandbox.enabled", false)
	v.SetDefault("sandbox.image", "python:3.11-alpine")
	v.SetDefault("execution_timeout_ms", 5000)
	v.SetDefault("sandbox.memory_mb", 256)
	v.SetDefault("sandbox.cpu_shares", 512)
	v.SetDefault("cloudinary.folder", "dsa/submissions")

	durations := map[string]time.Duration{}
	for _, key := range []string{"job.ttl", "rubric.timeout", "rubric.cache_ttl", "ai.timeout", "webhook.timeout"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		durations[key] = parsed
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		NATSSubject:            v.GetString("nats.subject"),
		JobStore:               strings.ToLower(v.GetString("job.store")),
		JobTTL:                 durations["job.ttl"],
		SweepSchedule:          v.GetString("job.sweep_schedule"),
		MaxUploadMB:            v.GetInt("upload.max_mb"),
		GradeRateLimit:         v.GetInt("grade.rate_limit"),
		RubricAPIURL:           strings.TrimRight(v.GetString("rubric.api_url"), "/"),
		RubricAPIKey:           v.GetString("rubric.api_key"),
		RubricTimeout:          durations["rubric.timeout"],
		RubricCacheTTL:         durations["rubric.cache_ttl"],
		AIProvider:             strings.ToLower(v.GetString("ai.provider")),
		AIModel:                v.GetString("ai.model"),
		AIBaseURL:              v.GetString("ai.base_url"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		AITemperature:          float32(v.GetFloat64("ai.temperature")),
		AIMaxTokens:            v.GetInt("ai.max_tokens"),
		AITimeout:              durations["ai.timeout"],
		MaxConcurrentAICalls:   v.GetInt("ai.max_concurrent_calls"),
		PassScoreThreshold:     v.GetInt("grading.pass_threshold"),
		PlagiarismThreshold:    v.GetFloat64("grading.plagiarism_threshold"),
		WebhookTimeout:         durations["webhook.timeout"],
		WebhookMaxAttempts:     v.GetInt("webhook.max_attempts"),
		WebhookSecret:          v.GetString("webhook.secret"),
		SandboxEnabled:         v.GetBool("sandbox.enabled"),
		DockerHost:             v.GetString("docker_host"),
		SandboxImage:           v.GetString("sandbox.image"),
		ExecutionTimeout:       time.Duration(timeoutMs) * time.Millisecond,
		SandboxMemoryMB:        v.GetInt("sandbox.memory_mb"),
		SandboxCPUShares:       v.GetInt("sandbox.cpu_shares"),
		SandboxWorkspace:       v.GetString("sandbox.workspace"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
	}

	switch cfg.JobStore {
	case "memory":
	case "redis":
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("redis job store requires DSA_REDIS_URL")
		}
	default:
		return Config{}, fmt.Errorf("unknown job store %q", cfg.JobStore)
	}

	if cfg.MaxConcurrentAICalls <= 0 {
		cfg.MaxConcurrentAICalls = 50
	}

	if cfg.PassScoreThreshold <= 0 || cfg.PassScoreThreshold > 100 {
		cfg.PassScoreThreshold = 50
	}

	if cfg.PlagiarismThreshold <= 0 || cfg.PlagiarismThreshold > 1 {
		cfg.PlagiarismThreshold = 0.85
	}

	if cfg.WebhookMaxAttempts <= 0 {
		cfg.WebhookMaxAttempts = 1
	}

	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 20
	}

	if cfg.SandboxMemoryMB <= 0 {
		cfg.SandboxMemoryMB = 256
	}

	if cfg.SandboxCPUShares <= 0 {
		cfg.SandboxCPUShares = 512
	}

	return cfg, nil
}
