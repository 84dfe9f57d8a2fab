package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerPort string
	Logging    LoggingConfig
	Inference  InferenceConfig
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

// InferenceConfig locates the serving runtime. Model selection is the
// only model-related knob; decoding parameters are fixed in code.
type InferenceConfig struct {
	PrimaryEndpoint string
	BackupEndpoint  string
	APIKey          string
	ModelID         string
	RequestTimeout  time.Duration
}

func LoadConfig() (*Config, error) {
	logging := LoggingConfig{
		Level:        strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		Encoding:     strings.ToLower(envOrDefault("LOG_ENCODING", "console")),
		Development:  parseBool(envOrDefault("LOG_DEVELOPMENT", "false"), false),
		EnableCaller: parseBool(envOrDefault("LOG_CALLER", "false"), false),
		ServiceName:  envOrDefault("SERVICE_NAME", "aura-server"),
	}

	cfg := &Config{
		ServerPort: envOrDefault("PORT", "8000"),
		Logging:    logging,
		Inference: InferenceConfig{
			PrimaryEndpoint: envOrDefault("INFERENCE_PRIMARY_ENDPOINT", "http://localhost:8080/v1"),
			BackupEndpoint:  os.Getenv("INFERENCE_BACKUP_ENDPOINT"),
			APIKey:          os.Getenv("INFERENCE_API_KEY"),
			ModelID:         envOrDefault("MODEL_ID", "openchat/openchat-3.5-0106"),
			RequestTimeout:  parseDuration(envOrDefault("INFERENCE_REQUEST_TIMEOUT", "0s"), 0),
		},
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}
