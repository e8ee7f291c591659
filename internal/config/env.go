package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// envOverrides are read from SENTINEL_* variables. Secrets are expected to
// arrive this way rather than through the YAML file.
type envOverrides struct {
	Port           int      `envconfig:"PORT"`
	Env            string   `envconfig:"ENV"`
	DBDriver       string   `envconfig:"DB_DRIVER"`
	DSN            string   `envconfig:"DSN"`
	SQLitePath     string   `envconfig:"SQLITE_PATH"`
	RedisURL       string   `envconfig:"REDIS_URL"`
	MongoURI       string   `envconfig:"MONGO_URI"`
	JWTSecret      string   `envconfig:"JWT_SECRET"`
	OpenAIAPIKey   string   `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string   `envconfig:"OPENAI_BASE_URL"`
	BarkKey        string   `envconfig:"BARK_KEY"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
}

func applyEnvOverrides(cfg *AppConfig) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if env.Port != 0 {
		cfg.Port = env.Port
	}
	if v := strings.TrimSpace(env.Env); v != "" {
		cfg.Env = normalizeEnv(v)
	}
	if v := strings.TrimSpace(env.DBDriver); v != "" {
		cfg.Database.Driver = v
	}
	if v := strings.TrimSpace(env.DSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(env.SQLitePath); v != "" {
		cfg.Database.Path = v
	}
	if v := strings.TrimSpace(env.RedisURL); v != "" {
		cfg.Redis.URL = v
	}
	if v := strings.TrimSpace(env.MongoURI); v != "" {
		cfg.Mongo.URI = v
		cfg.Mongo.Enable = true
	}
	if v := strings.TrimSpace(env.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(env.OpenAIAPIKey); v != "" {
		cfg.Detection.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(env.OpenAIBaseURL); v != "" {
		cfg.Detection.OpenAI.BaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(env.BarkKey); v != "" {
		cfg.Notify.Bark.Key = v
	}
	if env.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeOrigins(env.AllowedOrigins)
	}

	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return nil
}
