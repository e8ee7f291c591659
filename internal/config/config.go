package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	DSN            string                `yaml:"dsn"`
	RedisURL       string                `yaml:"redis_url"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Mongo          MongoRuntimeConfig    `yaml:"mongo"`
	Env            string                `yaml:"env"` // "development" | "production"
	Paths          RuntimePathsConfig    `yaml:"paths"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	Policy         PolicyConfig          `yaml:"policy"`
	Detection      DetectionConfig       `yaml:"detection"`
	Notify         NotifyConfig          `yaml:"notify"`
	Jobs           JobsConfig            `yaml:"jobs"`
}

type DatabaseRuntimeConfig struct {
	Driver    string            `yaml:"driver"` // "mysql" | "sqlite"
	DSN       string            `yaml:"dsn"`
	Path      string            `yaml:"path"` // sqlite file
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

// MongoRuntimeConfig configures the append-only decision audit trail.
type MongoRuntimeConfig struct {
	Enable     bool   `yaml:"enable"`
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type RuntimePathsConfig struct {
	Logs string `yaml:"logs"`
}

type DetectionConfig struct {
	SpamKeywords    []string      `yaml:"spam_keywords"`
	BlockedPatterns []string      `yaml:"blocked_patterns"`
	OpenAI          OpenAIConfig  `yaml:"openai"`
	Breaker         BreakerConfig `yaml:"breaker"`
}

type OpenAIConfig struct {
	Enable  bool          `yaml:"enable"`
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// BreakerConfig tunes the circuit breaker in front of remote detectors.
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

type NotifyConfig struct {
	Webhooks     bool       `yaml:"webhooks"`
	RedisChannel string     `yaml:"redis_channel"`
	Bark         BarkConfig `yaml:"bark"`
}

type BarkConfig struct {
	Key       string `yaml:"key"`
	ServerURL string `yaml:"server_url"`
	Title     string `yaml:"title"`
}

type JobsConfig struct {
	ScanQueueInterval time.Duration `yaml:"scan_queue_interval"`
	ScanBatchSize     int           `yaml:"scan_batch_size"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	ExpireInterval    time.Duration `yaml:"expire_interval"`
}

type rawAppConfig struct {
	Port               int                `yaml:"port"`
	DSN                string             `yaml:"dsn"`
	DatabaseURL        string             `yaml:"database_url"`
	RedisURL           string             `yaml:"redis_url"`
	Database           rawDatabaseConfig  `yaml:"database"`
	Redis              rawRedisConfig     `yaml:"redis"`
	Mongo              rawMongoConfig     `yaml:"mongo"`
	MongoURI           string             `yaml:"mongo_uri"`
	DBDriver           string             `yaml:"db_driver"`
	DBHost             string             `yaml:"db_host"`
	DBPort             int                `yaml:"db_port"`
	DBUser             string             `yaml:"db_user"`
	DBPassword         string             `yaml:"db_password"`
	DBName             string             `yaml:"db_name"`
	RedisHost          string             `yaml:"redis_host"`
	RedisPort          int                `yaml:"redis_port"`
	RedisPassword      string             `yaml:"redis_password"`
	RedisDB            *int               `yaml:"redis_db"`
	Env                string             `yaml:"env"`
	Paths              rawPathsConfig     `yaml:"paths"`
	LogDir             string             `yaml:"log_dir"`
	AllowedOrigins     []string           `yaml:"allowed_origins"`
	CORSAllowedOrigins []string           `yaml:"cors_allowed_origins"`
	JWTSecret          string             `yaml:"jwt_secret"`
	Policy             rawPolicyConfig    `yaml:"policy"`
	Detection          rawDetectionConfig `yaml:"detection"`
	Notify             rawNotifyConfig    `yaml:"notify"`
	Jobs               rawJobsConfig      `yaml:"jobs"`
}

type rawDatabaseConfig struct {
	Driver    string            `yaml:"driver"`
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Path      string            `yaml:"path"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	DBName    string            `yaml:"db_name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type rawMongoConfig struct {
	Enable     *bool  `yaml:"enable"`
	URI        string `yaml:"uri"`
	URL        string `yaml:"url"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type rawPathsConfig struct {
	Logs string `yaml:"logs"`
}

type rawDetectionConfig struct {
	SpamKeywords    []string         `yaml:"spam_keywords"`
	BlockedPatterns []string         `yaml:"blocked_patterns"`
	OpenAI          rawOpenAIConfig  `yaml:"openai"`
	Breaker         rawBreakerConfig `yaml:"breaker"`
}

type rawOpenAIConfig struct {
	Enable  *bool          `yaml:"enable"`
	APIKey  string         `yaml:"api_key"`
	BaseURL string         `yaml:"base_url"`
	Model   string         `yaml:"model"`
	Timeout *time.Duration `yaml:"timeout"`
}

type rawBreakerConfig struct {
	MaxRequests         *uint32        `yaml:"max_requests"`
	Interval            *time.Duration `yaml:"interval"`
	Timeout             *time.Duration `yaml:"timeout"`
	ConsecutiveFailures *uint32        `yaml:"consecutive_failures"`
}

type rawNotifyConfig struct {
	Webhooks     *bool         `yaml:"webhooks"`
	RedisChannel string        `yaml:"redis_channel"`
	Bark         rawBarkConfig `yaml:"bark"`
}

type rawBarkConfig struct {
	Key       string `yaml:"key"`
	ServerURL string `yaml:"server_url"`
	Title     string `yaml:"title"`
}

type rawJobsConfig struct {
	ScanQueueInterval *time.Duration `yaml:"scan_queue_interval"`
	ScanBatchSize     *int           `yaml:"scan_batch_size"`
	ReconcileInterval *time.Duration `yaml:"reconcile_interval"`
	ExpireInterval    *time.Duration `yaml:"expire_interval"`
}

// Load reads the YAML file at configPath, applies SENTINEL_* environment
// overrides and validates the result.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML content on top of the defaults.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}

	applyRawAppConfig(&cfg, raw)
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	cfg := defaultAppConfig()
	return &cfg
}

// Validate checks ranges that the normalizers cannot repair.
func (c *AppConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	switch c.Database.Driver {
	case DriverMySQL:
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database.port %d, expected 1-65535", c.Database.Port)
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("invalid database.driver %q, expected mysql or sqlite", c.Database.Driver)
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", c.Redis.Port)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", c.Redis.DB)
	}
	if c.Jobs.ScanBatchSize < 1 {
		return fmt.Errorf("invalid jobs.scan_batch_size %d, expected >= 1", c.Jobs.ScanBatchSize)
	}
	return c.Policy.Validate()
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Driver:    defaultDBDriver,
			Path:      defaultSQLitePath,
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Mongo: MongoRuntimeConfig{
			URI:        defaultMongoURI,
			Database:   defaultMongoDB,
			Collection: defaultMongoColl,
		},
		Policy: DefaultPolicy(),
		Detection: DetectionConfig{
			OpenAI: OpenAIConfig{
				Model:   defaultOpenAIModel,
				Timeout: 10 * time.Second,
			},
			Breaker: BreakerConfig{
				MaxRequests:         3,
				Interval:            60 * time.Second,
				Timeout:             30 * time.Second,
				ConsecutiveFailures: 5,
			},
		},
		Notify: NotifyConfig{
			Webhooks:     true,
			RedisChannel: defaultRedisChan,
			Bark: BarkConfig{
				ServerURL: defaultBarkServer,
				Title:     defaultBarkTitle,
			},
		},
		Jobs: JobsConfig{
			ScanQueueInterval: defaultScanQueueInterval,
			ScanBatchSize:     defaultScanBatchSize,
			ReconcileInterval: defaultReconcileInterval,
			ExpireInterval:    defaultExpireInterval,
		},
	}
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	cfg.Mongo = applyRawMongoConfig(cfg.Mongo, raw)
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}

	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	case raw.CORSAllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.CORSAllowedOrigins)
	}

	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}

	cfg.Policy = applyRawPolicyConfig(cfg.Policy, raw.Policy)
	cfg.Detection = applyRawDetectionConfig(cfg.Detection, raw.Detection)
	cfg.Notify = applyRawNotifyConfig(cfg.Notify, raw.Notify)
	cfg.Jobs = applyRawJobsConfig(cfg.Jobs, raw.Jobs)

	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
	cfg.Env = normalizeEnv(cfg.Env)
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Database.Driver); v != "" {
		cfg.Driver = v
	}
	if v := strings.TrimSpace(raw.DBDriver); v != "" {
		cfg.Driver = v
	}
	if v := strings.TrimSpace(raw.Database.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.URL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DatabaseURL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.Path); v != "" {
		cfg.Path = v
	}
	if v := strings.TrimSpace(raw.Database.Host); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(raw.DBHost); v != "" {
		cfg.Host = v
	}
	if raw.Database.Port != 0 {
		cfg.Port = raw.Database.Port
	}
	if raw.DBPort != 0 {
		cfg.Port = raw.DBPort
	}
	if v := strings.TrimSpace(raw.Database.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Username); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.DBUser); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.DBPassword); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Database.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.DBName); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.DBName); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.Charset); v != "" {
		cfg.Charset = v
	}
	if raw.Database.ParseTime != nil {
		cfg.ParseTime = *raw.Database.ParseTime
	}
	if v := strings.TrimSpace(raw.Database.Loc); v != "" {
		cfg.Loc = v
	}
	if raw.Database.Params != nil {
		cfg.Params = copyStringMap(raw.Database.Params)
	}

	return normalizeDatabaseConfig(cfg)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(raw.RedisHost); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	if raw.RedisPort != 0 {
		cfg.Port = raw.RedisPort
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.RedisPassword); v != "" {
		cfg.Password = v
	}
	if raw.Redis.DB != nil {
		cfg.DB = *raw.Redis.DB
	}
	if raw.RedisDB != nil {
		cfg.DB = *raw.RedisDB
	}
	if raw.Redis.TLS != nil {
		cfg.TLS = *raw.Redis.TLS
	}
	if v := strings.TrimSpace(raw.Redis.Scheme); v != "" {
		cfg.Scheme = v
	}
	if raw.Redis.Params != nil {
		cfg.Params = copyStringMap(raw.Redis.Params)
	}

	return normalizeRedisConfig(cfg)
}

func applyRawMongoConfig(current MongoRuntimeConfig, raw rawAppConfig) MongoRuntimeConfig {
	cfg := current

	if raw.Mongo.Enable != nil {
		cfg.Enable = *raw.Mongo.Enable
	}
	if v := strings.TrimSpace(raw.Mongo.URI); v != "" {
		cfg.URI = v
	}
	if v := strings.TrimSpace(raw.Mongo.URL); v != "" {
		cfg.URI = v
	}
	if v := strings.TrimSpace(raw.MongoURI); v != "" {
		cfg.URI = v
		cfg.Enable = true
	}
	if v := strings.TrimSpace(raw.Mongo.Database); v != "" {
		cfg.Database = v
	}
	if v := strings.TrimSpace(raw.Mongo.Collection); v != "" {
		cfg.Collection = v
	}
	return cfg
}

func applyRawDetectionConfig(current DetectionConfig, raw rawDetectionConfig) DetectionConfig {
	cfg := current

	if raw.SpamKeywords != nil {
		cfg.SpamKeywords = normalizeList(raw.SpamKeywords)
	}
	if raw.BlockedPatterns != nil {
		cfg.BlockedPatterns = normalizeList(raw.BlockedPatterns)
	}
	if raw.OpenAI.Enable != nil {
		cfg.OpenAI.Enable = *raw.OpenAI.Enable
	}
	if v := strings.TrimSpace(raw.OpenAI.APIKey); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(raw.OpenAI.BaseURL); v != "" {
		cfg.OpenAI.BaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(raw.OpenAI.Model); v != "" {
		cfg.OpenAI.Model = v
	}
	if raw.OpenAI.Timeout != nil && *raw.OpenAI.Timeout > 0 {
		cfg.OpenAI.Timeout = *raw.OpenAI.Timeout
	}

	b := &cfg.Breaker
	if raw.Breaker.MaxRequests != nil {
		b.MaxRequests = *raw.Breaker.MaxRequests
	}
	if raw.Breaker.Interval != nil {
		b.Interval = *raw.Breaker.Interval
	}
	if raw.Breaker.Timeout != nil {
		b.Timeout = *raw.Breaker.Timeout
	}
	if raw.Breaker.ConsecutiveFailures != nil {
		b.ConsecutiveFailures = *raw.Breaker.ConsecutiveFailures
	}
	return cfg
}

func applyRawNotifyConfig(current NotifyConfig, raw rawNotifyConfig) NotifyConfig {
	cfg := current

	if raw.Webhooks != nil {
		cfg.Webhooks = *raw.Webhooks
	}
	if v := strings.TrimSpace(raw.RedisChannel); v != "" {
		cfg.RedisChannel = v
	}
	if v := strings.TrimSpace(raw.Bark.Key); v != "" {
		cfg.Bark.Key = v
	}
	if v := strings.TrimSpace(raw.Bark.ServerURL); v != "" {
		cfg.Bark.ServerURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(raw.Bark.Title); v != "" {
		cfg.Bark.Title = v
	}
	return cfg
}

func applyRawJobsConfig(current JobsConfig, raw rawJobsConfig) JobsConfig {
	cfg := current

	if raw.ScanQueueInterval != nil && *raw.ScanQueueInterval > 0 {
		cfg.ScanQueueInterval = *raw.ScanQueueInterval
	}
	if raw.ScanBatchSize != nil {
		cfg.ScanBatchSize = *raw.ScanBatchSize
	}
	if raw.ReconcileInterval != nil && *raw.ReconcileInterval > 0 {
		cfg.ReconcileInterval = *raw.ReconcileInterval
	}
	if raw.ExpireInterval != nil && *raw.ExpireInterval > 0 {
		cfg.ExpireInterval = *raw.ExpireInterval
	}
	return cfg
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

// LogDir resolves the log directory. Relative paths are taken from the
// working directory.
func (c *AppConfig) LogDir() string {
	target := "logs"
	if c != nil && c.Paths.Logs != "" {
		target = c.Paths.Logs
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	wd, err := os.Getwd()
	if err != nil || strings.TrimSpace(wd) == "" {
		wd = "."
	}
	return filepath.Clean(filepath.Join(wd, target))
}
