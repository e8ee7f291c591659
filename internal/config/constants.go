package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	// EnvPrefix prefixes every environment override, e.g. SENTINEL_JWT_SECRET.
	EnvPrefix = "sentinel"

	defaultPort        = 2340
	defaultEnv         = "development"
	defaultDBDriver    = DriverMySQL
	defaultDBHost      = "127.0.0.1"
	defaultDBPort      = 3306
	defaultDBUser      = "root"
	defaultDBPassword  = "password"
	defaultDBName      = "sentinel"
	defaultDBCharset   = "utf8mb4"
	defaultDBLoc       = "Local"
	defaultSQLitePath  = "sentinel.db"
	defaultRedisHost   = "localhost"
	defaultRedisPort   = 6379
	defaultRedisDB     = 0
	defaultMongoURI    = "mongodb://localhost:27017"
	defaultMongoDB     = "sentinel"
	defaultMongoColl   = "decision_audit"
	defaultRedisChan   = "sentinel:events"
	defaultOpenAIModel = "omni-moderation-latest"
	defaultBarkServer  = "https://day.app"
	defaultBarkTitle   = "Sentinel"

	defaultScanQueueInterval = 30 * time.Second
	defaultScanBatchSize     = 50
	defaultReconcileInterval = 6 * time.Hour
	defaultExpireInterval    = 15 * time.Minute
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)
