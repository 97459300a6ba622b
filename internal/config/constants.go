package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2333
	defaultEnv        = "development"

	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "presence"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"

	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultRedisDB    = 0
	defaultShardName  = "default"
	shardNameTemplate = "shard-%d"

	// defaultPresencePrefix matches the channel layer's default key namespace.
	defaultPresencePrefix     = "asgi"
	defaultPresenceStaleAfter = 300
	defaultGroupNameCapacity  = 100

	defaultArchivePrefix   = "presence"
	defaultArchiveInterval = 24 * time.Hour
	defaultArchiveRegion   = "us-east-1"
)
