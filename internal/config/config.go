package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

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
	cfg.baseDir = configDir(path)
	return cfg, nil
}

// Parse decodes YAML content onto the defaults and validates the result.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	}

	if err := applyRawAppConfig(&cfg, raw); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
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
		Presence: PresenceRuntimeConfig{
			Prefix:     defaultPresencePrefix,
			StaleAfter: defaultPresenceStaleAfter,
			Capacity:   defaultGroupNameCapacity,
		},
		Archive: ArchiveRuntimeConfig{
			Region:   defaultArchiveRegion,
			Prefix:   defaultArchivePrefix,
			Interval: defaultArchiveInterval,
		},
	}
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.Shards = []ShardRuntimeConfig{{Name: defaultShardName, URL: cfg.Redis.URLValue()}}
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) error {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.NodeEnv); v != "" {
		cfg.Env = v
	}

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.DSN = cfg.Database.DSNValue()

	cfg.Redis = applyRawRedisEndpoint(cfg.Redis, raw.Redis.rawRedisEndpoint)
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.Redis.URL = normalizeRedisRawURL(v)
	}
	shards, err := resolveShards(cfg.Redis, raw.Redis.Shards)
	if err != nil {
		return err
	}
	cfg.Shards = shards

	cfg.Presence = applyRawPresenceConfig(cfg.Presence, raw)

	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogsDir); v != "" {
		cfg.Paths.Logs = v
	}

	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = compactStrings(raw.AllowedOrigins)
	case raw.CORSAllowedOrigins != nil:
		cfg.AllowedOrigins = compactStrings(raw.CORSAllowedOrigins)
	}

	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}

	archive, err := applyRawArchiveConfig(cfg.Archive, raw.Archive)
	if err != nil {
		return err
	}
	cfg.Archive = archive

	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
	cfg.Env = normalizeEnv(cfg.Env)
	return nil
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current

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

func applyRawRedisEndpoint(current RedisRuntimeConfig, raw rawRedisEndpoint) RedisRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Password); v != "" {
		cfg.Password = v
	}
	if raw.DB != nil {
		cfg.DB = *raw.DB
	}
	if raw.TLS != nil {
		cfg.TLS = *raw.TLS
	}
	if v := strings.TrimSpace(raw.Scheme); v != "" {
		cfg.Scheme = v
	}
	if raw.Params != nil {
		cfg.Params = copyStringMap(raw.Params)
	}

	return normalizeRedisConfig(cfg)
}

// resolveShards turns redis.shards into the ordered shard list. Without explicit shards the
// top-level redis endpoint is the only shard.
func resolveShards(base RedisRuntimeConfig, raw []rawShardConfig) ([]ShardRuntimeConfig, error) {
	if len(raw) == 0 {
		return []ShardRuntimeConfig{{Name: defaultShardName, URL: base.URLValue()}}, nil
	}

	shards := make([]ShardRuntimeConfig, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, item := range raw {
		endpoint := applyRawRedisEndpoint(RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		}, item.rawRedisEndpoint)
		if endpoint.Port < 1 || endpoint.Port > 65535 {
			return nil, fmt.Errorf("invalid redis.shards[%d].port %d, expected 1-65535", i, endpoint.Port)
		}
		if endpoint.DB < 0 {
			return nil, fmt.Errorf("invalid redis.shards[%d].db %d, expected >= 0", i, endpoint.DB)
		}

		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = fmt.Sprintf(shardNameTemplate, i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate redis shard name %q", name)
		}
		seen[name] = struct{}{}
		shards = append(shards, ShardRuntimeConfig{Name: name, URL: endpoint.URLValue()})
	}
	return shards, nil
}

func applyRawPresenceConfig(current PresenceRuntimeConfig, raw rawAppConfig) PresenceRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Presence.Prefix); v != "" {
		cfg.Prefix = v
	}
	if raw.ExpiredActivity != nil {
		cfg.StaleAfter = *raw.ExpiredActivity
	}
	if raw.Presence.StaleAfter != nil {
		cfg.StaleAfter = *raw.Presence.StaleAfter
	}
	if raw.Presence.Capacity != 0 {
		cfg.Capacity = raw.Presence.Capacity
	}
	return cfg
}

func applyRawArchiveConfig(current ArchiveRuntimeConfig, raw rawArchiveConfig) (ArchiveRuntimeConfig, error) {
	cfg := current

	if v := strings.TrimSpace(raw.Bucket); v != "" {
		cfg.Bucket = v
	}
	if v := strings.TrimSpace(raw.Region); v != "" {
		cfg.Region = v
	}
	if v := strings.TrimSpace(raw.Endpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(raw.AccessKeyID); v != "" {
		cfg.AccessKeyID = v
	}
	if v := strings.TrimSpace(raw.SecretAccessKey); v != "" {
		cfg.SecretAccessKey = v
	}
	if raw.PathStyle != nil {
		cfg.PathStyle = *raw.PathStyle
	}
	if v := strings.Trim(strings.TrimSpace(raw.Prefix), "/"); v != "" {
		cfg.Prefix = v
	}
	if v := strings.TrimSpace(raw.Interval); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid archive.interval %q: %w", v, err)
		}
		cfg.Interval = interval
	}
	if raw.Groups != nil {
		cfg.Targets = normalizeArchiveTargets(raw.Groups)
	}
	return cfg, nil
}

func validate(cfg *AppConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", cfg.Port)
	}
	if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port %d, expected 1-65535", cfg.Database.Port)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", cfg.Redis.Port)
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", cfg.Redis.DB)
	}
	if len(cfg.Shards) == 0 {
		return fmt.Errorf("at least one redis shard is required")
	}
	if cfg.Presence.StaleAfter <= 0 {
		return fmt.Errorf("invalid presence.stale_after %d, expected > 0", cfg.Presence.StaleAfter)
	}
	if cfg.Presence.Capacity <= 0 {
		return fmt.Errorf("invalid presence.capacity %d, expected > 0", cfg.Presence.Capacity)
	}
	if strings.Contains(cfg.Presence.Prefix, " ") {
		return fmt.Errorf("invalid presence.prefix %q, must not contain spaces", cfg.Presence.Prefix)
	}
	if cfg.Archive.Interval <= 0 {
		return fmt.Errorf("invalid archive.interval %s, expected > 0", cfg.Archive.Interval)
	}
	return nil
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

// LogDir resolves the log directory. Relative paths are anchored at the directory holding
// the config file.
func (c *AppConfig) LogDir() string {
	if c == nil {
		return resolvePath("", "", defaultLogsSubdir)
	}
	return resolvePath(c.baseDir, c.Paths.Logs, defaultLogsSubdir)
}
