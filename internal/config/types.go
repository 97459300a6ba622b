package config

import "time"

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	DSN            string                `yaml:"dsn"` // MySQL DSN for the identity store
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Shards         []ShardRuntimeConfig  `yaml:"-"`
	Presence       PresenceRuntimeConfig `yaml:"presence"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	Timezone       string                `yaml:"timezone"`
	Archive        ArchiveRuntimeConfig  `yaml:"archive"`

	baseDir string
}

type DatabaseRuntimeConfig struct {
	DSN       string            `yaml:"dsn"`
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

// RedisRuntimeConfig describes one Redis endpoint.
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

// ShardRuntimeConfig is one resolved ledger shard. The order of AppConfig.Shards is
// significant: the first shard also carries the gateway relay channel.
type ShardRuntimeConfig struct {
	Name string
	URL  string
}

type PresenceRuntimeConfig struct {
	Prefix     string `yaml:"prefix"`
	StaleAfter int    `yaml:"stale_after"` // seconds
	Capacity   int    `yaml:"capacity"`    // group names must be shorter
}

// StaleWindow returns the staleness window as a duration.
func (p PresenceRuntimeConfig) StaleWindow() time.Duration {
	return time.Duration(p.StaleAfter) * time.Second
}

type RuntimePathsConfig struct {
	Logs string `yaml:"logs"`
}

type ArchiveRuntimeConfig struct {
	Bucket          string          `yaml:"bucket"`
	Region          string          `yaml:"region"`
	Endpoint        string          `yaml:"endpoint"`
	AccessKeyID     string          `yaml:"access_key_id"`
	SecretAccessKey string          `yaml:"secret_access_key"`
	PathStyle       bool            `yaml:"path_style"`
	Prefix          string          `yaml:"prefix"`
	Interval        time.Duration   `yaml:"-"`
	Targets         []ArchiveTarget `yaml:"groups"`
}

// Enabled reports whether an archive bucket is configured.
func (a ArchiveRuntimeConfig) Enabled() bool {
	return a.Bucket != ""
}

type ArchiveTarget struct {
	Group string   `yaml:"group"`
	Rooms []string `yaml:"rooms"`
}

type rawAppConfig struct {
	Port               int               `yaml:"port"`
	Env                string            `yaml:"env"`
	NodeEnv            string            `yaml:"node_env"`
	DSN                string            `yaml:"dsn"`
	DatabaseURL        string            `yaml:"database_url"`
	Database           rawDatabaseConfig `yaml:"database"`
	DBHost             string            `yaml:"db_host"`
	DBPort             int               `yaml:"db_port"`
	DBUser             string            `yaml:"db_user"`
	DBPassword         string            `yaml:"db_password"`
	DBName             string            `yaml:"db_name"`
	RedisURL           string            `yaml:"redis_url"`
	Redis              rawRedisConfig    `yaml:"redis"`
	Presence           rawPresenceConfig `yaml:"presence"`
	ExpiredActivity    *int              `yaml:"expired_user_activity"`
	Paths              rawPathsConfig    `yaml:"paths"`
	LogDir             string            `yaml:"log_dir"`
	LogsDir            string            `yaml:"logs_dir"`
	AllowedOrigins     []string          `yaml:"allowed_origins"`
	CORSAllowedOrigins []string          `yaml:"cors_allowed_origins"`
	JWTSecret          string            `yaml:"jwt_secret"`
	Timezone           string            `yaml:"timezone"`
	TZ                 string            `yaml:"tz"`
	Archive            rawArchiveConfig  `yaml:"archive"`
}

type rawDatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
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

type rawRedisEndpoint struct {
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

type rawRedisConfig struct {
	rawRedisEndpoint `yaml:",inline"`
	Shards           []rawShardConfig `yaml:"shards"`
}

type rawShardConfig struct {
	Name             string `yaml:"name"`
	rawRedisEndpoint `yaml:",inline"`
}

type rawPresenceConfig struct {
	Prefix     string `yaml:"prefix"`
	StaleAfter *int   `yaml:"stale_after"`
	Capacity   int    `yaml:"capacity"`
}

type rawPathsConfig struct {
	Logs string `yaml:"logs"`
}

type rawArchiveConfig struct {
	Bucket          string          `yaml:"bucket"`
	Region          string          `yaml:"region"`
	Endpoint        string          `yaml:"endpoint"`
	AccessKeyID     string          `yaml:"access_key_id"`
	SecretAccessKey string          `yaml:"secret_access_key"`
	PathStyle       *bool           `yaml:"path_style"`
	Prefix          string          `yaml:"prefix"`
	Interval        string          `yaml:"interval"`
	Groups          []ArchiveTarget `yaml:"groups"`
}
